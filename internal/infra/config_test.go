package infra

import (
	"strings"
	"testing"
	"time"
)

const testCredentialSecret = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=" // 32 ASCII bytes

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("CREDENTIAL_SECRET", testCredentialSecret)
	t.Setenv("STORAGE_BACKEND", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("GEMINI_ALLOWED_MODELS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBaseURL != "http://localhost:8080/static" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
	if cfg.StorageBackend != StorageBackendFilesystem {
		t.Fatalf("StorageBackend mismatch: got %q", cfg.StorageBackend)
	}
	if cfg.FilePollAttempts != 10 || cfg.FilePollInterval != 2*time.Second {
		t.Fatalf("poll budget mismatch: %d x %s", cfg.FilePollAttempts, cfg.FilePollInterval)
	}
	if len(cfg.CredentialKey) != 32 {
		t.Fatalf("credential key length = %d", len(cfg.CredentialKey))
	}
	if !cfg.ModelAllowed("gemini-2.5-flash-image") {
		t.Fatalf("default model should be allowed: %#v", cfg.GeminiAllowedModels)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigAllowedModels(t *testing.T) {
	setRequired(t)
	t.Setenv("GEMINI_ALLOWED_MODELS", " gemini-2.5-flash-image, gemini-3-pro-image-preview ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.GeminiAllowedModels) != 2 {
		t.Fatalf("GeminiAllowedModels mismatch: %#v", cfg.GeminiAllowedModels)
	}
	if !cfg.ModelAllowed("gemini-3-pro-image-preview") {
		t.Fatal("expected model to be allowed")
	}
	if cfg.ModelAllowed("imagen-4") {
		t.Fatal("unexpected model allowed")
	}
}

func TestLoadConfigRequiredValues(t *testing.T) {
	tests := []struct {
		name  string
		unset string
		value string
		want  string
	}{
		{name: "database url", unset: "DATABASE_URL", want: "DATABASE_URL"},
		{name: "jwt secret", unset: "JWT_SECRET", want: "JWT_SECRET"},
		{name: "credential secret", unset: "CREDENTIAL_SECRET", want: "CREDENTIAL_SECRET"},
		{name: "short credential secret", unset: "CREDENTIAL_SECRET", value: "c2hvcnQ=", want: "32 bytes"},
		{name: "supabase without url", unset: "STORAGE_BACKEND", value: "supabase", want: "SUPABASE_URL"},
		{name: "unknown backend", unset: "STORAGE_BACKEND", value: "s3", want: "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("SUPABASE_URL", "")
			t.Setenv(tt.unset, tt.value)
			_, err := LoadConfig()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
