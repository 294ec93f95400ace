package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"avatarstudio/internal/infra"
	"avatarstudio/internal/infra/credentials"
)

func main() {
	_ = godotenv.Load()

	var (
		userFlag string
		keyFlag  string
	)
	flag.StringVar(&userFlag, "user", "", "user id (uuid) whose profile receives the key")
	flag.StringVar(&keyFlag, "key", "", "Gemini API key (fallbacks to GEMINI_API_KEY)")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if _, err := uuid.Parse(userID); err != nil {
		fmt.Fprintln(os.Stderr, "-user must be a uuid")
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "GEMINI API key is required via -key or environment")
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	secret, err := infra.DecodeCredentialKey(os.Getenv("CREDENTIAL_SECRET"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cipher, err := credentials.NewCipher(secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid credential secret: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "geminikey").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger), cipher)

	if err := store.SetGeminiAPIKey(ctx, userID, key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist gemini api key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("GEMINI API key stored for user %s\n", userID)
}
