package gemini

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"avatarstudio/internal/domain"
)

// ErrorKind tags provider failures the pipeline reacts to differently.
type ErrorKind int

const (
	KindInvalidRequest ErrorKind = iota + 1
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindNotFound:
		return "not_found"
	default:
		return "unclassified"
	}
}

// ProviderError is a classified provider failure.
type ProviderError struct {
	Kind    ErrorKind
	Code    int
	Status  string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	switch e.Kind {
	case KindInvalidRequest:
		return fmt.Sprintf("gemini rejected the request (%d %s): %s", e.Code, e.Status, e.Message)
	case KindNotFound:
		return fmt.Sprintf("gemini resource not found: %s", e.Message)
	default:
		return fmt.Sprintf("gemini status %d: %s", e.Code, e.Message)
	}
}

func (e *ProviderError) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case KindInvalidRequest:
		sentinel = domain.ErrInvalidRequest
	case KindNotFound:
		sentinel = domain.ErrNotFound
	}
	out := make([]error, 0, 2)
	if sentinel != nil {
		out = append(out, sentinel)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// authMessagePatterns catch credential problems that reach us as plain
// transport errors rather than structured API errors.
var authMessagePatterns = []string{
	"api key not valid",
	"api_key_invalid",
	"invalid api key",
	"api key expired",
	"permission denied",
}

// Classify converts SDK errors into tagged ProviderErrors. Errors that are
// neither a bad request nor a missing resource are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := kindFor(apiErr.Code, apiErr.Status); ok {
			return &ProviderError{Kind: kind, Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message, Err: err}
		}
		if matchesAuthMessage(apiErr.Message) {
			return &ProviderError{Kind: KindInvalidRequest, Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message, Err: err}
		}
		return err
	}
	if matchesAuthMessage(err.Error()) {
		return &ProviderError{Kind: KindInvalidRequest, Message: err.Error(), Err: err}
	}
	return err
}

func kindFor(code int, status string) (ErrorKind, bool) {
	switch strings.ToUpper(status) {
	case "INVALID_ARGUMENT", "UNAUTHENTICATED", "PERMISSION_DENIED", "FAILED_PRECONDITION":
		return KindInvalidRequest, true
	case "NOT_FOUND":
		return KindNotFound, true
	}
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return KindInvalidRequest, true
	case http.StatusNotFound:
		return KindNotFound, true
	}
	return 0, false
}

func matchesAuthMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range authMessagePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a classified missing-resource error.
func IsNotFound(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindNotFound
}
