package pipeline

import (
	"context"
	"errors"
	"strings"

	"avatarstudio/internal/domain"
)

// MaxErrorMessageRunes bounds the error_message column.
const MaxErrorMessageRunes = 1000

// Messages persisted for classified failures.
const (
	MsgNoCredential    = "No Gemini API key is configured for your account. Add one in settings, then retry."
	MsgDecryption      = "Your stored Gemini API key could not be decrypted. Save it again, then retry."
	MsgTimedOut        = "generation timed out"
	MsgCancelled       = "generation was cancelled before it finished"
	prefixReference    = "A reference image could not be prepared: "
	prefixNoCandidates = "The model returned no candidates. Adjust the prompt or settings and retry."
	prefixRefused      = "The model returned text instead of an image: "
	prefixInvalid      = "The model provider rejected the request (check your API key and parameters): "
	prefixStorage      = "The generated image could not be saved: "
)

// FailureMessage renders the user-facing error for a failed task, truncated
// to MaxErrorMessageRunes. Unclassified errors are recorded verbatim.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var msg string
	var refusal *domain.RefusalError
	switch {
	case errors.Is(err, domain.ErrNoCredential):
		msg = MsgNoCredential
	case errors.Is(err, domain.ErrDecryptionFailure):
		msg = MsgDecryption
	case errors.Is(err, domain.ErrReferenceFetch):
		msg = prefixReference + err.Error()
	case errors.Is(err, domain.ErrNoCandidates):
		msg = prefixNoCandidates
		if detail := strings.TrimPrefix(err.Error(), domain.ErrNoCandidates.Error()); strings.TrimSpace(detail) != "" {
			msg += " (" + strings.TrimSpace(strings.TrimPrefix(detail, ":")) + ")"
		}
	case errors.As(err, &refusal):
		msg = prefixRefused + refusal.Text
	case errors.Is(err, domain.ErrModelRefused):
		msg = strings.TrimSuffix(prefixRefused, ": ")
	case errors.Is(err, domain.ErrInvalidRequest):
		msg = prefixInvalid + err.Error()
	case errors.Is(err, domain.ErrStorage):
		msg = prefixStorage + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		msg = MsgTimedOut
	case errors.Is(err, context.Canceled):
		msg = MsgCancelled
	default:
		msg = err.Error()
	}
	if strings.TrimSpace(msg) == "" {
		msg = "generation failed"
	}
	return truncateRunes(msg, MaxErrorMessageRunes)
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
