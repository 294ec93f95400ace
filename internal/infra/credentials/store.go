package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"avatarstudio/internal/domain"
	"avatarstudio/internal/infra"
	"avatarstudio/internal/sqlinline"
)

// Store reads and writes the per-user sealed Gemini key kept on profiles.
type Store struct {
	sql    infra.SQLExecutor
	cipher *Cipher
}

func NewStore(sql infra.SQLExecutor, cipher *Cipher) *Store {
	return &Store{sql: sql, cipher: cipher}
}

// Resolve returns the plaintext key for userID. It fails with
// domain.ErrNoCredential when nothing is stored and with
// domain.ErrDecryptionFailure when the stored value cannot be opened.
func (s *Store) Resolve(ctx context.Context, userID string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectProfileGeminiKey, userID)
	var sealed string
	if err := row.Scan(&sealed); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrNoCredential
		}
		return "", fmt.Errorf("load credential: %w", err)
	}
	sealed = strings.TrimSpace(sealed)
	if sealed == "" {
		return "", domain.ErrNoCredential
	}
	key, err := s.cipher.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryptionFailure, err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrNoCredential
	}
	return key, nil
}

// SetGeminiAPIKey seals key and stores it on the user's profile.
func (s *Store) SetGeminiAPIKey(ctx context.Context, userID, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("gemini api key is required")
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}
	sealed, err := s.cipher.Seal(key)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertProfileGeminiKey, userID, sealed)
	return err
}
