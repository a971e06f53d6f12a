package models

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenContentBytes is the amount of entropy in a token secret.
const TokenContentBytes = 32

// AuthToken is a one-shot bearer credential bound to a resource name.
// It is consumed on its first validation attempt, successful or not.
type AuthToken struct {
	ID           string `json:"id"`
	ResourceName string `json:"resourceName"`
	Content      string `json:"content"`
	ValidityDate int64  `json:"validityDate"`
}

// NewAuthToken mints a token for resourceName valid until validity.
// The content is Base64 of 32 random bytes.
func NewAuthToken(resourceName string, validity time.Time) (AuthToken, error) {
	buf := make([]byte, TokenContentBytes)
	if _, err := rand.Read(buf); err != nil {
		return AuthToken{}, fmt.Errorf("failed to generate token content: %w", err)
	}
	return AuthToken{
		ID:           uuid.NewString(),
		ResourceName: resourceName,
		Content:      base64.StdEncoding.EncodeToString(buf),
		ValidityDate: validity.Unix(),
	}, nil
}

// IsValidAt reports whether the token is still within its validity window.
func (t AuthToken) IsValidAt(now time.Time) bool {
	return t.ValidityDate > now.Unix()
}

// Validate checks that the token is structurally complete.
func (t AuthToken) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("token id is required")
	}
	if t.ResourceName == "" {
		return fmt.Errorf("token resource name is required")
	}
	if t.Content == "" {
		return fmt.Errorf("token content is required")
	}
	return nil
}
