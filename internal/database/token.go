package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const apiTokenKey = "api_token_hash"

// MinTokenLength is the minimum accepted API token length.
const MinTokenLength = 16

// SetAPIToken stores a bcrypt hash of token, replacing any existing token.
func (d *Database) SetAPIToken(ctx context.Context, token string) error {
	if len(token) < MinTokenLength {
		return fmt.Errorf("token must be at least %d characters", MinTokenLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash token: %w", err)
	}
	return d.SetMetadata(ctx, apiTokenKey, string(hash))
}

// APITokenConfigured reports whether an API token has been configured.
// Without one the publish API is open. A lookup failure is returned as an
// error so callers never mistake it for an unconfigured token.
func (d *Database) APITokenConfigured(ctx context.Context) (bool, error) {
	hash, err := d.GetMetadata(ctx, apiTokenKey)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read API token: %w", err)
	}
	return hash != "", nil
}

// VerifyAPIToken checks token against the stored hash.
func (d *Database) VerifyAPIToken(ctx context.Context, token string) bool {
	hash, err := d.GetMetadata(ctx, apiTokenKey)
	if err != nil || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// ClearAPIToken removes the stored token.
func (d *Database) ClearAPIToken(ctx context.Context) error {
	return d.SetMetadata(ctx, apiTokenKey, "")
}
