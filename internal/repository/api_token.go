package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"expertpay/internal/domain"
)

type APITokenRepository struct {
	db *sql.DB
}

func NewAPITokenRepository(db *sql.DB) *APITokenRepository {
	return &APITokenRepository{db: db}
}

// FindByPlainToken resolves a bearer token to its stored record. Tokens are
// stored as SHA-256 hex hashes; the plain token never touches the database.
func (r *APITokenRepository) FindByPlainToken(ctx context.Context, plainToken string) (*domain.APIToken, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return nil, errors.New("empty token")
	}

	sum := sha256.Sum256([]byte(plainToken))
	hash := hex.EncodeToString(sum[:])

	query := `
		SELECT id, token, user_id, abilities, expires_at
		FROM api_tokens
		WHERE token = $1
		  AND (expires_at IS NULL OR expires_at > $2)
		LIMIT 1
	`

	var t domain.APIToken
	err := r.db.QueryRowContext(ctx, query, hash, time.Now()).Scan(
		&t.ID,
		&t.TokenHash,
		&t.UserID,
		&t.Abilities,
		&t.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("token not found")
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
