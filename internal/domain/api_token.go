package domain

import "time"

// APIToken is a bearer token issued to an operator or an internal service.
// Only the SHA-256 hash is stored.
type APIToken struct {
	ID        int64
	TokenHash string
	UserID    int64
	Abilities string
	ExpiresAt *time.Time
}
