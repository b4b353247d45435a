package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential represents a provisioned bridge credential: the SHA-256 hex
// digest of a shared secret. The salted per-session expectation is derived
// from SecretHash at validation time and never stored.
type Credential struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	Name       string `json:"name" db:"name"`
	SecretHash string `json:"-" db:"secret_hash"`

	IsActive   bool       `json:"isActive" db:"is_active"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty" db:"last_used_at"`
}
