package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/drone-bridge/drone-bridge-server/internal/models"
)

// CreateCredential creates a bridge credential
func (s *PostgresStore) CreateCredential(ctx context.Context, cred *models.Credential) error {
	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO credentials (id, created_at, name, secret_hash, is_active)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.getDB().ExecContext(ctx, query,
		cred.ID, cred.CreatedAt, cred.Name, cred.SecretHash, cred.IsActive,
	)

	return err
}

// GetCredential gets a credential by ID
func (s *PostgresStore) GetCredential(ctx context.Context, id uuid.UUID) (*models.Credential, error) {
	query := `
		SELECT id, created_at, name, secret_hash, is_active, last_used_at
		FROM credentials WHERE id = $1`

	var cred models.Credential
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&cred.ID, &cred.CreatedAt, &cred.Name, &cred.SecretHash,
		&cred.IsActive, &cred.LastUsedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// ListCredentials lists credentials, optionally only active ones
func (s *PostgresStore) ListCredentials(ctx context.Context, activeOnly bool) ([]*models.Credential, error) {
	query := `
		SELECT id, created_at, name, secret_hash, is_active, last_used_at
		FROM credentials`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at`

	rows, err := s.getDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		var cred models.Credential
		err := rows.Scan(
			&cred.ID, &cred.CreatedAt, &cred.Name, &cred.SecretHash,
			&cred.IsActive, &cred.LastUsedAt,
		)
		if err != nil {
			return nil, err
		}
		creds = append(creds, &cred)
	}

	return creds, rows.Err()
}

// UpdateCredential updates a credential
func (s *PostgresStore) UpdateCredential(ctx context.Context, cred *models.Credential) error {
	query := `
		UPDATE credentials SET
			name = $2, secret_hash = $3, is_active = $4, last_used_at = $5
		WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		cred.ID, cred.Name, cred.SecretHash, cred.IsActive, cred.LastUsedAt,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCredential deletes a credential
func (s *PostgresStore) DeleteCredential(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
