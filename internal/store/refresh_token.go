package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"healthcare-records-api/internal/apperr"
)

type RefreshToken struct {
	ID         string
	SubjectID  string
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy *string
	CreatedAt  time.Time
}

func (s *Store) CreateRefreshToken(ctx context.Context, subjectID, tokenHash string, expiresAt time.Time) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, subject_id, token_hash, expires_at) VALUES ($1,$2,$3,$4)`,
		id, subjectID, tokenHash, expiresAt,
	)
	return id, mapErr(err)
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	rt := &RefreshToken{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, subject_id, token_hash, expires_at, revoked, replaced_by, created_at
		 FROM refresh_tokens WHERE token_hash = $1`, tokenHash,
	).Scan(&rt.ID, &rt.SubjectID, &rt.TokenHash, &rt.ExpiresAt, &rt.Revoked, &rt.ReplacedBy, &rt.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return rt, nil
}

// rotate: revoke old token, create new one, link them
func (s *Store) RotateRefreshToken(ctx context.Context, oldID, subjectID, newHash string, newExpiry time.Time) (string, error) {
	newID := uuid.New().String()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", mapErr(err)
	}
	defer tx.Rollback(ctx)

	// only a live token may be rotated; a concurrent rotation loses here
	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true, replaced_by = $1 WHERE id = $2 AND revoked = false`,
		newID, oldID,
	)
	if err != nil {
		return "", mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return "", apperr.ErrInvalidCredential
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, subject_id, token_hash, expires_at) VALUES ($1,$2,$3,$4)`,
		newID, subjectID, newHash, newExpiry,
	)
	if err != nil {
		return "", mapErr(err)
	}

	return newID, mapErr(tx.Commit(ctx))
}

// revoke all tokens for a subject (on sign-out or suspected theft)
func (s *Store) RevokeAllRefreshTokens(ctx context.Context, subjectID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE subject_id = $1 AND revoked = false`,
		subjectID,
	)
	return mapErr(err)
}
