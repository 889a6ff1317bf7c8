package store

import (
	"context"
	"time"
)

type Account struct {
	SubjectID    string
	Email        string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *Store) CreateAccount(ctx context.Context, a *Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO admin_accounts (subject_id, email, phone, password_hash) VALUES ($1,$2,$3,$4)`,
		a.SubjectID, a.Email, a.Phone, a.PasswordHash,
	)
	return mapErr(err)
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	a := &Account{}
	err := s.pool.QueryRow(ctx,
		`SELECT subject_id, email, phone, password_hash, created_at, updated_at
		 FROM admin_accounts WHERE email = $1`, email,
	).Scan(&a.SubjectID, &a.Email, &a.Phone, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

func (s *Store) AccountExists(ctx context.Context, subjectID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM admin_accounts WHERE subject_id = $1)`, subjectID,
	).Scan(&ok)
	return ok, mapErr(err)
}

// DeleteAccount removes an account and, by cascade, its refresh tokens.
// Used to undo a registration whose profile write failed.
func (s *Store) DeleteAccount(ctx context.Context, subjectID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM admin_accounts WHERE subject_id = $1`, subjectID)
	return mapErr(err)
}
