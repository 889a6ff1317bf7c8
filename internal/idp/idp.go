// Package idp is the identity provider used by admins only. Phones are
// turned into email-shaped handles because accounts are keyed by email.
package idp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/auth"
	"healthcare-records-api/internal/identity"
	"healthcare-records-api/internal/store"
)

// MinSecretLen is the shortest secret Register accepts.
const MinSecretLen = 6

// Session is what a successful register, sign-in or refresh hands back.
type Session struct {
	SubjectID    string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Provider is the contract the session layer depends on.
type Provider interface {
	Register(ctx context.Context, phone, secret string) (Session, error)
	SignIn(ctx context.Context, phone, secret string) (Session, error)
	SignOut(ctx context.Context, subjectID string) error
	CurrentSubject(ctx context.Context, accessToken string) (string, bool)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	Remove(ctx context.Context, subjectID string) error
	Email(phone string) string
}

// Accounts is satisfied by *store.Store and *MemoryAccounts.
type Accounts interface {
	CreateAccount(ctx context.Context, a *store.Account) error
	AccountByEmail(ctx context.Context, email string) (*store.Account, error)
	AccountExists(ctx context.Context, subjectID string) (bool, error)
	CreateRefreshToken(ctx context.Context, subjectID, tokenHash string, expiresAt time.Time) (string, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*store.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, subjectID, newHash string, newExpiry time.Time) (string, error)
	RevokeAllRefreshTokens(ctx context.Context, subjectID string) error
	DeleteAccount(ctx context.Context, subjectID string) error
}

type Service struct {
	accounts Accounts
	secret   string
	domain   string
	now      func() time.Time
}

func New(accounts Accounts, secret, domain string) *Service {
	return &Service{accounts: accounts, secret: secret, domain: domain, now: time.Now}
}

func (s *Service) Email(phone string) string {
	return strings.TrimSpace(phone) + "@" + s.domain
}

func (s *Service) Register(ctx context.Context, phone, secret string) (Session, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || secret == "" {
		return Session{}, fmt.Errorf("%w: phone and secret required", apperr.ErrInvalidArgument)
	}
	if len(secret) < MinSecretLen {
		return Session{}, fmt.Errorf("%w: secret must be at least %d characters", apperr.ErrWeakCredential, MinSecretLen)
	}

	hash, err := auth.HashPassword(secret)
	if err != nil {
		return Session{}, fmt.Errorf("hash secret: %w", err)
	}
	a := &store.Account{
		SubjectID:    uuid.New().String(),
		Email:        s.Email(phone),
		Phone:        phone,
		PasswordHash: hash,
	}
	if err := s.accounts.CreateAccount(ctx, a); err != nil {
		return Session{}, fmt.Errorf("register %s: %w", a.Email, err)
	}
	return s.issue(ctx, a.SubjectID, a.Email)
}

func (s *Service) SignIn(ctx context.Context, phone, secret string) (Session, error) {
	a, err := s.accounts.AccountByEmail(ctx, s.Email(phone))
	if errors.Is(err, apperr.ErrNotFound) {
		return Session{}, apperr.ErrInvalidCredential
	}
	if err != nil {
		return Session{}, fmt.Errorf("sign in: %w", err)
	}
	if !auth.CheckPassword(a.PasswordHash, secret) {
		return Session{}, apperr.ErrInvalidCredential
	}
	return s.issue(ctx, a.SubjectID, a.Email)
}

func (s *Service) SignOut(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return nil
	}
	if err := s.accounts.RevokeAllRefreshTokens(ctx, subjectID); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Remove deletes an account outright. Register callers use it to roll back
// when the profile write that follows registration fails.
func (s *Service) Remove(ctx context.Context, subjectID string) error {
	if err := s.accounts.DeleteAccount(ctx, subjectID); err != nil {
		return fmt.Errorf("remove %s: %w", subjectID, err)
	}
	return nil
}

// CurrentSubject reports the live subject behind accessToken. Expired,
// foreign or orphaned tokens report no subject.
func (s *Service) CurrentSubject(ctx context.Context, accessToken string) (string, bool) {
	if accessToken == "" {
		return "", false
	}
	c, err := auth.ParseToken(accessToken, s.secret)
	if err != nil || c.Role != string(identity.RoleAdmin) {
		return "", false
	}
	ok, err := s.accounts.AccountExists(ctx, c.Subject)
	if err != nil || !ok {
		return "", false
	}
	return c.Subject, true
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, apperr.ErrInvalidCredential
	}
	rt, err := s.accounts.GetRefreshTokenByHash(ctx, auth.HashRefreshToken(refreshToken))
	if errors.Is(err, apperr.ErrNotFound) {
		return Session{}, apperr.ErrInvalidCredential
	}
	if err != nil {
		return Session{}, fmt.Errorf("refresh: %w", err)
	}
	if rt.Revoked {
		// reuse of a rotated token: assume theft, kill the family
		_ = s.accounts.RevokeAllRefreshTokens(ctx, rt.SubjectID)
		return Session{}, apperr.ErrInvalidCredential
	}
	if s.now().After(rt.ExpiresAt) {
		return Session{}, apperr.ErrInvalidCredential
	}

	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return Session{}, err
	}
	if _, err := s.accounts.RotateRefreshToken(ctx, rt.ID, rt.SubjectID, hash, s.now().Add(auth.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("refresh: %w", err)
	}
	access, err := auth.MakeToken(rt.SubjectID, string(identity.RoleAdmin), s.secret, auth.AccessTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{
		SubjectID:    rt.SubjectID,
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresAt:    s.now().Add(auth.AccessTTL),
	}, nil
}

func (s *Service) issue(ctx context.Context, subjectID, email string) (Session, error) {
	access, err := auth.MakeToken(subjectID, string(identity.RoleAdmin), s.secret, auth.AccessTTL)
	if err != nil {
		return Session{}, err
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return Session{}, err
	}
	if _, err := s.accounts.CreateRefreshToken(ctx, subjectID, hash, s.now().Add(auth.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Session{
		SubjectID:    subjectID,
		Email:        email,
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresAt:    s.now().Add(auth.AccessTTL),
	}, nil
}
