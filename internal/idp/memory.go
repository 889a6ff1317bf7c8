package idp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/store"
)

// MemoryAccounts keeps accounts in process, for the memory driver and tests.
type MemoryAccounts struct {
	mu       sync.Mutex
	byEmail  map[string]*store.Account
	subjects map[string]bool
	tokens   map[string]*store.RefreshToken // by hash
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		byEmail:  make(map[string]*store.Account),
		subjects: make(map[string]bool),
		tokens:   make(map[string]*store.RefreshToken),
	}
}

func (m *MemoryAccounts) CreateAccount(_ context.Context, a *store.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[a.Email]; ok {
		return apperr.ErrDuplicateAccount
	}
	cp := *a
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.byEmail[a.Email] = &cp
	m.subjects[a.SubjectID] = true
	return nil
}

func (m *MemoryAccounts) AccountByEmail(_ context.Context, email string) (*store.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byEmail[email]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryAccounts) AccountExists(_ context.Context, subjectID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subjects[subjectID], nil
}

func (m *MemoryAccounts) CreateRefreshToken(_ context.Context, subjectID, tokenHash string, expiresAt time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.tokens[tokenHash] = &store.RefreshToken{
		ID: id, SubjectID: subjectID, TokenHash: tokenHash, ExpiresAt: expiresAt, CreatedAt: time.Now(),
	}
	return id, nil
}

func (m *MemoryAccounts) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*store.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.tokens[tokenHash]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *rt
	return &cp, nil
}

func (m *MemoryAccounts) RotateRefreshToken(_ context.Context, oldID, subjectID, newHash string, newExpiry time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var old *store.RefreshToken
	for _, rt := range m.tokens {
		if rt.ID == oldID {
			old = rt
			break
		}
	}
	if old == nil || old.Revoked {
		return "", apperr.ErrInvalidCredential
	}
	newID := uuid.New().String()
	old.Revoked = true
	old.ReplacedBy = &newID
	m.tokens[newHash] = &store.RefreshToken{
		ID: newID, SubjectID: subjectID, TokenHash: newHash, ExpiresAt: newExpiry, CreatedAt: time.Now(),
	}
	return newID, nil
}

func (m *MemoryAccounts) RevokeAllRefreshTokens(_ context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.tokens {
		if rt.SubjectID == subjectID {
			rt.Revoked = true
		}
	}
	return nil
}

func (m *MemoryAccounts) DeleteAccount(_ context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subjects, subjectID)
	for email, a := range m.byEmail {
		if a.SubjectID == subjectID {
			delete(m.byEmail, email)
		}
	}
	for h, rt := range m.tokens {
		if rt.SubjectID == subjectID {
			delete(m.tokens, h)
		}
	}
	return nil
}
