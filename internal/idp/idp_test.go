package idp_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/idp"
	"healthcare-records-api/internal/store"
)

const secret = "idp-test-secret"

func memoryProvider() *idp.Service {
	return idp.New(idp.NewMemoryAccounts(), secret, "healthcare.com")
}

func postgresProvider(t *testing.T) *idp.Service {
	t.Helper()
	_ = godotenv.Load("../../.env")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := store.NewPool(ctx, dbURL, 4, 0)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(pool.Close)
	st := store.New(pool)
	if _, err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return idp.New(st, secret, "test.healthcare.com")
}

func uniquePhone() string {
	return fmt.Sprintf("555%s", uuid.New().String()[:8])
}

func TestProviders(t *testing.T) {
	providers := map[string]func(*testing.T) *idp.Service{
		"memory":   func(*testing.T) *idp.Service { return memoryProvider() },
		"postgres": postgresProvider,
	}
	for name, mk := range providers {
		t.Run(name, func(t *testing.T) {
			p := mk(t)
			t.Run("register and sign in", func(t *testing.T) { testRegisterSignIn(t, p) })
			t.Run("duplicate", func(t *testing.T) { testDuplicate(t, p) })
			t.Run("weak secret", func(t *testing.T) { testWeakSecret(t, p) })
			t.Run("sign out revokes refresh", func(t *testing.T) { testSignOut(t, p) })
			t.Run("refresh rotation", func(t *testing.T) { testRefreshRotation(t, p) })
			t.Run("remove", func(t *testing.T) { testRemove(t, p) })
		})
	}
}

func testRegisterSignIn(t *testing.T, p *idp.Service) {
	ctx := context.Background()
	phone := uniquePhone()
	reg, err := p.Register(ctx, phone, "hunter2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.SubjectID == "" || reg.AccessToken == "" || reg.RefreshToken == "" {
		t.Fatalf("incomplete session: %+v", reg)
	}
	if reg.Email != p.Email(phone) {
		t.Errorf("email = %q, want %q", reg.Email, p.Email(phone))
	}

	sess, err := p.SignIn(ctx, phone, "hunter2")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if sess.SubjectID != reg.SubjectID {
		t.Errorf("subject changed across sign in: %s vs %s", sess.SubjectID, reg.SubjectID)
	}
	if sub, ok := p.CurrentSubject(ctx, sess.AccessToken); !ok || sub != reg.SubjectID {
		t.Errorf("CurrentSubject = %q,%v", sub, ok)
	}

	if _, err := p.SignIn(ctx, phone, "hunter3"); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Errorf("wrong secret: got %v", err)
	}
	if _, err := p.SignIn(ctx, uniquePhone(), "hunter2"); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Errorf("unknown phone: got %v", err)
	}
	if _, ok := p.CurrentSubject(ctx, "garbage"); ok {
		t.Error("garbage token resolved to a subject")
	}
}

func testDuplicate(t *testing.T, p *idp.Service) {
	ctx := context.Background()
	phone := uniquePhone()
	if _, err := p.Register(ctx, phone, "hunter2"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := p.Register(ctx, phone, "other-secret"); !errors.Is(err, apperr.ErrDuplicateAccount) {
		t.Errorf("second register: got %v, want ErrDuplicateAccount", err)
	}
}

func testWeakSecret(t *testing.T, p *idp.Service) {
	_, err := p.Register(context.Background(), uniquePhone(), "12345")
	if !errors.Is(err, apperr.ErrWeakCredential) {
		t.Errorf("got %v, want ErrWeakCredential", err)
	}
	_, err = p.Register(context.Background(), "", "hunter2")
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("empty phone: got %v", err)
	}
}

func testSignOut(t *testing.T, p *idp.Service) {
	ctx := context.Background()
	sess, err := p.Register(ctx, uniquePhone(), "hunter2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := p.SignOut(ctx, sess.SubjectID); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := p.Refresh(ctx, sess.RefreshToken); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Errorf("refresh after sign out: got %v", err)
	}
}

func testRefreshRotation(t *testing.T, p *idp.Service) {
	ctx := context.Background()
	sess, err := p.Register(ctx, uniquePhone(), "hunter2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	next, err := p.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == sess.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	if sub, ok := p.CurrentSubject(ctx, next.AccessToken); !ok || sub != sess.SubjectID {
		t.Errorf("rotated access token resolves to %q,%v", sub, ok)
	}

	// replaying the old token revokes the whole family
	if _, err := p.Refresh(ctx, sess.RefreshToken); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Errorf("replay: got %v", err)
	}
	if _, err := p.Refresh(ctx, next.RefreshToken); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Errorf("family should be revoked after replay, got %v", err)
	}
}

func testRemove(t *testing.T, p *idp.Service) {
	ctx := context.Background()
	phone := uniquePhone()
	sess, err := p.Register(ctx, phone, "hunter2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := p.Remove(ctx, sess.SubjectID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := p.CurrentSubject(ctx, sess.AccessToken); ok {
		t.Error("removed account still resolves")
	}
	if _, err := p.Register(ctx, phone, "hunter2"); err != nil {
		t.Errorf("phone should be free after remove: %v", err)
	}
}
