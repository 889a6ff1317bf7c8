package credential_test

import (
	"context"
	"errors"
	"testing"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/auth"
	"healthcare-records-api/internal/credential"
	"healthcare-records-api/internal/docstore"
	"healthcare-records-api/internal/model"
)

func seed(t *testing.T) *credential.Accessor {
	t.Helper()
	st := docstore.NewMemory()
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ctx := context.Background()
	if _, err := st.Insert(ctx, model.Doctors, docstore.Fields{"name": "Dr A", "phone": "6660002", "secretHash": hash}); err != nil {
		t.Fatalf("seed doctor: %v", err)
	}
	if _, err := st.Insert(ctx, model.Patients, docstore.Fields{"name": "Pat", "phone": "7770003", "secretHash": hash}); err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	return credential.New(st)
}

func TestAuthenticate(t *testing.T) {
	a := seed(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		collection model.Collection
		phone      string
		secret     string
		want       error
	}{
		{"doctor ok", model.Doctors, "6660002", "s3cret", nil},
		{"patient ok", model.Patients, "7770003", "s3cret", nil},
		{"wrong secret", model.Doctors, "6660002", "nope", apperr.ErrInvalidCredential},
		{"empty secret", model.Patients, "7770003", "", apperr.ErrInvalidCredential},
		{"unknown phone", model.Doctors, "0000000", "s3cret", apperr.ErrNotFound},
		{"phone in other collection", model.Patients, "6660002", "s3cret", apperr.ErrNotFound},
		{"empty phone", model.Doctors, " ", "s3cret", apperr.ErrInvalidArgument},
		{"reports hold no credentials", model.Reports, "6660002", "s3cret", apperr.ErrUnauthorized},
		{"admins go through the provider", model.Admins, "5550001", "hunter2", apperr.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := a.Authenticate(ctx, tt.collection, tt.phone, tt.secret)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if rec.Fields["phone"] != tt.phone {
					t.Errorf("got record for %v", rec.Fields["phone"])
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifyWithoutHash(t *testing.T) {
	a := credential.New(docstore.NewMemory())
	rec := docstore.Record{ID: "x", Fields: docstore.Fields{"phone": "1"}}
	if err := a.Verify(rec, "anything"); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Errorf("record without hash must never verify, got %v", err)
	}
}
