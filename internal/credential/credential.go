// Package credential authenticates doctors and patients against their own
// stored documents. Admins go through the identity provider instead.
package credential

import (
	"context"
	"fmt"
	"strings"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/auth"
	"healthcare-records-api/internal/docstore"
	"healthcare-records-api/internal/model"
)

type Accessor struct {
	store docstore.Store
}

func New(store docstore.Store) *Accessor {
	return &Accessor{store: store}
}

// FindByPhone returns the single record of c whose phone equals phone.
// Only doctors and patients carry credentials.
func (a *Accessor) FindByPhone(ctx context.Context, c model.Collection, phone string) (docstore.Record, error) {
	if c != model.Doctors && c != model.Patients {
		return docstore.Record{}, fmt.Errorf("%w: %s holds no credentials", apperr.ErrUnauthorized, c)
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return docstore.Record{}, fmt.Errorf("%w: phone required", apperr.ErrInvalidArgument)
	}
	recs, err := a.store.GetWhere(ctx, c, model.FieldPhone, phone)
	if err != nil {
		return docstore.Record{}, fmt.Errorf("find %s by phone: %w", c, err)
	}
	if len(recs) == 0 {
		return docstore.Record{}, fmt.Errorf("%w: no %s with that phone", apperr.ErrNotFound, c)
	}
	return recs[0], nil
}

// Verify checks secret against the record's stored hash.
func (a *Accessor) Verify(rec docstore.Record, secret string) error {
	hash, _ := rec.Fields[model.FieldSecretHash].(string)
	if secret == "" || !auth.CheckPassword(hash, secret) {
		return apperr.ErrInvalidCredential
	}
	return nil
}

// Authenticate is FindByPhone followed by Verify. A known phone with the
// wrong secret is always ErrInvalidCredential, never ErrNotFound.
func (a *Accessor) Authenticate(ctx context.Context, c model.Collection, phone, secret string) (docstore.Record, error) {
	rec, err := a.FindByPhone(ctx, c, phone)
	if err != nil {
		return docstore.Record{}, err
	}
	if err := a.Verify(rec, secret); err != nil {
		return docstore.Record{}, err
	}
	return rec, nil
}
