// Package session turns client-held markers into an identity and performs
// the four kinds of login plus logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/auth"
	"healthcare-records-api/internal/credential"
	"healthcare-records-api/internal/docstore"
	"healthcare-records-api/internal/identity"
	"healthcare-records-api/internal/idp"
	"healthcare-records-api/internal/model"
)

// Session is the outcome of a login, registration or refresh.
type Session struct {
	Identity     identity.Identity
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
}

// AdminProfile is what an admin supplies at registration.
type AdminProfile struct {
	Name         string `json:"name"`
	HospitalName string `json:"hospitalName"`
}

type Resolver struct {
	store  docstore.Store
	creds  *credential.Accessor
	idp    idp.Provider
	secret string
	ttl    time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

// NewResolver builds a Resolver. ttl bounds doctor and patient sessions;
// admin sessions follow the identity provider.
func NewResolver(store docstore.Store, creds *credential.Accessor, provider idp.Provider, secret string, ttl time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		creds:  creds,
		idp:    provider,
		secret: secret,
		ttl:    ttl,
		log:    log.With().Str("component", "session").Logger(),
		now:    time.Now,
	}
}

// Resolve classifies the holder of m. Doctor markers win over patient
// markers, which win over an admin session. A marker that cannot be
// trusted yields ErrUnresolvedIdentity; callers should ForceLogout.
func (r *Resolver) Resolve(ctx context.Context, m Markers) (identity.Identity, error) {
	if tok := m.Get(DoctorMarker); tok != "" {
		var d model.Doctor
		if err := r.load(ctx, tok, identity.RoleDoctor, model.Doctors, &d); err != nil {
			return nil, err
		}
		return doctorIdentity(d), nil
	}
	if tok := m.Get(PatientMarker); tok != "" {
		var p model.Patient
		if err := r.load(ctx, tok, identity.RolePatient, model.Patients, &p); err != nil {
			return nil, err
		}
		return patientIdentity(p), nil
	}
	if sub, ok := r.idp.CurrentSubject(ctx, m.Get(AdminMarker)); ok {
		return identity.Admin{SubjectID: sub}, nil
	}
	return identity.Anonymous{}, nil
}

// load verifies a doctor or patient session token and reads the record it names.
func (r *Resolver) load(ctx context.Context, tok string, role identity.Role, c model.Collection, v any) error {
	claims, err := auth.ParseToken(tok, r.secret)
	if err != nil {
		return fmt.Errorf("%w: %s marker: %v", apperr.ErrUnresolvedIdentity, role, err)
	}
	if claims.Role != string(role) {
		return fmt.Errorf("%w: %s marker carries role %q", apperr.ErrUnresolvedIdentity, role, claims.Role)
	}
	rec, err := r.store.Get(ctx, c, claims.Subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%w: %s %s no longer exists", apperr.ErrUnresolvedIdentity, role, claims.Subject)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", role, err)
	}
	return docstore.Decode(rec, v)
}

func (r *Resolver) RegisterAdmin(ctx context.Context, m Markers, phone, secret string, profile AdminProfile) (Session, error) {
	if strings.TrimSpace(profile.Name) == "" || strings.TrimSpace(profile.HospitalName) == "" {
		return Session{}, fmt.Errorf("%w: name and hospitalName required", apperr.ErrInvalidArgument)
	}
	sess, err := r.idp.Register(ctx, phone, secret)
	if err != nil {
		return Session{}, err
	}

	doc, err := docstore.Encode(model.Admin{
		SubjectID:    sess.SubjectID,
		Phone:        strings.TrimSpace(phone),
		Name:         profile.Name,
		HospitalName: profile.HospitalName,
		Email:        sess.Email,
		Role:         string(identity.RoleAdmin),
		CreatedAt:    r.now().UTC(),
	})
	if err == nil {
		_, err = r.store.Insert(ctx, model.Admins, doc)
	}
	if err != nil {
		if rerr := r.idp.Remove(ctx, sess.SubjectID); rerr != nil {
			r.log.Error().Err(rerr).Str("subject", sess.SubjectID).Msg("rollback of admin registration failed")
		}
		return Session{}, fmt.Errorf("store admin profile: %w", err)
	}

	r.log.Info().Str("subject", sess.SubjectID).Msg("admin registered")
	return r.startAdmin(m, sess), nil
}

func (r *Resolver) LoginAdmin(ctx context.Context, m Markers, phone, secret string) (Session, error) {
	sess, err := r.idp.SignIn(ctx, phone, secret)
	if err != nil {
		return Session{}, err
	}
	return r.startAdmin(m, sess), nil
}

// Refresh rotates the admin refresh marker.
func (r *Resolver) Refresh(ctx context.Context, m Markers) (Session, error) {
	sess, err := r.idp.Refresh(ctx, m.Get(RefreshMarker))
	if err != nil {
		return Session{}, err
	}
	return r.startAdmin(m, sess), nil
}

func (r *Resolver) startAdmin(m Markers, sess idp.Session) Session {
	m.Clear(DoctorMarker)
	m.Clear(PatientMarker)
	m.Set(AdminMarker, sess.AccessToken, auth.AccessTTL)
	m.Set(RefreshMarker, sess.RefreshToken, auth.RefreshTTL)
	return Session{
		Identity:     identity.Admin{SubjectID: sess.SubjectID},
		Token:        sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
	}
}

func (r *Resolver) LoginDoctor(ctx context.Context, m Markers, phone, secret string) (Session, error) {
	rec, err := r.creds.Authenticate(ctx, model.Doctors, phone, secret)
	if err != nil {
		return Session{}, err
	}
	var d model.Doctor
	if err := docstore.Decode(rec, &d); err != nil {
		return Session{}, err
	}
	return r.start(m, DoctorMarker, PatientMarker, doctorIdentity(d))
}

func (r *Resolver) LoginPatient(ctx context.Context, m Markers, phone, secret string) (Session, error) {
	rec, err := r.creds.Authenticate(ctx, model.Patients, phone, secret)
	if err != nil {
		return Session{}, err
	}
	var p model.Patient
	if err := docstore.Decode(rec, &p); err != nil {
		return Session{}, err
	}
	return r.start(m, PatientMarker, DoctorMarker, patientIdentity(p))
}

// start signs a session token for who and stores it under marker,
// dropping the other role's marker so it cannot shadow the new login.
func (r *Resolver) start(m Markers, marker, other string, who identity.Identity) (Session, error) {
	tok, err := auth.MakeToken(who.ID(), string(who.Role()), r.secret, r.ttl)
	if err != nil {
		return Session{}, err
	}
	m.Clear(other)
	m.Set(marker, tok, r.ttl)
	r.log.Info().Str("role", string(who.Role())).Str("id", who.ID()).Msg("login")
	return Session{Identity: who, Token: tok, ExpiresAt: r.now().Add(r.ttl)}, nil
}

// Logout clears the doctor and patient markers whatever who is. Admins are
// also signed out of the identity provider. Safe to repeat.
func (r *Resolver) Logout(ctx context.Context, m Markers, who identity.Identity) error {
	m.Clear(DoctorMarker)
	m.Clear(PatientMarker)
	admin, ok := who.(identity.Admin)
	if !ok {
		return nil
	}
	m.Clear(AdminMarker)
	m.Clear(RefreshMarker)
	if err := r.idp.SignOut(ctx, admin.SubjectID); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// ForceLogout drops every marker. It is the remedy for ErrUnresolvedIdentity.
func (r *Resolver) ForceLogout(m Markers) {
	for _, name := range AllMarkers {
		m.Clear(name)
	}
}

// Profile returns the stored document describing who: model.Admin,
// model.Doctor or model.Patient. Anonymous callers have none.
func (r *Resolver) Profile(ctx context.Context, who identity.Identity) (any, error) {
	switch w := who.(type) {
	case identity.Admin:
		recs, err := r.store.GetWhere(ctx, model.Admins, "subjectId", w.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("load admin profile: %w", err)
		}
		if len(recs) == 0 {
			return nil, fmt.Errorf("admin %s profile: %w", w.SubjectID, apperr.ErrNotFound)
		}
		var a model.Admin
		err = docstore.Decode(recs[0], &a)
		return a, err
	case identity.Doctor:
		var d model.Doctor
		err := r.get(ctx, model.Doctors, w.DoctorID, &d)
		return d, err
	case identity.Patient:
		var p model.Patient
		err := r.get(ctx, model.Patients, w.PatientID, &p)
		return p, err
	}
	return nil, fmt.Errorf("%w: not signed in", apperr.ErrUnauthorized)
}

func (r *Resolver) get(ctx context.Context, c model.Collection, id string, v any) error {
	rec, err := r.store.Get(ctx, c, id)
	if err != nil {
		return fmt.Errorf("load %s %s: %w", c, id, err)
	}
	return docstore.Decode(rec, v)
}

func doctorIdentity(d model.Doctor) identity.Doctor {
	return identity.Doctor{DoctorID: d.ID, Name: d.Name, Phone: d.Phone, HospitalID: d.HospitalID}
}

func patientIdentity(p model.Patient) identity.Patient {
	return identity.Patient{PatientID: p.ID, Name: p.Name, DoctorID: p.DoctorID}
}
