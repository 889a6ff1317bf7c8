// Package records creates, reads, updates and deletes the hospital's
// documents on behalf of an identity. Every query and write is scoped by
// the planner; nothing here trusts ids supplied by the caller.
package records

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/docstore"
	"healthcare-records-api/internal/identity"
	"healthcare-records-api/internal/model"
	"healthcare-records-api/internal/scope"
)

type Service struct {
	store   docstore.Store
	planner *scope.Planner
	log     zerolog.Logger
	now     func() time.Time
}

func New(store docstore.Store, planner *scope.Planner, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		planner: planner,
		log:     log.With().Str("component", "records").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// list runs the scoped query for c and decodes the result in order.
func list[T any](ctx context.Context, s *Service, who identity.Identity, c model.Collection, qc scope.Context, order func(a, b T) int) ([]T, error) {
	sc, err := s.planner.Plan(ctx, who, c, scope.Read, qc)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.Find(ctx, c, sc.Where)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	return sorted(recs, order)
}

// create stamps owner and audit fields onto doc and inserts it.
func create[T any](ctx context.Context, s *Service, who identity.Identity, c model.Collection, qc scope.Context, doc docstore.Fields) (T, error) {
	var out T
	sc, err := s.planner.Plan(ctx, who, c, scope.Write, qc)
	if err != nil {
		return out, err
	}
	for k, v := range sc.Stamp {
		doc[k] = v
	}
	doc[model.FieldCreatedAt] = s.now()
	id, err := s.store.Insert(ctx, c, doc)
	if err != nil {
		return out, fmt.Errorf("create %s: %w", c, err)
	}
	s.log.Debug().Str("collection", string(c)).Str("id", id).Str("role", string(who.Role())).Msg("created")
	if err := docstore.Decode(docstore.Record{ID: id, Fields: doc}, &out); err != nil {
		return out, err
	}
	return out, nil
}

// fetch returns the in-scope record id of c decoded into T.
func fetch[T any](ctx context.Context, s *Service, who identity.Identity, c model.Collection, id string, a scope.Access) (T, error) {
	var out T
	rec, err := s.locate(ctx, who, c, id, a)
	if err != nil {
		return out, err
	}
	if err := docstore.Decode(rec, &out); err != nil {
		return out, err
	}
	return out, nil
}

// locate loads id from c and checks it against the caller's scope. Records
// outside the scope are reported as missing.
func (s *Service) locate(ctx context.Context, who identity.Identity, c model.Collection, id string, a scope.Access) (docstore.Record, error) {
	_, isDoctor := who.(identity.Doctor)
	perPatient := c.Child() && isDoctor

	var sc scope.Scope
	var err error
	if !perPatient {
		if sc, err = s.planner.Plan(ctx, who, c, a, scope.Context{}); err != nil {
			return docstore.Record{}, err
		}
	}
	if id == "" {
		return docstore.Record{}, fmt.Errorf("%w: id required", apperr.ErrInvalidArgument)
	}
	rec, err := s.store.Get(ctx, c, id)
	if err != nil {
		return docstore.Record{}, fmt.Errorf("%s %s: %w", c, id, err)
	}
	if perPatient {
		pid, _ := rec.Fields[model.FieldPatientID].(string)
		if pid == "" {
			return docstore.Record{}, fmt.Errorf("%s %s: %w", c, id, apperr.ErrNotFound)
		}
		if sc, err = s.planner.Plan(ctx, who, c, a, scope.Context{PatientID: pid}); err != nil {
			return docstore.Record{}, err
		}
	}
	if !sc.Allows(rec.Fields) {
		return docstore.Record{}, fmt.Errorf("%s %s: %w", c, id, apperr.ErrNotFound)
	}
	return rec, nil
}

// UpdateFields applies f to an in-scope record. Owner fields are dropped
// from f and updatedAt is stamped.
func (s *Service) UpdateFields(ctx context.Context, who identity.Identity, c model.Collection, id string, f docstore.Fields) error {
	if _, err := s.locate(ctx, who, c, id, scope.Write); err != nil {
		return err
	}
	patch := make(docstore.Fields, len(f)+1)
	for k, v := range f {
		patch[k] = v
	}
	for _, k := range c.OwnerFields() {
		delete(patch, k)
	}
	patch[model.FieldUpdatedAt] = s.now()
	if err := s.store.Update(ctx, c, id, patch); err != nil {
		return fmt.Errorf("update %s %s: %w", c, id, err)
	}
	return nil
}

// Delete removes an in-scope record. Records that reference it are left
// in place.
func (s *Service) Delete(ctx context.Context, who identity.Identity, c model.Collection, id string) error {
	if _, err := s.locate(ctx, who, c, id, scope.Write); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, c, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", c, id, err)
	}
	s.log.Debug().Str("collection", string(c)).Str("id", id).Str("role", string(who.Role())).Msg("deleted")
	return nil
}

// Watch pushes the caller's scoped view of c to fn after every change,
// starting with the current contents. The subscription ends when the
// returned function is called or ctx is done.
func (s *Service) Watch(ctx context.Context, who identity.Identity, c model.Collection, patientID string, fn docstore.Listener) (docstore.Unsubscribe, error) {
	sc, err := s.planner.Plan(ctx, who, c, scope.Read, scope.Context{PatientID: patientID})
	if err != nil {
		return nil, err
	}
	stop, err := s.store.Subscribe(ctx, c, sc.Where, fn)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", c, err)
	}
	return stop, nil
}

// Snapshot decodes a Watch delivery into the typed entities List returns,
// in the same order.
func Snapshot(c model.Collection, recs []docstore.Record) (any, error) {
	switch c {
	case model.Doctors:
		return sorted(recs, newestFirst(doctorCreated))
	case model.Patients:
		return sorted(recs, newestFirst(patientCreated))
	case model.Reports:
		return sorted(recs, newestFirst(reportCreated))
	case model.Reminders:
		return sorted(recs, reminderOrder)
	case model.Prescriptions:
		return sorted(recs, newestFirst(prescriptionCreated))
	}
	return nil, fmt.Errorf("%w: collection %q cannot be watched", apperr.ErrInvalidArgument, c)
}

func newestFirst[T any](created func(T) time.Time) func(a, b T) int {
	return func(a, b T) int { return created(b).Compare(created(a)) }
}

// sorted decodes recs and orders them. Records that compare equal come out
// in reverse store order, so same-millisecond writes stay newest first.
func sorted[T any](recs []docstore.Record, order func(a, b T) int) ([]T, error) {
	out, err := decodeAll[T](recs)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	slices.SortStableFunc(out, order)
	return out, nil
}

func decodeAll[T any](recs []docstore.Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		var v T
		if err := docstore.Decode(r, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// phoneTaken reports whether another record of c already uses phone.
func (s *Service) phoneTaken(ctx context.Context, c model.Collection, phone, self string) error {
	recs, err := s.store.GetWhere(ctx, c, model.FieldPhone, phone)
	if err != nil {
		return fmt.Errorf("check %s phone: %w", c, err)
	}
	for _, r := range recs {
		if r.ID != self {
			return fmt.Errorf("%w: %s phone %s in use", apperr.ErrDuplicateAccount, c, phone)
		}
	}
	return nil
}

// matches is the search rule: case-insensitive substring on any field.
func matches(term string, fields ...string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}
