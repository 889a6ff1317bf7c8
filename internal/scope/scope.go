// Package scope decides which records an identity may touch. Every read and
// write in the records service goes through Plan; the returned predicate is
// pushed into the store query and the stamp is merged into new documents.
package scope

import (
	"context"
	"errors"
	"fmt"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/docstore"
	"healthcare-records-api/internal/identity"
	"healthcare-records-api/internal/model"
)

type Access int

const (
	Read Access = iota
	Write
)

func (a Access) String() string {
	if a == Write {
		return "write"
	}
	return "read"
}

// Context carries the UI-level selection a plan may depend on.
type Context struct {
	// PatientID is the patient a doctor is currently working on.
	PatientID string
}

type Scope struct {
	Where docstore.Predicate
	// Stamp is merged into documents created under this scope.
	Stamp docstore.Fields
}

// Allows reports whether a loaded record falls inside the scope.
func (s Scope) Allows(f docstore.Fields) bool {
	return s.Where.Matches(f)
}

type Planner struct {
	store docstore.Store
}

func NewPlanner(store docstore.Store) *Planner {
	return &Planner{store: store}
}

func (p *Planner) Plan(ctx context.Context, id identity.Identity, c model.Collection, a Access, qc Context) (Scope, error) {
	switch who := id.(type) {
	case identity.Admin:
		if c == model.Doctors {
			return Scope{
				Where: docstore.Predicate{{Field: model.FieldHospitalID, Value: who.SubjectID}},
				Stamp: docstore.Fields{model.FieldHospitalID: who.SubjectID},
			}, nil
		}
	case identity.Doctor:
		if c == model.Patients {
			return Scope{
				Where: docstore.Predicate{{Field: model.FieldDoctorID, Value: who.DoctorID}},
				Stamp: docstore.Fields{
					model.FieldDoctorID:   who.DoctorID,
					model.FieldDoctorName: who.Name,
				},
			}, nil
		}
		if c.Child() {
			return p.doctorChild(ctx, who, c, qc)
		}
	case identity.Patient:
		if c.Child() && a == Read {
			return Scope{
				Where: docstore.Predicate{{Field: model.FieldPatientID, Value: who.PatientID}},
			}, nil
		}
	case identity.Anonymous, nil:
	}
	return Scope{}, fmt.Errorf("%w: %s may not %s %s", apperr.ErrUnauthorized, roleName(id), a, c)
}

// doctorChild scopes a doctor to the selected patient, which must be theirs.
// A patient belonging to someone else is reported as missing.
func (p *Planner) doctorChild(ctx context.Context, d identity.Doctor, c model.Collection, qc Context) (Scope, error) {
	if qc.PatientID == "" {
		return Scope{}, fmt.Errorf("%w: no patient selected", apperr.ErrPrecondition)
	}
	rec, err := p.store.Get(ctx, model.Patients, qc.PatientID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Scope{}, fmt.Errorf("patient %s: %w", qc.PatientID, apperr.ErrNotFound)
	}
	if err != nil {
		return Scope{}, fmt.Errorf("load patient %s: %w", qc.PatientID, err)
	}
	var patient model.Patient
	if err := docstore.Decode(rec, &patient); err != nil {
		return Scope{}, err
	}
	if patient.DoctorID != d.DoctorID {
		return Scope{}, fmt.Errorf("patient %s: %w", qc.PatientID, apperr.ErrNotFound)
	}

	stamp := docstore.Fields{
		model.FieldPatientID:   patient.ID,
		model.FieldPatientName: patient.Name,
		model.FieldDoctorID:    d.DoctorID,
		model.FieldDoctorName:  d.Name,
	}
	if c == model.Reports {
		stamp[model.FieldDoctorPhone] = d.Phone
	}
	return Scope{
		Where: docstore.Predicate{{Field: model.FieldPatientID, Value: patient.ID}},
		Stamp: stamp,
	}, nil
}

func roleName(id identity.Identity) string {
	if !identity.Authenticated(id) {
		return "anonymous"
	}
	return string(id.Role())
}
