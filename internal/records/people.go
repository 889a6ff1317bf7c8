package records

import (
	"context"
	"strings"
	"time"

	"healthcare-records-api/internal/auth"
	"healthcare-records-api/internal/docstore"
	"healthcare-records-api/internal/identity"
	"healthcare-records-api/internal/model"
	"healthcare-records-api/internal/scope"
)

const (
	doctorEmailDomain = "doctor.com"
	statusActive      = "active"
)

func doctorCreated(d model.Doctor) time.Time   { return d.CreatedAt }
func patientCreated(p model.Patient) time.Time { return p.CreatedAt }

// CreateDoctor provisions a doctor under the calling admin's hospital.
func (s *Service) CreateDoctor(ctx context.Context, who identity.Identity, in DoctorInput) (model.Doctor, error) {
	if _, err := s.planner.Plan(ctx, who, model.Doctors, scope.Write, scope.Context{}); err != nil {
		return model.Doctor{}, err
	}
	in.Phone = strings.TrimSpace(in.Phone)
	if err := in.validate(true); err != nil {
		return model.Doctor{}, err
	}
	if err := s.phoneTaken(ctx, model.Doctors, in.Phone, ""); err != nil {
		return model.Doctor{}, err
	}
	doc, err := docstore.Encode(in)
	if err != nil {
		return model.Doctor{}, err
	}
	if err := withSecret(doc, in.Secret); err != nil {
		return model.Doctor{}, err
	}
	if in.Status == "" {
		doc["status"] = statusActive
	}
	doc["email"] = in.Phone + "@" + doctorEmailDomain
	doc["role"] = string(identity.RoleDoctor)
	return create[model.Doctor](ctx, s, who, model.Doctors, scope.Context{}, doc)
}

// ListDoctors returns the admin's doctors matching search on name, display
// id, phone or specialization.
func (s *Service) ListDoctors(ctx context.Context, who identity.Identity, search string) ([]model.Doctor, error) {
	all, err := list(ctx, s, who, model.Doctors, scope.Context{}, newestFirst(doctorCreated))
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, d := range all {
		if matches(search, d.Name, d.DisplayID, d.Phone, d.Specialization) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, who identity.Identity, id string, in DoctorInput) (model.Doctor, error) {
	if _, err := s.locate(ctx, who, model.Doctors, id, scope.Write); err != nil {
		return model.Doctor{}, err
	}
	in.Phone = strings.TrimSpace(in.Phone)
	if err := in.validate(false); err != nil {
		return model.Doctor{}, err
	}
	if err := s.phoneTaken(ctx, model.Doctors, in.Phone, id); err != nil {
		return model.Doctor{}, err
	}
	patch, err := docstore.Encode(in)
	if err != nil {
		return model.Doctor{}, err
	}
	if err := withSecret(patch, in.Secret); err != nil {
		return model.Doctor{}, err
	}
	patch["email"] = in.Phone + "@" + doctorEmailDomain
	if err := s.UpdateFields(ctx, who, model.Doctors, id, patch); err != nil {
		return model.Doctor{}, err
	}
	return fetch[model.Doctor](ctx, s, who, model.Doctors, id, scope.Read)
}

func (s *Service) DeleteDoctor(ctx context.Context, who identity.Identity, id string) error {
	return s.Delete(ctx, who, model.Doctors, id)
}

// CreatePatient registers a patient under the calling doctor.
func (s *Service) CreatePatient(ctx context.Context, who identity.Identity, in PatientInput) (model.Patient, error) {
	if _, err := s.planner.Plan(ctx, who, model.Patients, scope.Write, scope.Context{}); err != nil {
		return model.Patient{}, err
	}
	in.Phone = strings.TrimSpace(in.Phone)
	if err := in.validate(true); err != nil {
		return model.Patient{}, err
	}
	if err := s.phoneTaken(ctx, model.Patients, in.Phone, ""); err != nil {
		return model.Patient{}, err
	}
	doc, err := docstore.Encode(in)
	if err != nil {
		return model.Patient{}, err
	}
	if err := withSecret(doc, in.Secret); err != nil {
		return model.Patient{}, err
	}
	return create[model.Patient](ctx, s, who, model.Patients, scope.Context{}, doc)
}

// ListPatients returns the doctor's patients matching search on name or phone.
func (s *Service) ListPatients(ctx context.Context, who identity.Identity, search string) ([]model.Patient, error) {
	all, err := list(ctx, s, who, model.Patients, scope.Context{}, newestFirst(patientCreated))
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if matches(search, p.Name, p.Phone) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) GetPatient(ctx context.Context, who identity.Identity, id string) (model.Patient, error) {
	return fetch[model.Patient](ctx, s, who, model.Patients, id, scope.Read)
}

func (s *Service) UpdatePatient(ctx context.Context, who identity.Identity, id string, in PatientInput) (model.Patient, error) {
	if _, err := s.locate(ctx, who, model.Patients, id, scope.Write); err != nil {
		return model.Patient{}, err
	}
	in.Phone = strings.TrimSpace(in.Phone)
	if err := in.validate(false); err != nil {
		return model.Patient{}, err
	}
	if err := s.phoneTaken(ctx, model.Patients, in.Phone, id); err != nil {
		return model.Patient{}, err
	}
	patch, err := docstore.Encode(in)
	if err != nil {
		return model.Patient{}, err
	}
	if err := withSecret(patch, in.Secret); err != nil {
		return model.Patient{}, err
	}
	if err := s.UpdateFields(ctx, who, model.Patients, id, patch); err != nil {
		return model.Patient{}, err
	}
	return s.GetPatient(ctx, who, id)
}

// DeletePatient removes the patient only; their reports, reminders and
// prescriptions stay.
func (s *Service) DeletePatient(ctx context.Context, who identity.Identity, id string) error {
	return s.Delete(ctx, who, model.Patients, id)
}

// withSecret stores the bcrypt hash of secret, if one was given.
func withSecret(f docstore.Fields, secret string) error {
	if secret == "" {
		return nil
	}
	hash, err := auth.HashPassword(secret)
	if err != nil {
		return err
	}
	f[model.FieldSecretHash] = hash
	return nil
}
