package records

import (
	"cmp"
	"context"
	"time"

	"healthcare-records-api/internal/docstore"
	"healthcare-records-api/internal/identity"
	"healthcare-records-api/internal/model"
	"healthcare-records-api/internal/scope"
)

func reportCreated(r model.Report) time.Time             { return r.CreatedAt }
func prescriptionCreated(p model.Prescription) time.Time { return p.CreatedAt }

// reminderOrder puts the earliest date and time first.
func reminderOrder(a, b model.Reminder) int {
	if c := cmp.Compare(a.Date, b.Date); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Time, b.Time); c != 0 {
		return c
	}
	return b.CreatedAt.Compare(a.CreatedAt)
}

// createChild validates and stores a record for patientID. Plan rejects
// the call unless the caller is the patient's doctor.
func createChild[T any](ctx context.Context, s *Service, who identity.Identity, c model.Collection, patientID string, in any, validate func() error) (T, error) {
	var zero T
	qc := scope.Context{PatientID: patientID}
	if _, err := s.planner.Plan(ctx, who, c, scope.Write, qc); err != nil {
		return zero, err
	}
	if err := validate(); err != nil {
		return zero, err
	}
	doc, err := docstore.Encode(in)
	if err != nil {
		return zero, err
	}
	return create[T](ctx, s, who, c, qc, doc)
}

func updateChild[T any](ctx context.Context, s *Service, who identity.Identity, c model.Collection, id string, in any, validate func() error) (T, error) {
	var zero T
	if _, err := s.locate(ctx, who, c, id, scope.Write); err != nil {
		return zero, err
	}
	if err := validate(); err != nil {
		return zero, err
	}
	patch, err := docstore.Encode(in)
	if err != nil {
		return zero, err
	}
	if err := s.UpdateFields(ctx, who, c, id, patch); err != nil {
		return zero, err
	}
	return fetch[T](ctx, s, who, c, id, scope.Read)
}

// Reports

func (s *Service) CreateReport(ctx context.Context, who identity.Identity, patientID string, in ReportInput) (model.Report, error) {
	return createChild[model.Report](ctx, s, who, model.Reports, patientID, in, in.validate)
}

// ListReports lists a patient's reports. Patients always get their own and
// patientID is ignored for them.
func (s *Service) ListReports(ctx context.Context, who identity.Identity, patientID string) ([]model.Report, error) {
	return list(ctx, s, who, model.Reports, scope.Context{PatientID: patientID}, newestFirst(reportCreated))
}

// GetReport returns one report visible to the caller.
func (s *Service) GetReport(ctx context.Context, who identity.Identity, id string) (model.Report, error) {
	return fetch[model.Report](ctx, s, who, model.Reports, id, scope.Read)
}

func (s *Service) UpdateReport(ctx context.Context, who identity.Identity, id string, in ReportInput) (model.Report, error) {
	return updateChild[model.Report](ctx, s, who, model.Reports, id, in, in.validate)
}

func (s *Service) DeleteReport(ctx context.Context, who identity.Identity, id string) error {
	return s.Delete(ctx, who, model.Reports, id)
}

// Reminders

func (s *Service) CreateReminder(ctx context.Context, who identity.Identity, patientID string, in ReminderInput) (model.Reminder, error) {
	return createChild[model.Reminder](ctx, s, who, model.Reminders, patientID, in, in.validate)
}

func (s *Service) ListReminders(ctx context.Context, who identity.Identity, patientID string) ([]model.Reminder, error) {
	return list(ctx, s, who, model.Reminders, scope.Context{PatientID: patientID}, reminderOrder)
}

func (s *Service) UpdateReminder(ctx context.Context, who identity.Identity, id string, in ReminderInput) (model.Reminder, error) {
	return updateChild[model.Reminder](ctx, s, who, model.Reminders, id, in, in.validate)
}

func (s *Service) DeleteReminder(ctx context.Context, who identity.Identity, id string) error {
	return s.Delete(ctx, who, model.Reminders, id)
}

// Prescriptions

func (s *Service) CreatePrescription(ctx context.Context, who identity.Identity, patientID string, in PrescriptionInput) (model.Prescription, error) {
	return createChild[model.Prescription](ctx, s, who, model.Prescriptions, patientID, in, in.validate)
}

func (s *Service) ListPrescriptions(ctx context.Context, who identity.Identity, patientID string) ([]model.Prescription, error) {
	return list(ctx, s, who, model.Prescriptions, scope.Context{PatientID: patientID}, newestFirst(prescriptionCreated))
}

func (s *Service) UpdatePrescription(ctx context.Context, who identity.Identity, id string, in PrescriptionInput) (model.Prescription, error) {
	return updateChild[model.Prescription](ctx, s, who, model.Prescriptions, id, in, in.validate)
}

func (s *Service) DeletePrescription(ctx context.Context, who identity.Identity, id string) error {
	return s.Delete(ctx, who, model.Prescriptions, id)
}
