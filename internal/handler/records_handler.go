package handler

import (
	"context"

	"healthcare-records-api/internal/model"
	"healthcare-records-api/internal/records"
	"healthcare-records-api/internal/rpc"
)

// reply wraps a service result, translating its error.
func reply[T any](h *Handler, v T, err error) (*T, error) {
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &v, nil
}

func items[T any](h *Handler, v []T, err error) (*rpc.Items[T], error) {
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &rpc.Items[T]{Items: v}, nil
}

func (h *Handler) done(err error) (*rpc.Empty, error) {
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &rpc.Empty{}, nil
}

// ----- doctors -----

func (h *Handler) CreateDoctor(ctx context.Context, req *records.DoctorInput) (*model.Doctor, error) {
	d, err := h.records.CreateDoctor(ctx, caller(ctx), *req)
	return reply(h, d, err)
}

func (h *Handler) ListDoctors(ctx context.Context, req *rpc.ListRequest) (*rpc.Items[model.Doctor], error) {
	ds, err := h.records.ListDoctors(ctx, caller(ctx), req.Search)
	return items(h, ds, err)
}

func (h *Handler) UpdateDoctor(ctx context.Context, req *rpc.Update[records.DoctorInput]) (*model.Doctor, error) {
	d, err := h.records.UpdateDoctor(ctx, caller(ctx), req.ID, req.Fields)
	return reply(h, d, err)
}

func (h *Handler) DeleteDoctor(ctx context.Context, req *rpc.IDRequest) (*rpc.Empty, error) {
	return h.done(h.records.DeleteDoctor(ctx, caller(ctx), req.ID))
}

// ----- patients -----

func (h *Handler) CreatePatient(ctx context.Context, req *records.PatientInput) (*model.Patient, error) {
	p, err := h.records.CreatePatient(ctx, caller(ctx), *req)
	return reply(h, p, err)
}

func (h *Handler) ListPatients(ctx context.Context, req *rpc.ListRequest) (*rpc.Items[model.Patient], error) {
	ps, err := h.records.ListPatients(ctx, caller(ctx), req.Search)
	return items(h, ps, err)
}

func (h *Handler) GetPatient(ctx context.Context, req *rpc.IDRequest) (*model.Patient, error) {
	p, err := h.records.GetPatient(ctx, caller(ctx), req.ID)
	return reply(h, p, err)
}

func (h *Handler) UpdatePatient(ctx context.Context, req *rpc.Update[records.PatientInput]) (*model.Patient, error) {
	p, err := h.records.UpdatePatient(ctx, caller(ctx), req.ID, req.Fields)
	return reply(h, p, err)
}

func (h *Handler) DeletePatient(ctx context.Context, req *rpc.IDRequest) (*rpc.Empty, error) {
	return h.done(h.records.DeletePatient(ctx, caller(ctx), req.ID))
}

// ----- reports -----

func (h *Handler) CreateReport(ctx context.Context, req *rpc.CreateChild[records.ReportInput]) (*model.Report, error) {
	r, err := h.records.CreateReport(ctx, caller(ctx), req.PatientID, req.Fields)
	return reply(h, r, err)
}

func (h *Handler) ListReports(ctx context.Context, req *rpc.ListRequest) (*rpc.Items[model.Report], error) {
	rs, err := h.records.ListReports(ctx, caller(ctx), req.PatientID)
	return items(h, rs, err)
}

func (h *Handler) UpdateReport(ctx context.Context, req *rpc.Update[records.ReportInput]) (*model.Report, error) {
	r, err := h.records.UpdateReport(ctx, caller(ctx), req.ID, req.Fields)
	return reply(h, r, err)
}

func (h *Handler) DeleteReport(ctx context.Context, req *rpc.IDRequest) (*rpc.Empty, error) {
	return h.done(h.records.DeleteReport(ctx, caller(ctx), req.ID))
}

// ----- reminders -----

func (h *Handler) CreateReminder(ctx context.Context, req *rpc.CreateChild[records.ReminderInput]) (*model.Reminder, error) {
	r, err := h.records.CreateReminder(ctx, caller(ctx), req.PatientID, req.Fields)
	return reply(h, r, err)
}

func (h *Handler) ListReminders(ctx context.Context, req *rpc.ListRequest) (*rpc.Items[model.Reminder], error) {
	rs, err := h.records.ListReminders(ctx, caller(ctx), req.PatientID)
	return items(h, rs, err)
}

func (h *Handler) UpdateReminder(ctx context.Context, req *rpc.Update[records.ReminderInput]) (*model.Reminder, error) {
	r, err := h.records.UpdateReminder(ctx, caller(ctx), req.ID, req.Fields)
	return reply(h, r, err)
}

func (h *Handler) DeleteReminder(ctx context.Context, req *rpc.IDRequest) (*rpc.Empty, error) {
	return h.done(h.records.DeleteReminder(ctx, caller(ctx), req.ID))
}

// ----- prescriptions -----

func (h *Handler) CreatePrescription(ctx context.Context, req *rpc.CreateChild[records.PrescriptionInput]) (*model.Prescription, error) {
	p, err := h.records.CreatePrescription(ctx, caller(ctx), req.PatientID, req.Fields)
	return reply(h, p, err)
}

func (h *Handler) ListPrescriptions(ctx context.Context, req *rpc.ListRequest) (*rpc.Items[model.Prescription], error) {
	ps, err := h.records.ListPrescriptions(ctx, caller(ctx), req.PatientID)
	return items(h, ps, err)
}

func (h *Handler) UpdatePrescription(ctx context.Context, req *rpc.Update[records.PrescriptionInput]) (*model.Prescription, error) {
	p, err := h.records.UpdatePrescription(ctx, caller(ctx), req.ID, req.Fields)
	return reply(h, p, err)
}

func (h *Handler) DeletePrescription(ctx context.Context, req *rpc.IDRequest) (*rpc.Empty, error) {
	return h.done(h.records.DeletePrescription(ctx, caller(ctx), req.ID))
}
