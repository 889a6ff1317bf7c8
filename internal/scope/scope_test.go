package scope_test

import (
	"context"
	"errors"
	"testing"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/docstore"
	"healthcare-records-api/internal/identity"
	"healthcare-records-api/internal/model"
	"healthcare-records-api/internal/scope"
)

func TestPlan(t *testing.T) {
	ctx := context.Background()
	st := docstore.NewMemory()
	mine, err := st.Insert(ctx, model.Patients, docstore.Fields{"name": "Pat", "doctorId": "doc-1"})
	if err != nil {
		t.Fatal(err)
	}
	theirs, err := st.Insert(ctx, model.Patients, docstore.Fields{"name": "Other", "doctorId": "doc-2"})
	if err != nil {
		t.Fatal(err)
	}
	p := scope.NewPlanner(st)

	admin := identity.Admin{SubjectID: "adm-1"}
	doctor := identity.Doctor{DoctorID: "doc-1", Name: "Dr A", Phone: "6660002", HospitalID: "adm-1"}
	patient := identity.Patient{PatientID: mine, Name: "Pat", DoctorID: "doc-1"}

	tests := []struct {
		name      string
		who       identity.Identity
		coll      model.Collection
		access    scope.Access
		qc        scope.Context
		wantErr   error
		wantWhere docstore.Predicate
		wantStamp docstore.Fields
	}{
		{
			name: "admin writes doctors", who: admin, coll: model.Doctors, access: scope.Write,
			wantWhere: docstore.Predicate{{Field: "hospitalId", Value: "adm-1"}},
			wantStamp: docstore.Fields{"hospitalId": "adm-1"},
		},
		{name: "admin cannot read patients", who: admin, coll: model.Patients, access: scope.Read, wantErr: apperr.ErrUnauthorized},
		{name: "admin cannot read reports", who: admin, coll: model.Reports, access: scope.Read, qc: scope.Context{PatientID: mine}, wantErr: apperr.ErrUnauthorized},
		{
			name: "doctor reads patients", who: doctor, coll: model.Patients, access: scope.Read,
			wantWhere: docstore.Predicate{{Field: "doctorId", Value: "doc-1"}},
			wantStamp: docstore.Fields{"doctorId": "doc-1", "doctorName": "Dr A"},
		},
		{name: "doctor cannot touch doctors", who: doctor, coll: model.Doctors, access: scope.Read, wantErr: apperr.ErrUnauthorized},
		{
			name: "doctor writes report for own patient", who: doctor, coll: model.Reports, access: scope.Write,
			qc:        scope.Context{PatientID: mine},
			wantWhere: docstore.Predicate{{Field: "patientId", Value: mine}},
			wantStamp: docstore.Fields{
				"patientId": mine, "patientName": "Pat",
				"doctorId": "doc-1", "doctorName": "Dr A", "doctorPhone": "6660002",
			},
		},
		{
			name: "reminders carry no doctor phone", who: doctor, coll: model.Reminders, access: scope.Write,
			qc:        scope.Context{PatientID: mine},
			wantWhere: docstore.Predicate{{Field: "patientId", Value: mine}},
			wantStamp: docstore.Fields{"patientId": mine, "patientName": "Pat", "doctorId": "doc-1", "doctorName": "Dr A"},
		},
		{name: "doctor without selection", who: doctor, coll: model.Prescriptions, access: scope.Read, wantErr: apperr.ErrPrecondition},
		{name: "doctor with foreign patient", who: doctor, coll: model.Reports, access: scope.Read, qc: scope.Context{PatientID: theirs}, wantErr: apperr.ErrNotFound},
		{name: "doctor with missing patient", who: doctor, coll: model.Reports, access: scope.Read, qc: scope.Context{PatientID: "gone"}, wantErr: apperr.ErrNotFound},
		{
			name: "patient reads own reports", who: patient, coll: model.Reports, access: scope.Read,
			qc:        scope.Context{PatientID: theirs},
			wantWhere: docstore.Predicate{{Field: "patientId", Value: mine}},
		},
		{name: "patient cannot write reports", who: patient, coll: model.Reports, access: scope.Write, wantErr: apperr.ErrUnauthorized},
		{name: "patient cannot read patients", who: patient, coll: model.Patients, access: scope.Read, wantErr: apperr.ErrUnauthorized},
		{name: "anonymous", who: identity.Anonymous{}, coll: model.Reports, access: scope.Read, wantErr: apperr.ErrUnauthorized},
		{name: "nil identity", who: nil, coll: model.Doctors, access: scope.Read, wantErr: apperr.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := p.Plan(ctx, tt.who, tt.coll, tt.access, tt.qc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(sc.Where) != len(tt.wantWhere) {
				t.Fatalf("where = %v, want %v", sc.Where, tt.wantWhere)
			}
			for i := range sc.Where {
				if sc.Where[i] != tt.wantWhere[i] {
					t.Errorf("where[%d] = %v, want %v", i, sc.Where[i], tt.wantWhere[i])
				}
			}
			if len(sc.Stamp) != len(tt.wantStamp) {
				t.Fatalf("stamp = %v, want %v", sc.Stamp, tt.wantStamp)
			}
			for k, v := range tt.wantStamp {
				if sc.Stamp[k] != v {
					t.Errorf("stamp[%s] = %v, want %v", k, sc.Stamp[k], v)
				}
			}
		})
	}
}

func TestAllows(t *testing.T) {
	sc := scope.Scope{Where: docstore.Predicate{{Field: "doctorId", Value: "doc-1"}}}
	if !sc.Allows(docstore.Fields{"doctorId": "doc-1", "name": "x"}) {
		t.Error("own record rejected")
	}
	if sc.Allows(docstore.Fields{"doctorId": "doc-2"}) {
		t.Error("foreign record allowed")
	}
	if sc.Allows(docstore.Fields{"name": "x"}) {
		t.Error("record without owner field allowed")
	}
}
