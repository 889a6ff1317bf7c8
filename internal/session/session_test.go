package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/auth"
	"healthcare-records-api/internal/credential"
	"healthcare-records-api/internal/docstore"
	"healthcare-records-api/internal/identity"
	"healthcare-records-api/internal/idp"
	"healthcare-records-api/internal/model"
	"healthcare-records-api/internal/records"
	"healthcare-records-api/internal/scope"
	"healthcare-records-api/internal/session"
)

const secret = "session-test-secret"

type env struct {
	store    *docstore.Memory
	resolver *session.Resolver
	records  *records.Service
}

func newEnv() *env {
	st := docstore.NewMemory()
	provider := idp.New(idp.NewMemoryAccounts(), secret, "healthcare.com")
	return &env{
		store:    st,
		resolver: session.NewResolver(st, credential.New(st), provider, secret, time.Hour, zerolog.Nop()),
		records:  records.New(st, scope.NewPlanner(st), zerolog.Nop()),
	}
}

func mustResolve(t *testing.T, e *env, m session.Markers) identity.Identity {
	t.Helper()
	who, err := e.resolver.Resolve(context.Background(), m)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return who
}

// Admin registers, provisions a doctor who provisions a patient; both log
// in, and a doctor under another admin cannot see the patient.
func TestOnboardingScenario(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	profile := session.AdminProfile{Name: "A", HospitalName: "General"}

	adminMarkers := session.NewMapMarkers()
	reg, err := e.resolver.RegisterAdmin(ctx, adminMarkers, "5550001", "hunter2", profile)
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	if _, err := e.resolver.RegisterAdmin(ctx, session.NewMapMarkers(), "5550001", "hunter2", profile); !errors.Is(err, apperr.ErrDuplicateAccount) {
		t.Fatalf("second registration: got %v", err)
	}
	admin, ok := mustResolve(t, e, adminMarkers).(identity.Admin)
	if !ok || admin.SubjectID != reg.Identity.ID() {
		t.Fatalf("admin markers resolve to %#v", admin)
	}
	prof, err := e.resolver.Profile(ctx, admin)
	if err != nil {
		t.Fatalf("admin profile: %v", err)
	}
	if a := prof.(model.Admin); a.HospitalName != "General" || a.Email != "5550001@healthcare.com" {
		t.Errorf("admin profile = %+v", a)
	}

	if _, err := e.records.CreateDoctor(ctx, admin, records.DoctorInput{Name: "Dr D", Phone: "6660002", Secret: "docpass"}); err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	docMarkers := session.NewMapMarkers()
	ds, err := e.resolver.LoginDoctor(ctx, docMarkers, "6660002", "docpass")
	if err != nil {
		t.Fatalf("doctor login: %v", err)
	}
	if ds.Identity.Role() != identity.RoleDoctor {
		t.Fatalf("doctor login role = %q", ds.Identity.Role())
	}
	doctor := mustResolve(t, e, docMarkers)

	if _, err := e.records.CreatePatient(ctx, doctor, records.PatientInput{Name: "P", Phone: "7770003", Secret: "patpass"}); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	patMarkers := session.NewMapMarkers()
	if _, err := e.resolver.LoginPatient(ctx, patMarkers, "7770003", "patpass"); err != nil {
		t.Fatalf("patient login: %v", err)
	}
	if got := mustResolve(t, e, patMarkers); got.Role() != identity.RolePatient {
		t.Errorf("patient resolves to %q", got.Role())
	}

	// doctor B under a different admin
	otherAdmin := session.NewMapMarkers()
	if _, err := e.resolver.RegisterAdmin(ctx, otherAdmin, "5550009", "hunter22", profile); err != nil {
		t.Fatal(err)
	}
	if _, err := e.records.CreateDoctor(ctx, mustResolve(t, e, otherAdmin), records.DoctorInput{Name: "Dr B", Phone: "6660009", Secret: "docpass"}); err != nil {
		t.Fatal(err)
	}
	bMarkers := session.NewMapMarkers()
	if _, err := e.resolver.LoginDoctor(ctx, bMarkers, "6660009", "docpass"); err != nil {
		t.Fatal(err)
	}
	patients, err := e.records.ListPatients(ctx, mustResolve(t, e, bMarkers), "")
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range patients {
		if p.Phone == "7770003" {
			t.Fatal("doctor B sees patient 7770003")
		}
	}
}

func TestLoginFailures(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	adm := session.NewMapMarkers()
	if _, err := e.resolver.RegisterAdmin(ctx, adm, "5550001", "hunter2", session.AdminProfile{Name: "A", HospitalName: "H"}); err != nil {
		t.Fatal(err)
	}
	admin := mustResolve(t, e, adm)
	if _, err := e.records.CreateDoctor(ctx, admin, records.DoctorInput{Name: "D", Phone: "6660002", Secret: "docpass"}); err != nil {
		t.Fatal(err)
	}

	m := session.NewMapMarkers()
	if _, err := e.resolver.LoginDoctor(ctx, m, "6660002", "wrong"); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Errorf("wrong secret: got %v", err)
	}
	if _, err := e.resolver.LoginDoctor(ctx, m, "0000000", "docpass"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown phone: got %v", err)
	}
	if _, err := e.resolver.LoginPatient(ctx, m, "6660002", "docpass"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("doctor phone as patient: got %v", err)
	}
	if _, err := e.resolver.LoginAdmin(ctx, m, "5550001", "nope"); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Errorf("admin wrong secret: got %v", err)
	}
	if _, err := e.resolver.RegisterAdmin(ctx, m, "5550002", "12345", session.AdminProfile{Name: "A", HospitalName: "H"}); !errors.Is(err, apperr.ErrWeakCredential) {
		t.Errorf("weak secret: got %v", err)
	}
	if _, err := e.resolver.RegisterAdmin(ctx, m, "5550003", "hunter2", session.AdminProfile{}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("missing profile: got %v", err)
	}
	for _, name := range session.AllMarkers {
		if m.Get(name) != "" {
			t.Errorf("failed logins left marker %s", name)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	adm := session.NewMapMarkers()
	if _, err := e.resolver.RegisterAdmin(ctx, adm, "5550001", "hunter2", session.AdminProfile{Name: "A", HospitalName: "H"}); err != nil {
		t.Fatal(err)
	}
	admin := mustResolve(t, e, adm)
	d, err := e.records.CreateDoctor(ctx, admin, records.DoctorInput{Name: "D", Phone: "6660002", Secret: "docpass"})
	if err != nil {
		t.Fatal(err)
	}
	docTok, _ := auth.MakeToken(d.ID, "doctor", secret, time.Hour)

	// a doctor marker beats an admin session held alongside it
	m := session.NewMapMarkers()
	m.Set(session.AdminMarker, adm.Get(session.AdminMarker), 0)
	m.Set(session.DoctorMarker, docTok, 0)
	if got := mustResolve(t, e, m); got.Role() != identity.RoleDoctor {
		t.Errorf("got %q, want doctor", got.Role())
	}

	if got := mustResolve(t, e, session.NewMapMarkers()); identity.Authenticated(got) {
		t.Errorf("empty markers resolve to %q", got.Role())
	}

	// an unusable admin token is just anonymous
	m = session.NewMapMarkers()
	m.Set(session.AdminMarker, "garbage", 0)
	if got := mustResolve(t, e, m); identity.Authenticated(got) {
		t.Errorf("garbage admin token resolves to %q", got.Role())
	}
}

func TestUnresolvedIdentity(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	patTok, _ := auth.MakeToken("p-1", "patient", secret, time.Hour)
	ghostTok, _ := auth.MakeToken("no-such-doctor", "doctor", secret, time.Hour)
	foreignTok, _ := auth.MakeToken("d-1", "doctor", "other-secret", time.Hour)

	tests := []struct {
		name   string
		marker string
		value  string
	}{
		{"malformed", session.DoctorMarker, "not-a-token"},
		{"wrong role", session.DoctorMarker, patTok},
		{"record gone", session.DoctorMarker, ghostTok},
		{"foreign signature", session.DoctorMarker, foreignTok},
		{"patient record gone", session.PatientMarker, patTok},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := session.NewMapMarkers()
			m.Set(tt.marker, tt.value, 0)
			m.Set(session.RefreshMarker, "r", 0)
			_, err := e.resolver.Resolve(ctx, m)
			if !errors.Is(err, apperr.ErrUnresolvedIdentity) {
				t.Fatalf("got %v, want ErrUnresolvedIdentity", err)
			}
			e.resolver.ForceLogout(m)
			for _, name := range session.AllMarkers {
				if m.Get(name) != "" {
					t.Errorf("ForceLogout left %s", name)
				}
			}
		})
	}
}

func TestLogout(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	m := session.NewMapMarkers()
	m.Set(session.DoctorMarker, "d", 0)
	m.Set(session.PatientMarker, "p", 0)
	for i := 0; i < 2; i++ {
		if err := e.resolver.Logout(ctx, m, identity.Patient{PatientID: "p"}); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
		if m.Get(session.DoctorMarker) != "" || m.Get(session.PatientMarker) != "" {
			t.Fatalf("logout %d left role markers", i)
		}
	}

	adm := session.NewMapMarkers()
	sess, err := e.resolver.RegisterAdmin(ctx, adm, "5550001", "hunter2", session.AdminProfile{Name: "A", HospitalName: "H"})
	if err != nil {
		t.Fatal(err)
	}
	refresh := adm.Get(session.RefreshMarker)
	if err := e.resolver.Logout(ctx, adm, sess.Identity); err != nil {
		t.Fatalf("admin logout: %v", err)
	}
	if adm.Get(session.AdminMarker) != "" || adm.Get(session.RefreshMarker) != "" {
		t.Error("admin markers survived logout")
	}
	adm.Set(session.RefreshMarker, refresh, 0)
	if _, err := e.resolver.Refresh(ctx, adm); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Errorf("refresh after logout: got %v", err)
	}
}

func TestAdminRefresh(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	m := session.NewMapMarkers()
	first, err := e.resolver.RegisterAdmin(ctx, m, "5550001", "hunter2", session.AdminProfile{Name: "A", HospitalName: "H"})
	if err != nil {
		t.Fatal(err)
	}
	next, err := e.resolver.Refresh(ctx, m)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == first.RefreshToken || m.Get(session.RefreshMarker) != next.RefreshToken {
		t.Error("refresh marker not rotated")
	}
	if got := mustResolve(t, e, m); got.ID() != first.Identity.ID() {
		t.Errorf("after refresh resolves to %q", got.ID())
	}
}
