package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/assistant"
	"healthcare-records-api/internal/credential"
	"healthcare-records-api/internal/docstore"
	"healthcare-records-api/internal/handler"
	"healthcare-records-api/internal/idp"
	"healthcare-records-api/internal/middleware"
	"healthcare-records-api/internal/model"
	"healthcare-records-api/internal/records"
	"healthcare-records-api/internal/rpc"
	"healthcare-records-api/internal/scope"
	"healthcare-records-api/internal/session"
)

const secret = "handler-test-secret"

type echoLLM struct{}

func (echoLLM) Summarize(_ context.Context, prompt string) (string, error) {
	return "summary of " + prompt[:10], nil
}

func setup(t *testing.T) *rpc.Client {
	t.Helper()
	return setupWith(t, docstore.NewMemory())
}

func setupWith(t *testing.T, st docstore.Store) *rpc.Client {
	t.Helper()
	log := zerolog.Nop()
	provider := idp.New(idp.NewMemoryAccounts(), secret, "healthcare.com")
	resolver := session.NewResolver(st, credential.New(st), provider, secret, time.Hour, log)
	recs := records.New(st, scope.NewPlanner(st), log)
	h := handler.New(resolver, recs, assistant.New(echoLLM{}, recs, time.Second, log), log)

	srv := grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.ChainUnaryInterceptor(middleware.Logging(log), middleware.Auth(resolver)),
		grpc.ChainStreamInterceptor(middleware.LoggingStream(log), middleware.AuthStream(resolver)),
	)
	rpc.RegisterCareServer(srv, h)

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return rpc.NewClient(conn)
}

// unreachableStore fails phone lookups the way a dropped Mongo connection does.
type unreachableStore struct {
	docstore.Store
}

func (unreachableStore) GetWhere(context.Context, model.Collection, string, any) ([]docstore.Record, error) {
	return nil, fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, errors.New("dial tcp 10.0.0.5:27017: connection refused"))
}

func TestDriverDetailStaysInLogs(t *testing.T) {
	c := setupWith(t, unreachableStore{docstore.NewMemory()})

	var sess rpc.SessionResponse
	err := c.Call(context.Background(), "LoginDoctor", &rpc.LoginRequest{Phone: "6660002", Secret: "docpass"}, &sess)
	st, _ := status.FromError(err)
	if st.Code() != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if st.Message() != "upstream unavailable" {
		t.Errorf("client saw %q", st.Message())
	}
}

func as(key, token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), key, token)
}

func asAdmin(token string) context.Context {
	return as("authorization", "Bearer "+token)
}

func code(err error) codes.Code {
	return status.Code(err)
}

// onboard registers an admin, a doctor and a patient and returns their
// tokens.
func onboard(t *testing.T, c *rpc.Client) (admin, doctor, patient string, patientID string) {
	t.Helper()
	var reg rpc.SessionResponse
	err := c.Call(context.Background(), "RegisterAdmin", &rpc.RegisterAdminRequest{
		Phone: "5550001", Secret: "hunter2", Name: "Admin", HospitalName: "General",
	}, &reg)
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}

	var d model.Doctor
	if err := c.Call(asAdmin(reg.Token), "CreateDoctor", &records.DoctorInput{
		Name: "Dr Who", Phone: "6660002", Specialization: "GP", Secret: "docpass",
	}, &d); err != nil {
		t.Fatalf("create doctor: %v", err)
	}

	var ds rpc.SessionResponse
	if err := c.Call(context.Background(), "LoginDoctor", &rpc.LoginRequest{Phone: "6660002", Secret: "docpass"}, &ds); err != nil {
		t.Fatalf("login doctor: %v", err)
	}

	var p model.Patient
	if err := c.Call(as("x-doctor-session", ds.Token), "CreatePatient", &records.PatientInput{
		Name: "Pat", Phone: "7770003", Age: "40", Gender: "F", Secret: "patpass",
	}, &p); err != nil {
		t.Fatalf("create patient: %v", err)
	}

	var ps rpc.SessionResponse
	if err := c.Call(context.Background(), "LoginPatient", &rpc.LoginRequest{Phone: "7770003", Secret: "patpass"}, &ps); err != nil {
		t.Fatalf("login patient: %v", err)
	}
	return reg.Token, ds.Token, ps.Token, p.ID
}

func TestEndToEnd(t *testing.T) {
	c := setup(t)
	_, doctor, patient, patientID := onboard(t, c)

	var r model.Report
	err := c.Call(as("x-doctor-session", doctor), "CreateReport", &rpc.CreateChild[records.ReportInput]{
		PatientID: patientID,
		Fields:    records.ReportInput{BP: "120/80", Sugar: "90"},
	}, &r)
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	if r.PatientID != patientID || r.DoctorPhone != "6660002" {
		t.Errorf("report stamps: %+v", r)
	}

	var mine rpc.Items[model.Report]
	if err := c.Call(as("x-patient-session", patient), "ListReports", &rpc.ListRequest{}, &mine); err != nil {
		t.Fatalf("patient list reports: %v", err)
	}
	if len(mine.Items) != 1 || mine.Items[0].BP != "120/80" {
		t.Errorf("patient sees %+v", mine.Items)
	}

	// patients cannot write
	err = c.Call(as("x-patient-session", patient), "CreateReport", &rpc.CreateChild[records.ReportInput]{PatientID: patientID}, &r)
	if code(err) != codes.PermissionDenied {
		t.Errorf("patient write: expected PermissionDenied, got %v", err)
	}

	var who rpc.WhoAmIResponse
	if err := c.Call(as("x-doctor-session", doctor), "WhoAmI", &rpc.Empty{}, &who); err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if who.Role != "doctor" || who.Profile == nil {
		t.Errorf("whoami: %+v", who)
	}

	var ans rpc.AnswerResponse
	if err := c.Call(as("x-doctor-session", doctor), "AnalyzeReports", &rpc.AnalyzeRequest{PatientID: patientID}, &ans); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if ans.Degraded || !strings.HasPrefix(ans.Text, "summary of") {
		t.Errorf("analyze: %+v", ans)
	}
}

func TestAnonymousIsRefused(t *testing.T) {
	c := setup(t)

	var d model.Doctor
	err := c.Call(context.Background(), "CreateDoctor", &records.DoctorInput{Name: "X", Phone: "1", Secret: "secret1"}, &d)
	if code(err) != codes.PermissionDenied {
		t.Errorf("expected PermissionDenied, got %v", err)
	}

	var who rpc.WhoAmIResponse
	if err := c.Call(context.Background(), "WhoAmI", &rpc.Empty{}, &who); err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if who.Role != "anonymous" {
		t.Errorf("role: %q", who.Role)
	}
}

func TestErrorCodes(t *testing.T) {
	c := setup(t)
	admin, doctor, _, _ := onboard(t, c)

	tests := []struct {
		name string
		ctx  context.Context
		meth string
		in   any
		want codes.Code
	}{
		{"wrong secret", context.Background(), "LoginDoctor", &rpc.LoginRequest{Phone: "6660002", Secret: "nope"}, codes.Unauthenticated},
		{"unknown phone", context.Background(), "LoginPatient", &rpc.LoginRequest{Phone: "000", Secret: "patpass"}, codes.NotFound},
		{"duplicate admin", context.Background(), "RegisterAdmin", &rpc.RegisterAdminRequest{Phone: "5550001", Secret: "hunter2", Name: "B", HospitalName: "H"}, codes.AlreadyExists},
		{"weak secret", context.Background(), "RegisterAdmin", &rpc.RegisterAdminRequest{Phone: "5550009", Secret: "abc", Name: "B", HospitalName: "H"}, codes.InvalidArgument},
		{"duplicate doctor phone", asAdmin(admin), "CreateDoctor", &records.DoctorInput{Name: "Dup", Phone: "6660002", Secret: "docpass"}, codes.AlreadyExists},
		{"missing patient context", as("x-doctor-session", doctor), "ListReports", &rpc.ListRequest{}, codes.FailedPrecondition},
		{"foreign patient", as("x-doctor-session", doctor), "GetPatient", &rpc.IDRequest{ID: "nope"}, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out json.RawMessage
			err := c.Call(tt.ctx, tt.meth, tt.in, &out)
			if code(err) != tt.want {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoginSendsMarkerHeader(t *testing.T) {
	c := setup(t)
	onboard(t, c)

	var hdr metadata.MD
	var s rpc.SessionResponse
	err := c.Call(context.Background(), "LoginDoctor", &rpc.LoginRequest{Phone: "6660002", Secret: "docpass"}, &s, grpc.Header(&hdr))
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	var found bool
	for _, v := range hdr.Get(middleware.HeaderSetMarker) {
		name, value, maxAge, ok := middleware.ParseSetMarker(v)
		if ok && name == session.DoctorMarker {
			found = true
			if value != s.Token {
				t.Error("marker value differs from response token")
			}
			if maxAge != int(time.Hour.Seconds()) {
				t.Errorf("max-age: %d", maxAge)
			}
		}
	}
	if !found {
		t.Errorf("no %s header in %v", session.DoctorMarker, hdr)
	}
	if !contains(hdr.Get(middleware.HeaderClearMarker), session.PatientMarker) {
		t.Errorf("login should clear the patient marker: %v", hdr)
	}
}

func TestUnresolvedIdentity(t *testing.T) {
	c := setup(t)

	var ps rpc.Items[model.Patient]
	err := c.Call(as("x-doctor-session", "not-a-token"), "ListPatients", &rpc.ListRequest{}, &ps)
	if code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	// open methods proceed anonymously and drop the bad marker
	var hdr metadata.MD
	if err := c.Call(as("x-doctor-session", "not-a-token"), "Logout", &rpc.Empty{}, &rpc.Empty{}, grpc.Header(&hdr)); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !contains(hdr.Get(middleware.HeaderClearMarker), session.DoctorMarker) {
		t.Errorf("expected doctor marker cleared: %v", hdr)
	}
}

func TestAdminRefresh(t *testing.T) {
	c := setup(t)
	var reg rpc.SessionResponse
	if err := c.Call(context.Background(), "RegisterAdmin", &rpc.RegisterAdminRequest{
		Phone: "5550001", Secret: "hunter2", Name: "Admin", HospitalName: "General",
	}, &reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	var next rpc.SessionResponse
	if err := c.Call(context.Background(), "RefreshSession", &rpc.RefreshRequest{RefreshToken: reg.RefreshToken}, &next); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == "" || next.RefreshToken == reg.RefreshToken {
		t.Error("refresh token not rotated")
	}

	// replaying the spent token fails
	err := c.Call(as("x-refresh-token", reg.RefreshToken), "RefreshSession", &rpc.RefreshRequest{}, &next)
	if code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated on replay, got %v", err)
	}
}

func TestWatchRecords(t *testing.T) {
	c := setup(t)
	_, doctor, _, _ := onboard(t, c)
	dctx := as("x-doctor-session", doctor)

	ctx, cancel := context.WithTimeout(dctx, 5*time.Second)
	defer cancel()
	w, err := c.Watch(ctx, &rpc.WatchRequest{Collection: string(model.Patients)})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	first, err := w.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if strings.Contains(string(first.Items), "secretHash") {
		t.Error("snapshot leaks secret hashes")
	}
	var ps []model.Patient
	if err := json.Unmarshal(first.Items, &ps); err != nil || len(ps) != 1 {
		t.Fatalf("first snapshot: %v %s", err, first.Items)
	}

	var p model.Patient
	if err := c.Call(dctx, "CreatePatient", &records.PatientInput{Name: "Second", Phone: "7770004", Secret: "patpass"}, &p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	next, err := w.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if err := json.Unmarshal(next.Items, &ps); err != nil || len(ps) != 2 {
		t.Fatalf("second snapshot: %v %s", err, next.Items)
	}
	if ps[0].Name != "Second" {
		t.Errorf("snapshot not newest first: %s", ps[0].Name)
	}
}

func TestWatchRejectsAdminsCollection(t *testing.T) {
	c := setup(t)
	admin, _, _, _ := onboard(t, c)

	w, err := c.Watch(asAdmin(admin), &rpc.WatchRequest{Collection: string(model.Admins)})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if _, err := w.Recv(); code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func contains(vals []string, want string) bool {
	for _, v := range vals {
		if v == want {
			return true
		}
	}
	return false
}
