package rpc

import (
	"context"

	"google.golang.org/grpc"

	"healthcare-records-api/internal/model"
	"healthcare-records-api/internal/records"
)

const ServiceName = "carebook.v1.CareService"

// FullMethod returns the gRPC path of a CareService method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

type WatchStream interface {
	Send(*WatchEvent) error
	grpc.ServerStream
}

type CareServer interface {
	RegisterAdmin(context.Context, *RegisterAdminRequest) (*SessionResponse, error)
	LoginAdmin(context.Context, *LoginRequest) (*SessionResponse, error)
	LoginDoctor(context.Context, *LoginRequest) (*SessionResponse, error)
	LoginPatient(context.Context, *LoginRequest) (*SessionResponse, error)
	RefreshSession(context.Context, *RefreshRequest) (*SessionResponse, error)
	Logout(context.Context, *Empty) (*Empty, error)
	WhoAmI(context.Context, *Empty) (*WhoAmIResponse, error)

	CreateDoctor(context.Context, *records.DoctorInput) (*model.Doctor, error)
	ListDoctors(context.Context, *ListRequest) (*Items[model.Doctor], error)
	UpdateDoctor(context.Context, *Update[records.DoctorInput]) (*model.Doctor, error)
	DeleteDoctor(context.Context, *IDRequest) (*Empty, error)

	CreatePatient(context.Context, *records.PatientInput) (*model.Patient, error)
	ListPatients(context.Context, *ListRequest) (*Items[model.Patient], error)
	GetPatient(context.Context, *IDRequest) (*model.Patient, error)
	UpdatePatient(context.Context, *Update[records.PatientInput]) (*model.Patient, error)
	DeletePatient(context.Context, *IDRequest) (*Empty, error)

	CreateReport(context.Context, *CreateChild[records.ReportInput]) (*model.Report, error)
	ListReports(context.Context, *ListRequest) (*Items[model.Report], error)
	UpdateReport(context.Context, *Update[records.ReportInput]) (*model.Report, error)
	DeleteReport(context.Context, *IDRequest) (*Empty, error)

	CreateReminder(context.Context, *CreateChild[records.ReminderInput]) (*model.Reminder, error)
	ListReminders(context.Context, *ListRequest) (*Items[model.Reminder], error)
	UpdateReminder(context.Context, *Update[records.ReminderInput]) (*model.Reminder, error)
	DeleteReminder(context.Context, *IDRequest) (*Empty, error)

	CreatePrescription(context.Context, *CreateChild[records.PrescriptionInput]) (*model.Prescription, error)
	ListPrescriptions(context.Context, *ListRequest) (*Items[model.Prescription], error)
	UpdatePrescription(context.Context, *Update[records.PrescriptionInput]) (*model.Prescription, error)
	DeletePrescription(context.Context, *IDRequest) (*Empty, error)

	AnalyzeReports(context.Context, *AnalyzeRequest) (*AnswerResponse, error)
	ExplainReport(context.Context, *ExplainRequest) (*AnswerResponse, error)
	Chat(context.Context, *ChatRequest) (*AnswerResponse, error)

	WatchRecords(*WatchRequest, WatchStream) error
}

// unary builds the descriptor entry for one request/response method.
func unary[Req, Resp any](name string, call func(CareServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CareServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(CareServer), ctx, req.(*Req))
			})
		},
	}
}

type watchStream struct {
	grpc.ServerStream
}

func (s *watchStream) Send(ev *WatchEvent) error {
	return s.ServerStream.SendMsg(ev)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CareServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("RegisterAdmin", CareServer.RegisterAdmin),
		unary("LoginAdmin", CareServer.LoginAdmin),
		unary("LoginDoctor", CareServer.LoginDoctor),
		unary("LoginPatient", CareServer.LoginPatient),
		unary("RefreshSession", CareServer.RefreshSession),
		unary("Logout", CareServer.Logout),
		unary("WhoAmI", CareServer.WhoAmI),

		unary("CreateDoctor", CareServer.CreateDoctor),
		unary("ListDoctors", CareServer.ListDoctors),
		unary("UpdateDoctor", CareServer.UpdateDoctor),
		unary("DeleteDoctor", CareServer.DeleteDoctor),

		unary("CreatePatient", CareServer.CreatePatient),
		unary("ListPatients", CareServer.ListPatients),
		unary("GetPatient", CareServer.GetPatient),
		unary("UpdatePatient", CareServer.UpdatePatient),
		unary("DeletePatient", CareServer.DeletePatient),

		unary("CreateReport", CareServer.CreateReport),
		unary("ListReports", CareServer.ListReports),
		unary("UpdateReport", CareServer.UpdateReport),
		unary("DeleteReport", CareServer.DeleteReport),

		unary("CreateReminder", CareServer.CreateReminder),
		unary("ListReminders", CareServer.ListReminders),
		unary("UpdateReminder", CareServer.UpdateReminder),
		unary("DeleteReminder", CareServer.DeleteReminder),

		unary("CreatePrescription", CareServer.CreatePrescription),
		unary("ListPrescriptions", CareServer.ListPrescriptions),
		unary("UpdatePrescription", CareServer.UpdatePrescription),
		unary("DeletePrescription", CareServer.DeletePrescription),

		unary("AnalyzeReports", CareServer.AnalyzeReports),
		unary("ExplainReport", CareServer.ExplainReport),
		unary("Chat", CareServer.Chat),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchRecords",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(CareServer).WatchRecords(in, &watchStream{stream})
			},
		},
	},
	Metadata: "carebook/v1/care.json",
}

func RegisterCareServer(s grpc.ServiceRegistrar, srv CareServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is a thin caller for CareService over any connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes the unary method name.
func (c *Client) Call(ctx context.Context, name string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	return c.cc.Invoke(ctx, FullMethod(name), in, out, opts...)
}

type WatchClient struct {
	grpc.ClientStream
}

func (w *WatchClient) Recv() (*WatchEvent, error) {
	ev := new(WatchEvent)
	if err := w.ClientStream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (c *Client) Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (*WatchClient, error) {
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod("WatchRecords"), opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchClient{stream}, nil
}
