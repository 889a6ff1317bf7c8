package middleware

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/identity"
	"healthcare-records-api/internal/rpc"
	"healthcare-records-api/internal/session"
)

type ctxKey string

const (
	identityKey ctxKey = "identity"
	markersKey  ctxKey = "markers"
)

// open methods run even when the caller's markers cannot be resolved
var open = map[string]bool{
	rpc.FullMethod("RegisterAdmin"):  true,
	rpc.FullMethod("LoginAdmin"):     true,
	rpc.FullMethod("LoginDoctor"):    true,
	rpc.FullMethod("LoginPatient"):   true,
	rpc.FullMethod("RefreshSession"): true,
	rpc.FullMethod("Logout"):         true,
}

// IdentityFrom returns the caller resolved by Auth, Anonymous if none.
func IdentityFrom(ctx context.Context) identity.Identity {
	if id, ok := ctx.Value(identityKey).(identity.Identity); ok {
		return id
	}
	return identity.Anonymous{}
}

// MarkersFrom returns the request's session markers.
func MarkersFrom(ctx context.Context) session.Markers {
	if m, ok := ctx.Value(markersKey).(session.Markers); ok {
		return m
	}
	return session.NewMapMarkers()
}

// WithIdentity attaches a resolved caller and markers to ctx.
func WithIdentity(ctx context.Context, who identity.Identity, m session.Markers) context.Context {
	ctx = context.WithValue(ctx, identityKey, who)
	return context.WithValue(ctx, markersKey, m)
}

// resolve classifies the caller. Untrustworthy markers are dropped; for
// open methods the call then proceeds anonymously.
func resolve(ctx context.Context, r *session.Resolver, method string) (context.Context, *mdMarkers, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	m := newMDMarkers(md)
	who, err := r.Resolve(ctx, m)
	if errors.Is(err, apperr.ErrUnresolvedIdentity) {
		r.ForceLogout(m)
		if !open[method] {
			return ctx, m, status.Error(apperr.Code(err), "session is no longer valid, signed out")
		}
		who, err = identity.Anonymous{}, nil
	}
	if err != nil {
		return ctx, m, status.Error(apperr.Code(err), apperr.Message(err))
	}
	return WithIdentity(ctx, who, m), m, nil
}

// Auth resolves the caller on every unary call and sends marker changes
// back as response headers.
func Auth(r *session.Resolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		ctx, m, err := resolve(ctx, r, info.FullMethod)
		if err != nil {
			sendMarkers(ctx, m)
			return nil, err
		}
		resp, err := next(ctx, req)
		sendMarkers(ctx, m)
		return resp, err
	}
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }

// AuthStream is Auth for streaming calls.
func AuthStream(r *session.Resolver) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		ctx, m, err := resolve(ss.Context(), r, info.FullMethod)
		if hdr := m.header(); hdr != nil {
			_ = ss.SetHeader(hdr)
		}
		if err != nil {
			return err
		}
		return next(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

func sendMarkers(ctx context.Context, m *mdMarkers) {
	if hdr := m.header(); hdr != nil {
		_ = grpc.SetHeader(ctx, hdr)
	}
}
