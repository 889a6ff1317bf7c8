// Package handler implements CareService on top of the session, records and
// assistant services. Identity and markers come from the middleware.
package handler

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/assistant"
	"healthcare-records-api/internal/identity"
	"healthcare-records-api/internal/middleware"
	"healthcare-records-api/internal/records"
	"healthcare-records-api/internal/rpc"
	"healthcare-records-api/internal/session"
)

type Handler struct {
	sessions  *session.Resolver
	records   *records.Service
	assistant *assistant.Service
	log       zerolog.Logger
}

var _ rpc.CareServer = (*Handler)(nil)

func New(sessions *session.Resolver, recs *records.Service, asst *assistant.Service, log zerolog.Logger) *Handler {
	return &Handler{
		sessions:  sessions,
		records:   recs,
		assistant: asst,
		log:       log.With().Str("component", "handler").Logger(),
	}
}

func caller(ctx context.Context) identity.Identity {
	return middleware.IdentityFrom(ctx)
}

// toStatus maps err onto a gRPC status. The client only sees the error kind;
// the full chain is logged.
func (h *Handler) toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if apperr.Known(err) {
		ev := h.log.Debug()
		if apperr.Upstream(err) {
			ev = h.log.Warn()
		}
		ev.Err(err).Msg("request failed")
		return status.Error(apperr.Code(err), apperr.Message(err))
	}
	h.log.Error().Err(err).Msg("unhandled error")
	return status.Error(codes.Internal, "internal error")
}
