// Package apperr holds the error kinds shared by every layer. Callers wrap
// them with fmt.Errorf("...: %w") and the transport boundaries map them to
// gRPC codes or HTTP statuses exactly once.
package apperr

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidCredential   = errors.New("invalid credentials")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrDuplicateAccount    = errors.New("account already exists")
	ErrWeakCredential      = errors.New("credential too weak")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrTimeout             = errors.New("upstream timeout")
	ErrUnresolvedIdentity  = errors.New("unresolved identity")
	ErrPrecondition        = errors.New("precondition failed")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// FromContext turns a finished context into the matching kind, nil if the
// context is still live.
func FromContext(ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return ErrTimeout
	default:
		return ErrUpstreamUnavailable
	}
}

type mapping struct {
	kind   error
	code   codes.Code
	status int
}

// order matters: the first kind found in the chain wins
var table = []mapping{
	{ErrUnresolvedIdentity, codes.Unauthenticated, http.StatusUnauthorized},
	{ErrInvalidCredential, codes.Unauthenticated, http.StatusUnauthorized},
	{ErrUnauthorized, codes.PermissionDenied, http.StatusForbidden},
	{ErrNotFound, codes.NotFound, http.StatusNotFound},
	{ErrDuplicateAccount, codes.AlreadyExists, http.StatusConflict},
	{ErrWeakCredential, codes.InvalidArgument, http.StatusBadRequest},
	{ErrInvalidArgument, codes.InvalidArgument, http.StatusBadRequest},
	{ErrPrecondition, codes.FailedPrecondition, http.StatusPreconditionFailed},
	{ErrTimeout, codes.DeadlineExceeded, http.StatusGatewayTimeout},
	{ErrUpstreamUnavailable, codes.Unavailable, http.StatusServiceUnavailable},
}

// Code returns the gRPC code for err; codes.Internal when err has no kind.
func Code(err error) codes.Code {
	for _, m := range table {
		if errors.Is(err, m.kind) {
			return m.code
		}
	}
	return codes.Internal
}

// HTTPStatus returns the HTTP status for err; 500 when err has no kind.
func HTTPStatus(err error) int {
	for _, m := range table {
		if errors.Is(err, m.kind) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// Message is the client-facing text for err: the kind alone, never the
// wrapped detail.
func Message(err error) string {
	for _, m := range table {
		if errors.Is(err, m.kind) {
			return m.kind.Error()
		}
	}
	return "internal error"
}

// Upstream reports whether err is a store or model failure rather than a
// caller mistake.
func Upstream(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrTimeout)
}

// Known reports whether err carries one of the kinds above.
func Known(err error) bool {
	for _, m := range table {
		if errors.Is(err, m.kind) {
			return true
		}
	}
	return false
}
