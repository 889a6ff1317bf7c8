package handler

import (
	"context"

	"healthcare-records-api/internal/middleware"
	"healthcare-records-api/internal/rpc"
	"healthcare-records-api/internal/session"
)

func sessionResponse(s session.Session) *rpc.SessionResponse {
	return &rpc.SessionResponse{
		Role:         string(s.Identity.Role()),
		ID:           s.Identity.ID(),
		Token:        s.Token,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
	}
}

func (h *Handler) RegisterAdmin(ctx context.Context, req *rpc.RegisterAdminRequest) (*rpc.SessionResponse, error) {
	s, err := h.sessions.RegisterAdmin(ctx, middleware.MarkersFrom(ctx), req.Phone, req.Secret, session.AdminProfile{
		Name:         req.Name,
		HospitalName: req.HospitalName,
	})
	if err != nil {
		return nil, h.toStatus(err)
	}
	return sessionResponse(s), nil
}

func (h *Handler) LoginAdmin(ctx context.Context, req *rpc.LoginRequest) (*rpc.SessionResponse, error) {
	s, err := h.sessions.LoginAdmin(ctx, middleware.MarkersFrom(ctx), req.Phone, req.Secret)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return sessionResponse(s), nil
}

func (h *Handler) LoginDoctor(ctx context.Context, req *rpc.LoginRequest) (*rpc.SessionResponse, error) {
	s, err := h.sessions.LoginDoctor(ctx, middleware.MarkersFrom(ctx), req.Phone, req.Secret)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return sessionResponse(s), nil
}

func (h *Handler) LoginPatient(ctx context.Context, req *rpc.LoginRequest) (*rpc.SessionResponse, error) {
	s, err := h.sessions.LoginPatient(ctx, middleware.MarkersFrom(ctx), req.Phone, req.Secret)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return sessionResponse(s), nil
}

// RefreshSession rotates the admin refresh token. A token in the body wins
// over the one carried as a marker.
func (h *Handler) RefreshSession(ctx context.Context, req *rpc.RefreshRequest) (*rpc.SessionResponse, error) {
	m := middleware.MarkersFrom(ctx)
	if req.RefreshToken != "" {
		m.Set(session.RefreshMarker, req.RefreshToken, 0)
	}
	s, err := h.sessions.Refresh(ctx, m)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return sessionResponse(s), nil
}

func (h *Handler) Logout(ctx context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	if err := h.sessions.Logout(ctx, middleware.MarkersFrom(ctx), caller(ctx)); err != nil {
		return nil, h.toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (h *Handler) WhoAmI(ctx context.Context, _ *rpc.Empty) (*rpc.WhoAmIResponse, error) {
	who := caller(ctx)
	resp := &rpc.WhoAmIResponse{Role: string(who.Role()), ID: who.ID()}
	if resp.Role == "" {
		resp.Role = "anonymous"
		return resp, nil
	}
	profile, err := h.sessions.Profile(ctx, who)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp.Profile = profile
	return resp, nil
}
