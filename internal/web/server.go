// Package web is the browser-facing HTTP surface: cookie-based session
// endpoints plus the grpc-web bridge.
package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/identity"
	"healthcare-records-api/internal/rpc"
	"healthcare-records-api/internal/session"
)

type Options struct {
	CORSOrigins  []string
	SecureCookie bool
	// Bridge serves /carebook.v1.CareService/*; nil leaves it unmounted.
	Bridge http.Handler
}

type server struct {
	sessions *session.Resolver
	secure   bool
	log      zerolog.Logger
}

// New builds the echo application.
func New(sessions *session.Resolver, opts Options, log zerolog.Logger) *echo.Echo {
	log = log.With().Str("component", "web").Logger()
	s := &server{sessions: sessions, secure: opts.SecureCookie, log: log}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(Recovery(log))
	e.Use(echomw.RequestID())
	e.Use(Logger(log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     opts.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "X-Grpc-Web", "X-User-Agent", "Authorization"},
		ExposeHeaders:    []string{"Grpc-Status", "Grpc-Message"},
		AllowCredentials: true,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	g := e.Group("/auth")
	g.POST("/register", s.register)
	g.POST("/login", s.login)
	g.POST("/refresh", s.refresh)
	g.POST("/logout", s.logout)
	g.GET("/session", s.current)

	if opts.Bridge != nil {
		e.Any("/"+rpc.ServiceName+"/*", echo.WrapHandler(opts.Bridge))
	}
	return e
}

type registerRequest struct {
	Phone        string `json:"phone"`
	Secret       string `json:"secret"`
	Name         string `json:"name"`
	HospitalName string `json:"hospitalName"`
}

type loginRequest struct {
	Role   string `json:"role"`
	Phone  string `json:"phone"`
	Secret string `json:"secret"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	Role      string    `json:"role"`
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type currentResponse struct {
	Role    string `json:"role"`
	ID      string `json:"id,omitempty"`
	Profile any    `json:"profile,omitempty"`
}

// Tokens stay in HTTP-only cookies; bodies only describe the session.
func toResponse(sess session.Session) sessionResponse {
	return sessionResponse{
		Role:      string(sess.Identity.Role()),
		ID:        sess.Identity.ID(),
		ExpiresAt: sess.ExpiresAt,
	}
}

func (s *server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m := newCookieMarkers(c, s.secure)
	sess, err := s.sessions.RegisterAdmin(c.Request().Context(), m, req.Phone, req.Secret, session.AdminProfile{
		Name:         req.Name,
		HospitalName: req.HospitalName,
	})
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusCreated, toResponse(sess))
}

func (s *server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	role, err := identity.ParseRole(req.Role)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	m := newCookieMarkers(c, s.secure)
	var sess session.Session
	switch role {
	case identity.RoleAdmin:
		sess, err = s.sessions.LoginAdmin(ctx, m, req.Phone, req.Secret)
	case identity.RoleDoctor:
		sess, err = s.sessions.LoginDoctor(ctx, m, req.Phone, req.Secret)
	case identity.RolePatient:
		sess, err = s.sessions.LoginPatient(ctx, m, req.Phone, req.Secret)
	}
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, toResponse(sess))
}

func (s *server) refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m := newCookieMarkers(c, s.secure)
	if req.RefreshToken != "" {
		m.Set(session.RefreshMarker, req.RefreshToken, 0)
	}
	sess, err := s.sessions.Refresh(c.Request().Context(), m)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, toResponse(sess))
}

func (s *server) logout(c echo.Context) error {
	m := newCookieMarkers(c, s.secure)
	who, err := s.resolve(c, m)
	if errors.Is(err, apperr.ErrUnresolvedIdentity) {
		return c.NoContent(http.StatusNoContent)
	}
	if err != nil {
		return s.httpError(err)
	}
	if err := s.sessions.Logout(c.Request().Context(), m, who); err != nil {
		return s.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *server) current(c echo.Context) error {
	m := newCookieMarkers(c, s.secure)
	who, err := s.resolve(c, m)
	if err != nil {
		return s.httpError(err)
	}
	if !identity.Authenticated(who) {
		return c.JSON(http.StatusOK, currentResponse{Role: "anonymous"})
	}
	profile, err := s.sessions.Profile(c.Request().Context(), who)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, currentResponse{Role: string(who.Role()), ID: who.ID(), Profile: profile})
}

// resolve identifies the cookie holder. Untrustworthy cookies are cleared
// before the error is returned.
func (s *server) resolve(c echo.Context, m session.Markers) (identity.Identity, error) {
	who, err := s.sessions.Resolve(c.Request().Context(), m)
	if errors.Is(err, apperr.ErrUnresolvedIdentity) {
		s.sessions.ForceLogout(m)
		s.log.Info().Err(err).Msg("forced logout")
	}
	return who, err
}

func (s *server) httpError(err error) error {
	if apperr.Known(err) {
		ev := s.log.Debug()
		if apperr.Upstream(err) {
			ev = s.log.Warn()
		}
		ev.Err(err).Msg("request failed")
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	s.log.Error().Err(err).Msg("unhandled error")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
