package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"healthcare-records-api/internal/session"
)

// cookieMarkers keeps session markers in HTTP-only cookies. Changes are
// collected and written once, just before the response header goes out,
// so the last Set or Clear of a marker wins.
type cookieMarkers struct {
	c      echo.Context
	secure bool

	mu      sync.Mutex
	pending map[string]*http.Cookie
}

func newCookieMarkers(c echo.Context, secure bool) *cookieMarkers {
	m := &cookieMarkers{c: c, secure: secure, pending: make(map[string]*http.Cookie)}
	c.Response().Before(m.flush)
	return m
}

func (m *cookieMarkers) Get(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ck, ok := m.pending[name]; ok {
		return ck.Value
	}
	ck, err := m.c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (m *cookieMarkers) Set(name, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[name] = m.cookie(name, value, int(ttl.Seconds()))
}

func (m *cookieMarkers) Clear(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[name] = m.cookie(name, "", -1)
}

func (m *cookieMarkers) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *cookieMarkers) flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ck := range m.pending {
		m.c.SetCookie(ck)
	}
	m.pending = map[string]*http.Cookie{}
}

var _ session.Markers = (*cookieMarkers)(nil)
