package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/metadata"

	"healthcare-records-api/internal/session"
)

// Response headers announcing marker changes. Browsers never see them: the
// grpc-web bridge turns them into cookies.
const (
	HeaderSetMarker   = "x-session-set"
	HeaderClearMarker = "x-session-clear"
)

// request metadata key for each marker
var markerKeys = map[string]string{
	session.DoctorMarker:  "x-doctor-session",
	session.PatientMarker: "x-patient-session",
	session.AdminMarker:   "authorization",
	session.RefreshMarker: "x-refresh-token",
}

// MarkerKey returns the metadata key that carries marker name.
func MarkerKey(name string) string {
	return markerKeys[name]
}

// mdMarkers reads markers from request metadata and records changes so
// they can be sent back as response headers.
type mdMarkers struct {
	in metadata.MD

	mu      sync.Mutex
	set     map[string]string
	ttl     map[string]time.Duration
	cleared map[string]bool
}

func newMDMarkers(md metadata.MD) *mdMarkers {
	return &mdMarkers{
		in:      md,
		set:     make(map[string]string),
		ttl:     make(map[string]time.Duration),
		cleared: make(map[string]bool),
	}
}

func (m *mdMarkers) Get(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.set[name]; ok {
		return v
	}
	if m.cleared[name] {
		return ""
	}
	vals := m.in.Get(markerKeys[name])
	if len(vals) == 0 {
		return ""
	}
	v := vals[0]
	if name == session.AdminMarker {
		v = strings.TrimPrefix(v, "Bearer ")
	}
	return v
}

func (m *mdMarkers) Set(name, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cleared, name)
	m.set[name] = value
	m.ttl[name] = ttl
}

func (m *mdMarkers) Clear(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.set, name)
	delete(m.ttl, name)
	m.cleared[name] = true
}

// header renders the recorded changes, nil when there are none.
func (m *mdMarkers) header() metadata.MD {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.set) == 0 && len(m.cleared) == 0 {
		return nil
	}
	md := metadata.MD{}
	for name, v := range m.set {
		md.Append(HeaderSetMarker, fmt.Sprintf("%s=%s; max-age=%d", name, v, int(m.ttl[name].Seconds())))
	}
	for name := range m.cleared {
		md.Append(HeaderClearMarker, name)
	}
	return md
}

// ParseSetMarker splits an x-session-set value into name, value and max-age
// seconds.
func ParseSetMarker(h string) (name, value string, maxAge int, ok bool) {
	kv, attr, _ := strings.Cut(h, "; ")
	name, value, ok = strings.Cut(kv, "=")
	if !ok || name == "" {
		return "", "", 0, false
	}
	if _, err := fmt.Sscanf(attr, "max-age=%d", &maxAge); err != nil {
		maxAge = 0
	}
	return name, value, maxAge, true
}

var _ session.Markers = (*mdMarkers)(nil)
