package session

import (
	"sync"
	"time"
)

// Marker names. Values are signed session tokens, never profiles.
const (
	DoctorMarker  = "doctor_session"
	PatientMarker = "patient_session"
	AdminMarker   = "access_token"
	RefreshMarker = "refresh_token"
)

// AllMarkers lists every marker a client may hold.
var AllMarkers = []string{DoctorMarker, PatientMarker, AdminMarker, RefreshMarker}

// Markers is the client-held session state: cookies for browsers, request
// metadata for gRPC callers, a map in tests. Get returns "" when unset.
type Markers interface {
	Get(name string) string
	Set(name, value string, ttl time.Duration)
	Clear(name string)
}

// MapMarkers is an in-memory Markers.
type MapMarkers struct {
	mu   sync.Mutex
	vals map[string]string
}

func NewMapMarkers() *MapMarkers {
	return &MapMarkers{vals: make(map[string]string)}
}

func (m *MapMarkers) Get(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vals[name]
}

func (m *MapMarkers) Set(name, value string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[name] = value
}

func (m *MapMarkers) Clear(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, name)
}
