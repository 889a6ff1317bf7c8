package rpc

import (
	"encoding/json"
	"time"
)

type Empty struct{}

type RegisterAdminRequest struct {
	Phone        string `json:"phone"`
	Secret       string `json:"secret"`
	Name         string `json:"name"`
	HospitalName string `json:"hospitalName"`
}

type LoginRequest struct {
	Phone  string `json:"phone"`
	Secret string `json:"secret"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type SessionResponse struct {
	Role         string    `json:"role"`
	ID           string    `json:"id"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type WhoAmIResponse struct {
	Role    string `json:"role"`
	ID      string `json:"id,omitempty"`
	Profile any    `json:"profile,omitempty"`
}

type IDRequest struct {
	ID string `json:"id"`
}

type ListRequest struct {
	Search    string `json:"search,omitempty"`
	PatientID string `json:"patientId,omitempty"`
}

type Items[T any] struct {
	Items []T `json:"items"`
}

type Update[T any] struct {
	ID     string `json:"id"`
	Fields T      `json:"fields"`
}

type CreateChild[T any] struct {
	PatientID string `json:"patientId"`
	Fields    T      `json:"fields"`
}

type AnalyzeRequest struct {
	PatientID string `json:"patientId"`
}

type ExplainRequest struct {
	ReportID string `json:"reportId"`
}

type ChatRequest struct {
	Question string `json:"question"`
}

type AnswerResponse struct {
	Text     string `json:"text"`
	Degraded bool   `json:"degraded"`
}

type WatchRequest struct {
	Collection string `json:"collection"`
	PatientID  string `json:"patientId,omitempty"`
}

// WatchEvent is one full snapshot of the watched collection. Items holds
// the same entity JSON the List methods return.
type WatchEvent struct {
	Collection string          `json:"collection"`
	Items      json.RawMessage `json:"items"`
}
