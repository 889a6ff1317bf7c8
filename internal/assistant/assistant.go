// Package assistant produces plain-language text about medical records with
// a hosted language model. When the model is unreachable the caller gets a
// fixed fallback message instead of an error.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/identity"
	"healthcare-records-api/internal/records"
)

const (
	FallbackReply   = "Sorry, I am unable to process your request at the moment."
	FallbackSummary = "Unable to generate summary at this time. Please try again later."
)

type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Answer is model output. Degraded is set when Text is a fallback.
type Answer struct {
	Text     string `json:"text"`
	Degraded bool   `json:"degraded"`
}

type Service struct {
	llm     Summarizer
	records *records.Service
	timeout time.Duration
	log     zerolog.Logger
}

func New(llm Summarizer, recs *records.Service, timeout time.Duration, log zerolog.Logger) *Service {
	return &Service{
		llm:     llm,
		records: recs,
		timeout: timeout,
		log:     log.With().Str("component", "assistant").Logger(),
	}
}

// AnalyzeReports asks for trends across all of a patient's reports. Only
// the patient's doctor may ask.
func (s *Service) AnalyzeReports(ctx context.Context, who identity.Identity, patientID string) (Answer, error) {
	if _, ok := who.(identity.Doctor); !ok {
		return Answer{}, fmt.Errorf("%w: only doctors analyze reports", apperr.ErrUnauthorized)
	}
	patient, err := s.records.GetPatient(ctx, who, patientID)
	if err != nil {
		return Answer{}, err
	}
	reports, err := s.records.ListReports(ctx, who, patientID)
	if err != nil {
		return Answer{}, err
	}
	if len(reports) == 0 {
		return Answer{}, fmt.Errorf("%w: no reports available for analysis", apperr.ErrPrecondition)
	}

	var b strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&b, "Date: %s\nBP: %s, Sugar: %s, Weight: %s, Temp: %s\nRBC: %s, WBC: %s, Platelets: %s\nNotes: %s\n\n",
			day(r.CreatedAt), r.BP, r.Sugar, r.Weight, r.Temperature, r.RBC, r.WBC, r.Platelets, r.AdditionalNotes)
	}
	prompt := fmt.Sprintf("Analyze these medical reports for patient %s and provide insights on progress, trends, and recommendations:\n\n%s",
		patient.Name, b.String())
	return s.ask(ctx, "analyze", prompt, FallbackReply), nil
}

// ExplainReport explains one report the caller can see in patient-friendly terms.
func (s *Service) ExplainReport(ctx context.Context, who identity.Identity, reportID string) (Answer, error) {
	r, err := s.records.GetReport(ctx, who, reportID)
	if err != nil {
		return Answer{}, err
	}
	data := strings.Join([]string{
		"Blood Pressure: " + orDefault(r.BP, "Not recorded"),
		"Blood Sugar: " + orDefault(r.Sugar, "Not recorded") + " mg/dL",
		"Weight: " + orDefault(r.Weight, "Not recorded") + " kg",
		"Temperature: " + orDefault(r.Temperature, "Not recorded") + " °F",
		"RBC Count: " + orDefault(r.RBC, "Not recorded"),
		"WBC Count: " + orDefault(r.WBC, "Not recorded"),
		"Platelets: " + orDefault(r.Platelets, "Not recorded"),
		"Additional Notes: " + orDefault(r.AdditionalNotes, "None"),
		"Date: " + day(r.CreatedAt),
	}, "\n")
	prompt := "Please explain this medical report in simple, patient-friendly language. " +
		"Highlight any concerning values and suggest what the patient should do next:\n\n" + data
	return s.ask(ctx, "explain", prompt, FallbackSummary), nil
}

// Chat answers a single health question. No history is kept.
func (s *Service) Chat(ctx context.Context, who identity.Identity, question string) (Answer, error) {
	if !identity.Authenticated(who) {
		return Answer{}, fmt.Errorf("%w: sign in to chat", apperr.ErrUnauthorized)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("%w: question required", apperr.ErrInvalidArgument)
	}
	prompt := fmt.Sprintf("As a medical AI assistant, provide helpful and accurate information about: %s. "+
		"Keep responses clear, concise, and patient-friendly. If it's a serious medical concern, advise to consult a doctor immediately.",
		question)
	return s.ask(ctx, "chat", prompt, FallbackReply), nil
}

func (s *Service) ask(ctx context.Context, kind, prompt, fallback string) Answer {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	text, err := s.llm.Summarize(ctx, prompt)
	if err != nil {
		s.log.Warn().Err(err).Str("kind", kind).Dur("took", time.Since(start)).Msg("language model unavailable, using fallback")
		return Answer{Text: fallback, Degraded: true}
	}
	return Answer{Text: text}
}

func day(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.Format("2006-01-02")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

var _ Summarizer = (*Gemini)(nil)
