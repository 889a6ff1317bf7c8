package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"healthcare-records-api/internal/apperr"
)

const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// Gemini calls the generateContent REST endpoint.
type Gemini struct {
	client   *http.Client
	endpoint string
	model    string
	key      string
}

func NewGemini(endpoint, model, key string, timeout time.Duration) *Gemini {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Gemini{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		key:      key,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Summarize(ctx context.Context, prompt string) (string, error) {
	if g.key == "" {
		return "", fmt.Errorf("%w: language model not configured", apperr.ErrUpstreamUnavailable)
	}
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", err
	}
	u := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.endpoint, url.PathEscape(g.model), url.QueryEscape(g.key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: language model returned %d: %s", apperr.ErrUpstreamUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", transportErr(err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: language model returned no candidates", apperr.ErrUpstreamUnavailable)
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func transportErr(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
}
