// Package remote provides an analysis engine backed by an HTTP model
// service. Requests carry only the opaque token, the case session, and
// the envelope; the service never sees an identity attribute.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
)

// Ensure Engine implements the interface.
var _ driven.AnalysisEngine = (*Engine)(nil)

// Default configuration values.
const (
	DefaultTimeout = 30 * time.Second

	analyzePath = "/v1/analyze"
)

// Config holds configuration for the remote analysis engine.
type Config struct {
	// BaseURL is the model service base URL. Required.
	BaseURL string

	// AgentType is the agent type this engine acts as. Required.
	AgentType string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration
}

// Engine calls a remote model service over HTTP.
type Engine struct {
	client    *http.Client
	baseURL   string
	agentType string
}

// analyzeRequest is the wire format sent to the model service.
type analyzeRequest struct {
	AgentType   string                `json:"agent_type"`
	Token       string                `json:"token"`
	CaseSession string                `json:"case_session"`
	Envelope    *domain.InputEnvelope `json:"envelope"`
	Upstream    []map[string]any      `json:"upstream,omitempty"`
}

// analyzeResponse is the wire format returned by the model service.
type analyzeResponse struct {
	Output     map[string]any     `json:"output"`
	Confidence map[string]float64 `json:"confidence"`
	Evidence   []string           `json:"evidence"`
}

// New creates a remote analysis engine.
func New(cfg Config) (*Engine, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: engine base URL required", domain.ErrInvalidInput)
	}
	if cfg.AgentType == "" {
		return nil, fmt.Errorf("%w: engine agent type required", domain.ErrInvalidInput)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Engine{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.BaseURL,
		agentType: cfg.AgentType,
	}, nil
}

// Name identifies the engine as an agent type on ledger records.
func (e *Engine) Name() string {
	return e.agentType
}

// Analyze sends one request to the model service. Transport failures
// and non-200 responses surface as ErrEngineUnavailable so callers can
// retry or fail the envelope without parsing provider errors.
func (e *Engine) Analyze(ctx context.Context, req driven.AnalysisRequest) (*driven.AnalysisResult, error) {
	body, err := json.Marshal(analyzeRequest{
		AgentType:   e.agentType,
		Token:       string(req.Token),
		CaseSession: req.CaseSession,
		Envelope:    req.Envelope,
		Upstream:    req.Upstream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+analyzePath,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused; the body content is
		// provider diagnostics we deliberately do not propagate.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return nil, fmt.Errorf("%w: model service returned status %d", domain.ErrEngineUnavailable, resp.StatusCode)
	}

	var decoded analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &driven.AnalysisResult{
		Output:     decoded.Output,
		Confidence: decoded.Confidence,
		Evidence:   decoded.Evidence,
	}, nil
}

// Ping validates the model service is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: model service returned status %d", domain.ErrEngineUnavailable, resp.StatusCode)
	}
	return nil
}
