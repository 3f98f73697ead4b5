package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driving"
	"github.com/veilmed-labs/veilmed-core/internal/logger"
)

// PipelineService drives identity-free envelopes through the configured
// agent chain and records every agent's conclusion in the ledger. Each
// record's parent is the previous agent's record, so the chain is linear
// per envelope; branching chains arise from multiple envelopes sharing a
// case session.
type PipelineService struct {
	recorder driving.Recorder
	engines  []driven.AnalysisEngine

	mu       sync.Mutex
	bindings map[string]domain.CaseBinding
}

// Ensure PipelineService implements the binder interface.
var _ driving.CaseBinder = (*PipelineService)(nil)

// NewPipelineService creates a pipeline over the given agent chain.
// Engines run in the order given; each sees the outputs of those before
// it.
func NewPipelineService(recorder driving.Recorder, engines ...driven.AnalysisEngine) *PipelineService {
	return &PipelineService{
		recorder: recorder,
		engines:  engines,
		bindings: make(map[string]domain.CaseBinding),
	}
}

// Bind associates a sender hash with a token and case session. Must
// happen before the sender's first envelope reaches Process; an unbound
// envelope is refused, not recorded under a guessed identity. The
// binding persists across the sender's messages until Unbind.
func (p *PipelineService) Bind(senderHash string, binding domain.CaseBinding) error {
	if senderHash == "" {
		return fmt.Errorf("%w: sender hash required", domain.ErrInvalidInput)
	}
	if !binding.Token.Valid() {
		return domain.ErrInvalidToken
	}
	if binding.CaseSession == "" {
		return fmt.Errorf("%w: case session required", domain.ErrInvalidInput)
	}

	p.mu.Lock()
	p.bindings[senderHash] = binding
	p.mu.Unlock()
	return nil
}

// Unbind removes a sender's case binding, typically on discharge.
func (p *PipelineService) Unbind(senderHash string) {
	p.mu.Lock()
	delete(p.bindings, senderHash)
	p.mu.Unlock()
}

// Process runs the agent chain over one envelope. A store failure aborts
// the chain before dependent steps run; a degraded escalation does not,
// because the record itself is durable.
func (p *PipelineService) Process(ctx context.Context, envelope *domain.InputEnvelope) error {
	if envelope == nil {
		return fmt.Errorf("%w: nil envelope", domain.ErrInvalidInput)
	}

	binding, ok := p.lookup(envelope.Audit.SenderHash)
	if !ok {
		return fmt.Errorf("%w: no case binding for session %s", domain.ErrInvalidInput, envelope.SessionID)
	}

	var (
		parentID *string
		upstream []map[string]any
	)

	for _, engine := range p.engines {
		started := time.Now().UTC()

		result, err := engine.Analyze(ctx, driven.AnalysisRequest{
			Token:       binding.Token,
			CaseSession: binding.CaseSession,
			Envelope:    envelope,
			Upstream:    upstream,
		})
		if err != nil {
			return fmt.Errorf("agent %s: %w", engine.Name(), err)
		}

		id, err := p.recorder.Record(ctx, domain.AnalysisSubmission{
			AgentType:   engine.Name(),
			Token:       binding.Token,
			CaseSession: binding.CaseSession,
			ParentID:    parentID,
			InputSnapshot: map[string]any{
				"session_id": envelope.SessionID,
				"input_type": string(envelope.Type),
				"checksum":   envelope.Metadata.Checksum,
			},
			OutputSnapshot:   result.Output,
			ConfidenceScores: result.Confidence,
			EvidenceRefs:     result.Evidence,
			StartedAt:        started,
		})
		if err != nil {
			if !errors.Is(err, ErrEscalationDegraded) {
				return fmt.Errorf("recording agent %s: %w", engine.Name(), err)
			}
			logger.Warn("Escalation degraded for analysis %s: %v", id, err)
		}

		parentID = &id
		upstream = append(upstream, result.Output)
	}

	return nil
}

func (p *PipelineService) lookup(senderHash string) (domain.CaseBinding, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	binding, ok := p.bindings[senderHash]
	return binding, ok
}
