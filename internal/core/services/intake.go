package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driving"
	"github.com/veilmed-labs/veilmed-core/internal/logger"
)

// Ensure IntakeService implements the interface.
var _ driving.Intake = (*IntakeService)(nil)

// IntakePolicy holds the syntactic limits the intake layer enforces.
// All values come from deployment configuration.
type IntakePolicy struct {
	// MaxBytes is the maximum combined payload size.
	MaxBytes int64

	// AllowedMediaTypes lists the accepted MIME types.
	AllowedMediaTypes []string

	// RatePerSender is the sustained per-sender message rate (msgs/sec).
	RatePerSender float64

	// RateBurst is the per-sender burst allowance.
	RateBurst int
}

// DefaultIntakePolicy returns the shipped defaults: 10 MB, common image
// and video types, 1 msg/sec with a burst of 5.
func DefaultIntakePolicy() IntakePolicy {
	return IntakePolicy{
		MaxBytes:          10 << 20,
		AllowedMediaTypes: []string{"image/jpeg", "image/png", "image/webp", "video/mp4"},
		RatePerSender:     1.0,
		RateBurst:         5,
	}
}

// IntakeService is the isolated input layer. It validates inbound
// messages syntactically, strips them down to an identity-free envelope,
// and forwards the envelope downstream without blocking on completion.
// It never parses message text or image content for meaning; that
// boundary is a correctness requirement, not an optimisation.
type IntakeService struct {
	queue     driven.EnvelopeQueue
	policy    func() IntakePolicy
	senderKey []byte
	retry     RetryPolicy

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewIntakeService creates the intake layer. policy is called per message
// so configuration hot reloads take effect without a restart; senderKey
// is the HMAC key for one-way sender hashing.
func NewIntakeService(
	queue driven.EnvelopeQueue,
	policy func() IntakePolicy,
	senderKey []byte,
	retry RetryPolicy,
) *IntakeService {
	return &IntakeService{
		queue:     queue,
		policy:    policy,
		senderKey: senderKey,
		retry:     retry,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Receive validates a raw message and enqueues the resulting envelope.
// Validation failures are terminal and generic: the error carries no
// diagnostic or clinical content.
func (s *IntakeService) Receive(ctx context.Context, msg domain.RawMessage) (*domain.InputEnvelope, error) {
	policy := s.policy()

	if err := validateMessage(msg, policy); err != nil {
		return nil, err
	}

	senderHash := s.hashSender(msg.SenderRef)
	if !s.limiter(senderHash, policy).Allow() {
		return nil, domain.ErrRateLimited
	}

	envelope := &domain.InputEnvelope{
		SessionID: uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      msg.Classify(),
		Content: domain.ContentRefs{
			Body:         msg.Body,
			MediaLocator: msg.MediaLocator,
			MediaType:    msg.MediaType,
		},
		Metadata: domain.EnvelopeMetadata{
			Format:   payloadFormat(msg),
			ByteSize: payloadSize(msg),
			Checksum: contentChecksum(msg),
		},
		Audit: domain.AuditTrail{
			SenderHash:   senderHash,
			ProcessingID: uuid.New().String(),
		},
	}

	// At-least-once enqueue with bounded backoff. Queue refusal is the
	// only retryable condition; anything else is a hard failure.
	err := s.retry.Execute(ctx,
		func(err error) bool { return errors.Is(err, domain.ErrQueueFull) },
		func() error { return s.queue.Enqueue(ctx, envelope) },
	)
	if err != nil {
		logger.Warn("Envelope delivery failed for session %s: %v", envelope.SessionID, err)
		return nil, fmt.Errorf("delivering envelope: %w", err)
	}

	logger.Debug("Accepted %s message, session %s", envelope.Type, envelope.SessionID)
	return envelope, nil
}

// validateMessage performs only syntactic checks: presence, size, MIME
// type, and structural coherence.
func validateMessage(msg domain.RawMessage, policy IntakePolicy) error {
	if msg.SenderRef == "" {
		return fmt.Errorf("%w: missing sender reference", domain.ErrValidation)
	}
	if msg.Body == "" && !msg.HasMedia() {
		return fmt.Errorf("%w: empty content", domain.ErrValidation)
	}
	if msg.HasMedia() {
		if msg.MediaType == "" {
			return fmt.Errorf("%w: missing media type", domain.ErrValidation)
		}
		if !mediaTypeAllowed(msg.MediaType, policy.AllowedMediaTypes) {
			return fmt.Errorf("%w: unsupported media type", domain.ErrValidation)
		}
		if msg.MediaSize <= 0 {
			return fmt.Errorf("%w: missing media size", domain.ErrValidation)
		}
	}
	if payloadSize(msg) > policy.MaxBytes {
		return fmt.Errorf("%w: payload too large", domain.ErrValidation)
	}
	return nil
}

func mediaTypeAllowed(mediaType string, allowed []string) bool {
	for _, a := range allowed {
		if mediaType == a {
			return true
		}
	}
	return false
}

func payloadSize(msg domain.RawMessage) int64 {
	return int64(len(msg.Body)) + msg.MediaSize
}

func payloadFormat(msg domain.RawMessage) string {
	if msg.HasMedia() {
		return msg.MediaType
	}
	return "text/plain"
}

// contentChecksum computes the integrity/replay checksum over the payload
// references. It hashes, it never interprets.
func contentChecksum(msg domain.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(msg.Body))
	h.Write([]byte{0})
	h.Write([]byte(msg.MediaLocator))
	h.Write([]byte{0})
	h.Write([]byte(msg.MediaType))
	return hex.EncodeToString(h.Sum(nil))
}

// SenderHash returns the one-way hash a sender reference maps to in
// envelopes. Hospital-side callers use it to bind a sender's case before
// messages flow; the hash is not reversible and not linkable across
// deployments.
func (s *IntakeService) SenderHash(senderRef string) string {
	return s.hashSender(senderRef)
}

// hashSender produces the one-way sender hash used for correlation and
// rate limiting. HMAC keyed per deployment, so the hash is not reversible
// and not linkable across deployments.
func (s *IntakeService) hashSender(senderRef string) string {
	mac := hmac.New(sha256.New, s.senderKey)
	mac.Write([]byte(senderRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// limiter returns the per-sender token bucket, creating it on first use.
func (s *IntakeService) limiter(senderHash string, policy IntakePolicy) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[senderHash]
	if !ok {
		l = rate.NewLimiter(rate.Limit(policy.RatePerSender), policy.RateBurst)
		s.limiters[senderHash] = l
	}
	return l
}
