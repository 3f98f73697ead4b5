package domain

import (
	"strings"
	"time"
)

// InputType classifies the payload of an inbound message.
type InputType string

const (
	// InputText is a body-only message.
	InputText InputType = "text"
	// InputImage is an image attachment, with or without a locator body.
	InputImage InputType = "image"
	// InputVideo is a video attachment.
	InputVideo InputType = "video"
	// InputMixed combines a text body with a media attachment.
	InputMixed InputType = "mixed"
)

// RawMessage is the normalized form a channel adapter hands to the
// isolated input layer. The adapter is responsible for protocol-specific
// decoding before handoff.
type RawMessage struct {
	// SenderRef is the channel-level sender identifier. It is hashed
	// one-way before it appears anywhere downstream.
	SenderRef string

	// Body is the text content, possibly empty when media is present.
	Body string

	// MediaLocator is an opaque reference to the media payload.
	MediaLocator string

	// MediaType is the MIME type of the media payload.
	MediaType string

	// MediaSize is the media payload size in bytes.
	MediaSize int64
}

// HasMedia reports whether the message carries a media attachment.
func (m RawMessage) HasMedia() bool {
	return m.MediaLocator != ""
}

// Classify derives the input type from the message shape alone.
// It never inspects content for meaning.
func (m RawMessage) Classify() InputType {
	hasBody := strings.TrimSpace(m.Body) != ""
	switch {
	case hasBody && m.HasMedia():
		return InputMixed
	case m.HasMedia() && strings.HasPrefix(m.MediaType, "video/"):
		return InputVideo
	case m.HasMedia():
		return InputImage
	default:
		return InputText
	}
}

// ContentRefs carries opaque references to the message payload.
type ContentRefs struct {
	Body         string `json:"body"`
	MediaLocator string `json:"media_locator,omitempty"`
	MediaType    string `json:"media_type,omitempty"`
}

// EnvelopeMetadata describes the payload without interpreting it.
type EnvelopeMetadata struct {
	Format   string `json:"format"`
	ByteSize int64  `json:"byte_size"`
	Checksum string `json:"checksum"`
}

// AuditTrail holds correlation identifiers for the envelope. SenderHash is
// a one-way hash, never reversible to the sender.
type AuditTrail struct {
	SenderHash   string `json:"sender_hash"`
	ProcessingID string `json:"processing_id"`
}

// InputEnvelope is the identity-free structure forwarded to the analysis
// pipeline. By construction it has no field that can resolve to a real
// identity: the session ID is a per-exchange correlation key, not a
// patient identifier.
type InputEnvelope struct {
	SessionID string           `json:"session_id"`
	Timestamp time.Time        `json:"timestamp"`
	Type      InputType        `json:"input_type"`
	Content   ContentRefs      `json:"raw_content_refs"`
	Metadata  EnvelopeMetadata `json:"metadata"`
	Audit     AuditTrail       `json:"audit_trail"`
}
