package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driving"
	"github.com/veilmed-labs/veilmed-core/internal/logger"
)

// Ensure TokenizerService implements the interface.
var _ driving.Tokenizer = (*TokenizerService)(nil)

// TokenizerService issues and resolves opaque patient tokens. It is the
// only component with access to the identity-bearing store, and the only
// place in the pipeline that holds a lock: the per-identity critical
// section around token issue.
type TokenizerService struct {
	store    driven.IdentityStore
	cipher   driven.IdentityCipher
	audit    driven.AuditLog
	keyAttrs []string
	locks    *keyedMutex
}

// NewTokenizerService creates a tokenizer over the identity store.
// keyAttrs selects which identity attributes feed the key hash; it comes
// from deployment policy, never from record content.
func NewTokenizerService(
	store driven.IdentityStore,
	cipher driven.IdentityCipher,
	audit driven.AuditLog,
	keyAttrs []string,
) *TokenizerService {
	return &TokenizerService{
		store:    store,
		cipher:   cipher,
		audit:    audit,
		keyAttrs: keyAttrs,
		locks:    newKeyedMutex(),
	}
}

// Tokenize returns the stable token for an identity, issuing one if none
// exists. Idempotent: the key hash is deterministic and the insert is
// guarded both by a per-key lock and by the store's conditional insert,
// so exactly one token is ever created per identity.
func (t *TokenizerService) Tokenize(ctx context.Context, attrs domain.IdentityAttributes) (domain.Token, error) {
	keyHash, err := domain.DeriveKeyHash(attrs, t.keyAttrs)
	if err != nil {
		t.appendAudit(ctx, "tokenize", "invalid_input")
		return "", err
	}

	unlock := t.locks.Lock(keyHash)
	defer unlock()

	token, err := t.lookupOrIssue(ctx, keyHash, attrs)
	if err != nil {
		t.appendAudit(ctx, "tokenize", failureClass(err))
		return "", err
	}

	t.appendAudit(ctx, "tokenize", "ok")
	return token, nil
}

// lookupOrIssue runs inside the per-key critical section.
func (t *TokenizerService) lookupOrIssue(
	ctx context.Context,
	keyHash string,
	attrs domain.IdentityAttributes,
) (domain.Token, error) {
	existing, err := t.store.ListByKeyHash(ctx, keyHash)
	if err != nil {
		return "", fmt.Errorf("lookup identity mapping: %w", err)
	}

	switch len(existing) {
	case 0:
		// Fall through to issue a new mapping.
	case 1:
		return existing[0].Token, nil
	default:
		// Multiple distinct mappings for one key hash require manual
		// resolution and are never auto-merged.
		return "", domain.ErrAmbiguousIdentity
	}

	payload, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("encoding identity payload: %w", err)
	}
	blob, err := t.cipher.Seal(payload)
	if err != nil {
		return "", fmt.Errorf("sealing identity payload: %w", err)
	}

	token, err := domain.NewToken()
	if err != nil {
		return "", err
	}

	mapping := domain.IdentityMapping{
		KeyHash:      keyHash,
		Token:        token,
		IdentityBlob: blob,
		CreatedAt:    time.Now().UTC(),
		Active:       true,
	}

	if err := t.store.Insert(ctx, mapping); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost the race to another process. The winner's token is
			// the canonical one.
			winners, lookupErr := t.store.ListByKeyHash(ctx, keyHash)
			if lookupErr != nil {
				return "", fmt.Errorf("re-reading identity mapping: %w", lookupErr)
			}
			if len(winners) == 1 {
				return winners[0].Token, nil
			}
			return "", domain.ErrAmbiguousIdentity
		}
		return "", fmt.Errorf("inserting identity mapping: %w", err)
	}

	logger.Debug("Issued token %s", token)
	return token, nil
}

// Resolve maps a token back to identity attributes. Hospital-side only.
func (t *TokenizerService) Resolve(ctx context.Context, token domain.Token) (domain.IdentityAttributes, error) {
	if domain.CallerRealm(ctx) != domain.RealmHospital {
		t.appendAudit(ctx, "resolve", "denied")
		return nil, domain.ErrAccessDenied
	}
	if !token.Valid() {
		t.appendAudit(ctx, "resolve", "invalid_token")
		return nil, domain.ErrInvalidToken
	}

	mapping, err := t.store.GetByToken(ctx, token)
	if err != nil {
		t.appendAudit(ctx, "resolve", failureClass(err))
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if !mapping.Active {
		t.appendAudit(ctx, "resolve", "inactive")
		return nil, domain.ErrTokenInactive
	}

	payload, err := t.cipher.Open(mapping.IdentityBlob)
	if err != nil {
		t.appendAudit(ctx, "resolve", "unsealing_failed")
		return nil, fmt.Errorf("unsealing identity payload: %w", err)
	}

	var attrs domain.IdentityAttributes
	if err := json.Unmarshal(payload, &attrs); err != nil {
		t.appendAudit(ctx, "resolve", "decoding_failed")
		return nil, fmt.Errorf("decoding identity payload: %w", err)
	}

	t.appendAudit(ctx, "resolve", "ok")
	return attrs, nil
}

// Deactivate marks a token's mapping inactive. Hospital-side only.
func (t *TokenizerService) Deactivate(ctx context.Context, token domain.Token) error {
	if domain.CallerRealm(ctx) != domain.RealmHospital {
		t.appendAudit(ctx, "deactivate", "denied")
		return domain.ErrAccessDenied
	}
	if !token.Valid() {
		t.appendAudit(ctx, "deactivate", "invalid_token")
		return domain.ErrInvalidToken
	}

	if err := t.store.Deactivate(ctx, token); err != nil {
		t.appendAudit(ctx, "deactivate", failureClass(err))
		return fmt.Errorf("deactivating mapping: %w", err)
	}

	t.appendAudit(ctx, "deactivate", "ok")
	return nil
}

// appendAudit records the call in the append-only audit log. Audit
// failures are logged, not propagated: the log is a side effect, and the
// primary outcome has already been decided.
func (t *TokenizerService) appendAudit(ctx context.Context, purpose, outcome string) {
	entry := domain.AuditEntry{
		Caller:    domain.CallerRealm(ctx),
		Purpose:   purpose,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
	if err := t.audit.Append(ctx, entry); err != nil {
		logger.Warn("Failed to append audit entry: %v", err)
	}
}

// failureClass maps an error to a short audit outcome label with no
// identity content.
func failureClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrAmbiguousIdentity):
		return "ambiguous_identity"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
