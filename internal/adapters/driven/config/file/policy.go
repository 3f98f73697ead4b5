package file

import (
	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/services"
	"github.com/veilmed-labs/veilmed-core/internal/logger"
)

// Configuration keys for the deployment policy.
const (
	keyKeyAttributes = "identity.key_attributes"
	keyMaxBytes      = "intake.max_bytes"
	keyMediaTypes    = "intake.allowed_media_types"
	keyRatePerSender = "intake.rate_per_sender"
	keyRateBurst     = "intake.rate_burst"
	keyTriggers      = "escalation.trigger"
)

// KeyAttributes returns the configured identity key attributes, falling
// back to the shipped default of national id plus date of birth.
func (s *ConfigStore) KeyAttributes() []string {
	if attrs := s.GetStringSlice(keyKeyAttributes); len(attrs) > 0 {
		return attrs
	}
	return []string{"national_id", "date_of_birth"}
}

// IntakePolicy assembles the intake limits from configuration, with the
// shipped defaults filling any gap. Suitable as the policy provider
// passed to the intake service, so edits apply per message.
func (s *ConfigStore) IntakePolicy() services.IntakePolicy {
	policy := services.DefaultIntakePolicy()

	if v := s.GetInt(keyMaxBytes); v > 0 {
		policy.MaxBytes = int64(v)
	}
	if v := s.GetStringSlice(keyMediaTypes); len(v) > 0 {
		policy.AllowedMediaTypes = v
	}
	if v := s.GetFloat64(keyRatePerSender); v > 0 {
		policy.RatePerSender = v
	}
	if v := s.GetInt(keyRateBurst); v > 0 {
		policy.RateBurst = v
	}
	return policy
}

// TriggerRules decodes the [[escalation.trigger]] table array. Malformed
// rules are skipped with a warning rather than disabling escalation
// outright. With no rules configured the shipped defaults apply:
// overall confidence below 0.5 warns, risk percentage above 0.75 is
// critical.
func (s *ConfigStore) TriggerRules() []domain.TriggerRule {
	raw, ok := s.Get(keyTriggers)
	if !ok {
		return defaultTriggerRules()
	}

	entries, ok := raw.([]any)
	if !ok {
		logger.Warn("escalation.trigger is not a table array, using defaults")
		return defaultTriggerRules()
	}

	var rules []domain.TriggerRule
	for _, entry := range entries {
		table, ok := entry.(map[string]any)
		if !ok {
			logger.Warn("skipping malformed escalation trigger entry")
			continue
		}
		rule := domain.TriggerRule{
			Name:      asString(table["name"]),
			Metric:    asString(table["metric"]),
			Op:        domain.TriggerOp(asString(table["op"])),
			Threshold: asFloat(table["threshold"]),
			Severity:  domain.Severity(asString(table["severity"])),
		}
		if rule.Severity == "" {
			rule.Severity = domain.SeverityWarning
		}
		if err := rule.Validate(); err != nil {
			logger.Warn("skipping escalation trigger %q: %v", rule.Name, err)
			continue
		}
		rules = append(rules, rule)
	}

	if len(rules) == 0 {
		return defaultTriggerRules()
	}
	return rules
}

func defaultTriggerRules() []domain.TriggerRule {
	return []domain.TriggerRule{
		{
			Name:      "low_confidence",
			Metric:    "overall",
			Op:        domain.OpLessThan,
			Threshold: 0.5,
			Severity:  domain.SeverityWarning,
		},
		{
			Name:      "high_risk_score_detected",
			Metric:    "risk_percentage",
			Op:        domain.OpGreaterThan,
			Threshold: 0.75,
			Severity:  domain.SeverityCritical,
		},
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
