package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriggerRuleFires(t *testing.T) {
	highRisk := TriggerRule{
		Name:      "high_risk_score_detected",
		Metric:    "risk_percentage",
		Op:        OpGreaterThan,
		Threshold: 0.75,
		Severity:  SeverityCritical,
	}
	lowConfidence := TriggerRule{
		Name:      "low_confidence",
		Metric:    "overall",
		Op:        OpLessThan,
		Threshold: 0.5,
		Severity:  SeverityWarning,
	}

	assert.True(t, highRisk.Fires(map[string]float64{"risk_percentage": 0.78}))
	assert.False(t, highRisk.Fires(map[string]float64{"risk_percentage": 0.75}), "threshold itself does not fire")
	assert.False(t, highRisk.Fires(map[string]float64{"overall": 0.9}), "absent metric never fires")

	assert.True(t, lowConfidence.Fires(map[string]float64{"overall": 0.3}))
	assert.False(t, lowConfidence.Fires(map[string]float64{"overall": 0.5}))
}

func TestTriggerRuleValidate(t *testing.T) {
	valid := TriggerRule{Name: "n", Metric: "m", Op: OpLessThan, Threshold: 0.5}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, TriggerRule{Metric: "m", Op: OpLessThan}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, TriggerRule{Name: "n", Op: OpLessThan}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, TriggerRule{Name: "n", Metric: "m", Op: "ge"}.Validate(), ErrInvalidInput)
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityWarning.Rank())
	assert.Greater(t, SeverityWarning.Rank(), SeverityInfo.Rank())
	assert.Greater(t, SeverityInfo.Rank(), Severity("").Rank())
}
