package deterministic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
)

func request(checksum string) driven.AnalysisRequest {
	return driven.AnalysisRequest{
		Token:       "batman_ab12cd34",
		CaseSession: "case-1",
		Envelope: &domain.InputEnvelope{
			SessionID: "sess-1",
			Type:      domain.InputImage,
			Metadata:  domain.EnvelopeMetadata{Checksum: checksum},
		},
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	engine := New("image_analysis")
	ctx := context.Background()

	first, err := engine.Analyze(ctx, request("abc123"))
	require.NoError(t, err)
	second, err := engine.Analyze(ctx, request("abc123"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := engine.Analyze(ctx, request("def456"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Output, other.Output)
}

func TestAnalyzeImageShape(t *testing.T) {
	engine := New("image_analysis")

	result, err := engine.Analyze(context.Background(), request("abc123"))
	require.NoError(t, err)

	grade, ok := result.Output["grade"].(int)
	require.True(t, ok)
	assert.GreaterOrEqual(t, grade, 1)
	assert.LessOrEqual(t, grade, 4)

	overall := result.Confidence["overall"]
	assert.GreaterOrEqual(t, overall, 0.5)
	assert.LessOrEqual(t, overall, 1.0)
	assert.NotEmpty(t, result.Evidence)
}

func TestAnalyzeRiskUsesUpstreamGrade(t *testing.T) {
	engine := New("risk_assessment")
	req := request("abc123")
	req.Upstream = []map[string]any{{"grade": 4}}

	result, err := engine.Analyze(context.Background(), req)
	require.NoError(t, err)

	risk, ok := result.Output["risk_percentage"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, risk, 0.7, "a grade 4 upstream dominates the risk score")
	assert.LessOrEqual(t, risk, 1.0)
	assert.Equal(t, risk, result.Confidence["risk_percentage"])
}

func TestAnalyzeAgentsDisagree(t *testing.T) {
	image := New("image_analysis")
	risk := New("risk_assessment")
	ctx := context.Background()

	a, err := image.Analyze(ctx, request("abc123"))
	require.NoError(t, err)
	b, err := risk.Analyze(ctx, request("abc123"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Confidence["overall"], b.Confidence["overall"],
		"the seed folds in the agent name")
}

func TestAnalyzeWithoutEnvelope(t *testing.T) {
	engine := New("image_analysis")
	_, err := engine.Analyze(context.Background(), driven.AnalysisRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
