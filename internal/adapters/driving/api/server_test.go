package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmed-labs/veilmed-core/internal/adapters/driven/storage/memory"
	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/services"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.LedgerStore) {
	t.Helper()
	ledger := memory.NewLedgerStore()
	server := httptest.NewServer(NewServer(services.NewQueryService(ledger)).Handler())
	t.Cleanup(server.Close)
	return server, ledger
}

func seedAPIRecords(t *testing.T, ledger *memory.LedgerStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	root := domain.AnalysisRecord{
		ID:               "an-root",
		AgentType:        "image_analysis",
		Token:            "batman_ab12cd34",
		CaseSession:      "case-1",
		OutputSnapshot:   map[string]any{"grade": 2.0},
		ConfidenceScores: map[string]float64{"overall": 0.85},
		EvidenceRefs:     []string{"ref:a"},
		CreatedAt:        base,
	}
	require.NoError(t, ledger.Append(ctx, &root))

	parent := "an-root"
	child := domain.AnalysisRecord{
		ID:               "an-risk",
		AgentType:        "risk_assessment",
		Token:            "batman_ab12cd34",
		CaseSession:      "case-1",
		ParentID:         &parent,
		OutputSnapshot:   map[string]any{"risk_percentage": 0.78},
		ConfidenceScores: map[string]float64{"overall": 0.9},
		EvidenceRefs:     []string{"ref:a", "ref:b"},
		ProcessingTimeMS: 120,
		CreatedAt:        base.Add(time.Minute),
	}
	require.NoError(t, ledger.Append(ctx, &child))
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func TestChainEndpoint(t *testing.T) {
	server, ledger := newTestServer(t)
	seedAPIRecords(t, ledger)

	var body struct {
		CaseSession string                  `json:"case_session"`
		Records     []domain.AnalysisRecord `json:"records"`
	}
	status := getJSON(t, server.URL+"/chains/case-1", &body)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "case-1", body.CaseSession)
	require.Len(t, body.Records, 2)
	assert.Equal(t, "an-root", body.Records[0].ID, "parents come before children")
	assert.Equal(t, "an-risk", body.Records[1].ID)
}

func TestPathwayEndpoint(t *testing.T) {
	server, ledger := newTestServer(t)
	seedAPIRecords(t, ledger)

	var trace domain.PathwayTrace
	status := getJSON(t, server.URL+"/pathways/an-risk", &trace)
	require.Equal(t, http.StatusOK, status)

	require.Len(t, trace.Steps, 2)
	assert.Equal(t, "an-root", trace.Steps[0].AnalysisID)
	assert.Equal(t, 2, trace.Steps[1].CumulativeEvidence)
}

func TestPathwayNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	status := getJSON(t, server.URL+"/pathways/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCorrelationEndpoint(t *testing.T) {
	server, ledger := newTestServer(t)
	seedAPIRecords(t, ledger)

	var report domain.CorrelationReport
	status := getJSON(t, server.URL+"/correlations/case-1", &report)
	require.Equal(t, http.StatusOK, status)

	require.Len(t, report.Pairs, 1)
	assert.Equal(t, "image_analysis", report.Pairs[0].AgentA)
	assert.Equal(t, "risk_assessment", report.Pairs[0].AgentB)
}

func TestPerformanceEndpoint(t *testing.T) {
	server, ledger := newTestServer(t)
	seedAPIRecords(t, ledger)

	var perf domain.AgentPerformance
	status := getJSON(t, server.URL+"/agents/risk_assessment/performance", &perf)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, perf.Records)

	// Window excludes the record.
	status = getJSON(t,
		server.URL+"/agents/risk_assessment/performance?from=2027-01-01T00:00:00Z", &perf)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, perf.Records)

	status = getJSON(t, server.URL+"/agents/risk_assessment/performance?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestErrorBodiesStayGeneric(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/pathways/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not found", body["error"])
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	status := getJSON(t, server.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
}
