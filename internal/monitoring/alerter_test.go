package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qbank-cli/internal/config"
)

func thresholds() config.MonitoringConfig {
	return config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		CostThresholdUSD:     50.0,
		DLQDepthThreshold:    10,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(thresholds())
	snap := &MetricsSnapshot{
		RunsTotal:     20,
		RunsComplete:  19,
		RunsFailed:    1,
		FailRate:      0.05,
		CostUSD:       10.0,
		DLQDepth:      2,
		LookbackHours: 24,
	}
	assert.Empty(t, a.Evaluate(snap, &ConsistencyReport{}))
	assert.Empty(t, a.Evaluate(nil, nil))
}

func TestAlerter_Evaluate_RunFailureRate(t *testing.T) {
	a := NewAlerter(thresholds())
	snap := &MetricsSnapshot{
		RunsComplete:  6,
		RunsFailed:    4,
		FailRate:      0.4,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap, nil)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_FailureRateNeedsSample(t *testing.T) {
	a := NewAlerter(thresholds())
	snap := &MetricsSnapshot{RunsComplete: 1, RunsFailed: 1, FailRate: 0.5}
	assert.Empty(t, a.Evaluate(snap, nil))
}

func TestAlerter_Evaluate_CostAndDLQ(t *testing.T) {
	a := NewAlerter(thresholds())
	snap := &MetricsSnapshot{CostUSD: 75.5, DLQDepth: 12, LookbackHours: 24}

	alerts := a.Evaluate(snap, nil)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertCostOverrun, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "$75.50")
	assert.Equal(t, AlertDLQDepth, alerts[1].Type)
	assert.Equal(t, 12, alerts[1].Details["dlq_depth"])
}

func TestAlerter_Evaluate_ZeroThresholdsDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	snap := &MetricsSnapshot{RunsComplete: 5, RunsFailed: 5, FailRate: 0.5, CostUSD: 1000, DLQDepth: 100}
	assert.Empty(t, a.Evaluate(snap, nil))
}

func TestAlerter_Evaluate_Discrepancies(t *testing.T) {
	a := NewAlerter(thresholds())
	report := &ConsistencyReport{Discrepancies: []Discrepancy{
		{Kind: DiscrepancyOpenAuditFlags, Count: 2, Message: "2 audit flag(s) still open"},
		{Kind: DiscrepancyOrphanQuestions, Count: 1, Message: "1 question(s) reference no document"},
	}}

	alerts := a.Evaluate(nil, report)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertConsistency, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Equal(t, "high", alerts[1].Severity)
	assert.Equal(t, "orphan_questions", alerts[1].Details["kind"])
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.Equal(t, AlertConsistency, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := thresholds()
	cfg.WebhookURL = ts.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertConsistency, Severity: "medium", Message: "a"},
		{Type: AlertConsistency, Severity: "high", Message: "b"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg := thresholds()
	cfg.WebhookURL = ts.URL
	sent := NewAlerter(cfg).SendAlerts(context.Background(), []Alert{{Type: AlertDLQDepth}})
	assert.Zero(t, sent)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	sent := NewAlerter(thresholds()).SendAlerts(context.Background(), []Alert{{Type: AlertDLQDepth}})
	assert.Zero(t, sent)
}
