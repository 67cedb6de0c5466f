package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertCostOverrun    AlertType = "cost_overrun"
	AlertDLQDepth       AlertType = "dlq_depth"
	AlertConsistency    AlertType = "consistency"
)

// minFinishedRuns is the sample size below which the failure rate is noise.
const minFinishedRuns = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates snapshots and consistency reports against configured
// thresholds and posts alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the alerts raised by snap and report. Either may be nil.
func (a *Alerter) Evaluate(snap *MetricsSnapshot, report *ConsistencyReport) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap != nil {
		finished := snap.RunsComplete + snap.RunsFailed
		if a.cfg.FailureRateThreshold > 0 && finished >= minFinishedRuns && snap.FailRate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertRunFailureRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
					snap.FailRate*100, a.cfg.FailureRateThreshold*100,
					snap.RunsFailed, finished, snap.LookbackHours,
				),
				Details: map[string]any{
					"failure_rate": snap.FailRate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       snap.RunsFailed,
					"finished":     finished,
				},
				Timestamp: now,
			})
		}

		if a.cfg.CostThresholdUSD > 0 && snap.CostUSD > a.cfg.CostThresholdUSD {
			alerts = append(alerts, Alert{
				Type:     AlertCostOverrun,
				Severity: "high",
				Message: fmt.Sprintf(
					"LLM cost $%.2f exceeds threshold $%.2f in last %dh",
					snap.CostUSD, a.cfg.CostThresholdUSD, snap.LookbackHours,
				),
				Details: map[string]any{
					"cost_usd":      snap.CostUSD,
					"threshold_usd": a.cfg.CostThresholdUSD,
					"runs_total":    snap.RunsTotal,
				},
				Timestamp: now,
			})
		}

		if a.cfg.DLQDepthThreshold > 0 && snap.DLQDepth >= a.cfg.DLQDepthThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertDLQDepth,
				Severity: "medium",
				Message:  fmt.Sprintf("%d document(s) waiting in the dead-letter queue", snap.DLQDepth),
				Details: map[string]any{
					"dlq_depth": snap.DLQDepth,
					"threshold": a.cfg.DLQDepthThreshold,
				},
				Timestamp: now,
			})
		}
	}

	if report != nil {
		for _, d := range report.Discrepancies {
			severity := "medium"
			if d.Kind == DiscrepancyOrphanQuestions || d.Kind == DiscrepancyCountsUnavailable {
				severity = "high"
			}
			alerts = append(alerts, Alert{
				Type:      AlertConsistency,
				Severity:  severity,
				Message:   d.Message,
				Details:   map[string]any{"kind": string(d.Kind), "count": d.Count},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
