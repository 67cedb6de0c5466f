package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Monitor runs the run-health and consistency checks in the background.
type Monitor struct {
	collector *Collector
	checker   *Checker
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewMonitor creates a background monitor.
func NewMonitor(collector *Collector, checker *Checker, alerter *Alerter, cfg config.MonitoringConfig) *Monitor {
	return &Monitor{
		collector: collector,
		checker:   checker,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	interval := time.Duration(m.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	log := zap.L().With(zap.String("component", "monitoring.monitor"))
	log.Info("starting monitor",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", m.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("monitor stopped")
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one collection and consistency pass and sends any alerts.
// It returns the number of alerts raised.
func (m *Monitor) Tick(ctx context.Context) int {
	log := zap.L().With(zap.String("component", "monitoring.monitor"))

	snap, err := m.collector.Collect(ctx, m.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
	}
	report := m.checker.Check(ctx)

	alerts := m.alerter.Evaluate(snap, report)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return 0
	}

	sent := m.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return len(alerts)
}
