package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/qbank-cli/internal/config"
	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/store"
)

func newMonitor(st store.Store, cfg config.MonitoringConfig) *Monitor {
	return NewMonitor(NewCollector(st), NewChecker(st), NewAlerter(cfg), cfg)
}

func TestMonitor_TickSendsConsistencyAlerts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	doc, err := st.UpsertDocument(ctx, "HCPA 2019", model.DocumentMeta{})
	if !assert.NoError(t, err) {
		return
	}
	assert.NoError(t, st.MarkDocumentProcessed(ctx, doc.ID))

	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	raised := newMonitor(st, config.MonitoringConfig{LookbackWindowHours: 24, WebhookURL: ts.URL}).Tick(ctx)
	assert.Equal(t, 1, raised)
	assert.Equal(t, int32(1), hits.Load())
}

func TestMonitor_TickSurvivesStoreFailure(t *testing.T) {
	st := &failingStore{countsStore: countsStore{err: errors.New("db down")}}
	raised := newMonitor(st, config.MonitoringConfig{LookbackWindowHours: 24}).Tick(context.Background())
	assert.Equal(t, 1, raised)
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	m := newMonitor(newTestStore(t), config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Monitor.Run did not stop after context cancellation")
	}
}

func TestMonitor_DefaultInterval(t *testing.T) {
	m := newMonitor(newTestStore(t), config.MonitoringConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Run(ctx)
}

// failingStore fails the collector queries as well as counts.
type failingStore struct {
	countsStore
}

func (s *failingStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.Run, error) {
	return nil, errors.New("db down")
}
