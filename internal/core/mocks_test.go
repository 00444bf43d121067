package core

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/config"
	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// MockCycleRunner implements CycleRunner with a canned report or error and
// records how many times it was invoked.
type MockCycleRunner struct {
	Report *types.CycleReport
	Err    error
	Calls  int
}

func (m *MockCycleRunner) RunCycle(ctx context.Context) (*types.CycleReport, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Report, nil
}

// MockMetrics implements MetricsCollector and records the last report.
type MockMetrics struct {
	Calls    int
	Report   *types.CycleReport
	Duration time.Duration
}

func (m *MockMetrics) RecordCycle(_ context.Context, report *types.CycleReport, duration time.Duration) {
	m.Calls++
	m.Report = report
	m.Duration = duration
}

// MockProbe implements HealthProbe with a fixed name and result.
type MockProbe struct {
	ProbeName string
	Err       error
	// Delay simulates a slow subsystem.
	Delay time.Duration
}

func (p *MockProbe) Name() string { return p.ProbeName }

func (p *MockProbe) Check(ctx context.Context) error {
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.Err
}

func sampleReport() *types.CycleReport {
	return &types.CycleReport{
		Success:         true,
		Processed:       2,
		Successful:      1,
		Failed:          1,
		EmailsProcessed: 3,
		Details: types.CycleDetails{
			Successful: []types.JobOutcome{{ID: "job-1", Type: types.JobTest, Attempts: 1, Result: "completed"}},
			Failed:     []types.JobOutcome{{ID: "job-2", Type: types.JobTest, Attempts: 3, Result: "failed", Error: "boom"}},
		},
		Timestamp: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

// newTestServer builds a Server with discard logging and a default runner.
// The router starts empty; tests that exercise routing call MountRoutes.
func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	srv, err := NewServer(cfg, &MockCycleRunner{Report: sampleReport()}, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}
