package stagehand

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/musestudio/stagehand/internal/broadcast"
	"github.com/musestudio/stagehand/internal/health"
	"github.com/musestudio/stagehand/internal/metrics"
	"github.com/musestudio/stagehand/internal/orchestrator"
	iapi "github.com/musestudio/stagehand/internal/server"
	"github.com/musestudio/stagehand/internal/settings"
	"github.com/musestudio/stagehand/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Settings = settings.Settings

type SettingsPatch = settings.Patch

type Snapshot = broadcast.Snapshot

type Observer = broadcast.Observer

type HealthSummary = health.Summary

type ProbeResult = health.ProbeResult

type ProcessState = supervisor.State

type PickResult = orchestrator.PickResult

// Host is a thin facade over internal/orchestrator.Orchestrator.
// It provides a stable public API for embedding.

type Host struct{ inner *orchestrator.Orchestrator }

type Options struct {
	// ConfigDir overrides the per-user config directory. Empty means the
	// platform default (os.UserConfigDir()/stagehand).
	ConfigDir string
	Log       *slog.Logger
}

func New(opts Options) (*Host, error) {
	inner, err := orchestrator.New(orchestrator.Options{ConfigDir: opts.ConfigDir, Log: opts.Log})
	if err != nil {
		return nil, err
	}
	return &Host{inner: inner}, nil
}

func (h *Host) Startup(ctx context.Context) error { return h.inner.Startup(ctx) }
func (h *Host) Shutdown()                         { h.inner.Shutdown() }

func (h *Host) Snapshot() Snapshot         { return h.inner.Snapshot() }
func (h *Host) Settings() Settings         { return h.inner.Settings() }
func (h *Host) Subscribe(o Observer) func() { return h.inner.Subscribe(o) }

func (h *Host) UpdateSettings(p SettingsPatch) (Settings, error) { return h.inner.UpdateSettings(p) }

func (h *Host) StartAPI() error          { return h.inner.StartAPI() }
func (h *Host) StopAPI(force bool) error { return h.inner.StopAPI(force) }
func (h *Host) RestartAPI() error        { return h.inner.RestartAPI() }

func (h *Host) RunChecks(ctx context.Context) HealthSummary { return h.inner.RunChecks(ctx) }

func (h *Host) Logs(tail int) []string { return h.inner.Logs(tail) }
func (h *Host) ClearLogs()             { h.inner.ClearLogs() }

func (h *Host) PickRepoRoot(path string) (PickResult, error) { return h.inner.PickRepoRoot(path) }

// NewHTTPServer starts the control API server on addr using the given host.
// It fails when the control port cannot be bound.
func NewHTTPServer(addr string, h *Host, log *slog.Logger) (*http.Server, error) {
	return iapi.NewServer(addr, h.inner, log)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
