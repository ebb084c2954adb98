// Package orchestrator owns the host's components as explicit fields; there
// is no ambient global state. Mutating commands are serialized: each runs to
// completion, including its reactive cascade, before the next is accepted.
// Reads (snapshots, logs) go straight to the owning component and never take
// the command lock.
package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/musestudio/stagehand/internal/assethost"
	"github.com/musestudio/stagehand/internal/broadcast"
	"github.com/musestudio/stagehand/internal/health"
	"github.com/musestudio/stagehand/internal/history"
	"github.com/musestudio/stagehand/internal/logger"
	"github.com/musestudio/stagehand/internal/settings"
	"github.com/musestudio/stagehand/internal/supervisor"
)

// BroadcastCadence is the fixed push interval in addition to per-mutation
// broadcasts.
const BroadcastCadence = 5 * time.Second

type Options struct {
	// ConfigDir overrides the per-user config directory (tests).
	ConfigDir string
	Log       *slog.Logger
}

type Orchestrator struct {
	cmdMu sync.Mutex // serializes mutating operations and their cascades

	cfgDir string
	store  *settings.Store
	sup    *supervisor.Supervisor
	assets *assethost.Host
	agg    *health.Aggregator
	bc     *broadcast.Broadcaster
	log    *slog.Logger
	sink   *history.SQLiteSink

	healthMu   sync.RWMutex
	lastHealth *health.Summary

	cancelCadence context.CancelFunc
}

func New(opts Options) (*Orchestrator, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	cfgDir := opts.ConfigDir
	if cfgDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		cfgDir = filepath.Join(base, "stagehand")
	}
	if err := os.MkdirAll(cfgDir, 0o750); err != nil {
		return nil, err
	}

	store, err := settings.Open(filepath.Join(cfgDir, "settings.json"))
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfgDir: cfgDir,
		store:  store,
		assets: assethost.New(log),
		agg:    health.NewAggregator(),
		log:    log,
	}
	o.sup = supervisor.New(o.buildSpec(store.Current(), cfgDir), log)
	o.bc = broadcast.New(o.Snapshot)
	o.sup.SetOnChange(o.bc.Broadcast)

	if sink, err := history.NewSQLite(filepath.Join(cfgDir, "history.db")); err == nil {
		o.sink = sink
		o.sup.SetHistory(sink)
	} else {
		log.Warn("history journal unavailable", "error", err)
	}
	return o, nil
}

// buildSpec derives the effective supervisor spec from settings, applying
// environment overrides. Auto-restart only applies while supervising
// locally.
func (o *Orchestrator) buildSpec(s settings.Settings, cfgDir string) supervisor.Spec {
	return supervisor.Spec{
		Python:      settings.EffectivePython(s),
		RepoRoot:    settings.EffectiveRepoRoot(s),
		Port:        settings.BackendPort,
		AutoRestart: s.AutoRestartAPI && s.RuntimeMode == settings.ModeLocal,
		Log:         logger.Config{Dir: filepath.Join(cfgDir, "logs")},
	}
}

// Startup brings the host to its steady state: asset host up, backend
// auto-started when configured, cadence broadcasting running.
func (o *Orchestrator) Startup(ctx context.Context) error {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	s := o.store.Current()
	root := settings.EffectiveRepoRoot(s)
	if err := o.assets.Start(assethost.RepoDir(root), assethost.BundledDir()); err != nil {
		// The host is still useful without assets; surface and continue.
		o.log.Warn("asset host not started", "error", err)
	}
	if s.RuntimeMode == settings.ModeLocal && s.AutoStartAPI {
		if err := o.sup.Start(); err != nil {
			o.log.Warn("backend auto-start failed", "error", err)
		}
	}
	cctx, cancel := context.WithCancel(ctx)
	o.cancelCadence = cancel
	go o.bc.Run(cctx, BroadcastCadence)
	o.bc.Broadcast()
	return nil
}

// Shutdown tears everything down: pending restarts cancelled, backend
// stopped, asset host closed, history flushed.
func (o *Orchestrator) Shutdown() {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()
	if o.cancelCadence != nil {
		o.cancelCadence()
	}
	_ = o.sup.Shutdown()
	_ = o.assets.Stop()
	if o.sink != nil {
		_ = o.sink.Close()
	}
}

// Snapshot composes the current state of all components. Safe to call from
// any goroutine; it takes no command lock.
func (o *Orchestrator) Snapshot() broadcast.Snapshot {
	s := o.store.Current()
	o.healthMu.RLock()
	h := o.lastHealth
	o.healthMu.RUnlock()
	return broadcast.Snapshot{
		Time:             time.Now().UTC(),
		Settings:         s,
		EffectiveAPIBase: settings.EffectiveAPIBase(s),
		Process:          o.sup.State(),
		AssetHost:        o.assets.State(),
		Health:           h,
	}
}

// Subscribe registers a status observer.
func (o *Orchestrator) Subscribe(obs broadcast.Observer) func() { return o.bc.Subscribe(obs) }

// Settings returns the current settings.
func (o *Orchestrator) Settings() settings.Settings { return o.store.Current() }

// UpdateSettings merges the patch, persists, and runs the reactive cascade
// synchronously before returning.
func (o *Orchestrator) UpdateSettings(patch settings.Patch) (settings.Settings, error) {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()
	defer o.bc.Broadcast()

	_ = o.store.Current()
	next, diff, err := o.store.Update(patch)
	if err != nil {
		// In-memory settings already advanced; surface the persistence
		// failure but still run the cascade against the new values.
		o.log.Error("settings persistence failed", "error", err)
	}
	o.applySpec(next)

	wasRunning := o.sup.State().Phase == supervisor.PhaseRunning ||
		o.sup.State().Phase == supervisor.PhaseStarting

	if diff.RepoRootChanged {
		root := settings.EffectiveRepoRoot(next)
		if aerr := o.assets.Restart(assethost.RepoDir(root), assethost.BundledDir()); aerr != nil {
			o.log.Warn("asset host restart failed", "error", aerr)
		}
		if wasRunning && next.RuntimeMode == settings.ModeLocal {
			if rerr := o.sup.Restart(); rerr != nil {
				o.log.Warn("backend restart after root change failed", "error", rerr)
			}
		}
	}
	if diff.RuntimeModeChanged {
		switch next.RuntimeMode {
		case settings.ModeCloud:
			_ = o.sup.Stop(false)
		case settings.ModeLocal:
			if next.AutoStartAPI {
				if serr := o.sup.Start(); serr != nil {
					o.log.Warn("backend start after mode change failed", "error", serr)
				}
			}
		}
	} else if diff.AutoStartEnabled && next.RuntimeMode == settings.ModeLocal {
		if serr := o.sup.Start(); serr != nil {
			o.log.Warn("backend auto-start failed", "error", serr)
		}
	}
	return next, err
}

// applySpec pushes a freshly derived spec to the supervisor.
func (o *Orchestrator) applySpec(s settings.Settings) {
	_ = o.sup.UpdateSpec(o.buildSpec(s, o.cfgDir))
}

// StartAPI starts the supervised backend. Refused in cloud mode.
func (o *Orchestrator) StartAPI() error {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()
	defer o.bc.Broadcast()
	if o.store.Current().RuntimeMode == settings.ModeCloud {
		return ErrCloudMode
	}
	return o.sup.Start()
}

// StopAPI stops the supervised backend.
func (o *Orchestrator) StopAPI(force bool) error {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()
	defer o.bc.Broadcast()
	return o.sup.Stop(force)
}

// RestartAPI stops then starts the backend sequentially.
func (o *Orchestrator) RestartAPI() error {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()
	defer o.bc.Broadcast()
	if o.store.Current().RuntimeMode == settings.ModeCloud {
		return ErrCloudMode
	}
	return o.sup.Restart()
}

// RunChecks executes the probe battery and retains the summary for
// subsequent snapshots.
func (o *Orchestrator) RunChecks(ctx context.Context) health.Summary {
	s := o.store.Current()
	root := settings.EffectiveRepoRoot(s)
	env := health.Env{
		RepoRoot:      root,
		Python:        settings.EffectivePython(s),
		BackendPort:   settings.BackendPort,
		LivePort:      s.LivePort,
		TTSServer:     s.TTSServer,
		AssetPrimary:  assethost.RepoDir(root),
		AssetFallback: assethost.BundledDir(),
		PortOwned:     o.sup.OwnsPort,
	}
	sum := o.agg.Run(ctx, env)
	o.healthMu.Lock()
	o.lastHealth = &sum
	o.healthMu.Unlock()
	o.bc.Broadcast()
	return sum
}

// Logs returns the most recent backend output lines.
func (o *Orchestrator) Logs(tail int) []string { return o.sup.Logs(tail) }

// ClearLogs discards the in-memory backend output buffer.
func (o *Orchestrator) ClearLogs() { o.sup.ClearLogs() }

// PickResult is the outcome of a repo-root selection.
type PickResult struct {
	OK    bool   `json:"ok"`
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
}

// PickRepoRoot validates path as a backend checkout and, when valid, applies
// it as the new repo root through the regular settings cascade.
func (o *Orchestrator) PickRepoRoot(path string) (PickResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return PickResult{OK: false, Path: path}, err
	}
	if err := supervisor.ValidateLayout(abs); err != nil {
		return PickResult{OK: true, Path: abs, Valid: false}, nil
	}
	if _, uerr := o.UpdateSettings(settings.Patch{RepoRoot: &abs}); uerr != nil {
		return PickResult{OK: true, Path: abs, Valid: true}, uerr
	}
	return PickResult{OK: true, Path: abs, Valid: true}, nil
}
