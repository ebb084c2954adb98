// Package health answers "is this installation ready to operate" through a
// fixed battery of independent, timeout-bounded probes. Probes only read
// state owned by other components; they never mutate anything, so no locking
// is needed between a check run and the supervisor.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/musestudio/stagehand/internal/metrics"
)

// Probe result tiers.
const (
	StatusOK    = "ok"
	StatusWarn  = "warn"
	StatusError = "error"
)

// DefaultProbeTimeout bounds each probe individually so one unreachable
// dependency cannot stall the whole check.
const DefaultProbeTimeout = 3 * time.Second

// ProbeResult is immutable once produced.
type ProbeResult struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Status     string `json:"status"`
	Detail     string `json:"detail"`
	Suggestion string `json:"suggestion,omitempty"`
}

type Counts struct {
	OK    int `json:"ok"`
	Warn  int `json:"warn"`
	Error int `json:"error"`
}

// Summary is recomputed wholesale on each run, never patched in place.
type Summary struct {
	Time   time.Time     `json:"time"`
	Counts Counts        `json:"counts"`
	Items  []ProbeResult `json:"items"`
}

// Env is the read-only input for a check run, assembled by the orchestrator
// from current settings and supervisor state.
type Env struct {
	RepoRoot      string
	Python        string
	BackendPort   int
	LivePort      int
	TTSServer     string
	AssetPrimary  string
	AssetFallback string
	// PortOwned reports whether the supervised backend currently holds the
	// given port, so an occupied backend port is not flagged as foreign.
	PortOwned func(port int) bool
}

type probe struct {
	key     string
	timeout time.Duration
	run     func(ctx context.Context, env Env) []ProbeResult
}

// Aggregator runs the fixed probe set concurrently and reduces the results
// to a Summary.
type Aggregator struct {
	probes []probe
}

func NewAggregator() *Aggregator {
	return &Aggregator{probes: []probe{
		{key: "target.root", timeout: DefaultProbeTimeout, run: probeTargetRoot},
		{key: "target.assets", timeout: DefaultProbeTimeout, run: probeTargetAssets},
		{key: "webui.dir", timeout: DefaultProbeTimeout, run: probeWebUIDir},
		{key: "backend.entry", timeout: DefaultProbeTimeout, run: probeBackendEntry},
		{key: "python.runtime", timeout: DefaultProbeTimeout, run: probePythonRuntime},
		{key: "model.wav2lip", timeout: DefaultProbeTimeout, run: probeModelWeights},
		{key: "avatar.assets", timeout: DefaultProbeTimeout, run: probeAvatarAssets},
		{key: "backend.port", timeout: DefaultProbeTimeout, run: probeBackendPort},
		{key: "live.port", timeout: DefaultProbeTimeout, run: probeLivePort},
		{key: "tts.server", timeout: DefaultProbeTimeout, run: probeTTSServer},
	}}
}

// Run executes all probes concurrently. A probe that panics is converted to
// a warn result carrying the panic text; nothing propagates past here.
func (a *Aggregator) Run(ctx context.Context, env Env) Summary {
	started := time.Now()
	results := make([][]ProbeResult, len(a.probes))
	var wg sync.WaitGroup
	for i, p := range a.probes {
		wg.Add(1)
		go func(i int, p probe) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					results[i] = []ProbeResult{{
						Key:    p.key,
						Label:  p.key,
						Status: StatusWarn,
						Detail: fmt.Sprintf("probe failed: %v", r),
					}}
				}
			}()
			results[i] = p.run(pctx, env)
		}(i, p)
	}
	wg.Wait()

	s := Summary{Time: time.Now().UTC()}
	for _, rs := range results {
		for _, r := range rs {
			s.Items = append(s.Items, r)
			switch r.Status {
			case StatusOK:
				s.Counts.OK++
			case StatusWarn:
				s.Counts.Warn++
			default:
				s.Counts.Error++
			}
			metrics.SetProbeStatus(r.Key, tier(r.Status))
		}
	}
	metrics.ObserveCheckDuration(time.Since(started).Seconds())
	return s
}

func tier(status string) int {
	switch status {
	case StatusOK:
		return 0
	case StatusWarn:
		return 1
	default:
		return 2
	}
}
