// Package broadcast delivers full status snapshots to registered observers.
// Broadcasting is pull-then-push: the broadcaster composes a fresh snapshot
// from the owning components on every push, and always delivers the whole
// snapshot, never a diff, so an observer that missed N updates is consistent
// again after the next one.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/musestudio/stagehand/internal/assethost"
	"github.com/musestudio/stagehand/internal/health"
	"github.com/musestudio/stagehand/internal/metrics"
	"github.com/musestudio/stagehand/internal/settings"
	"github.com/musestudio/stagehand/internal/supervisor"
)

// Snapshot is a read-only composite of the orchestration state. It has no
// lifecycle of its own; it is derived on demand.
type Snapshot struct {
	Time             time.Time         `json:"time"`
	Settings         settings.Settings `json:"settings"`
	EffectiveAPIBase string            `json:"effective_api_base"`
	Process          supervisor.State  `json:"process"`
	AssetHost        assethost.State   `json:"asset_host"`
	Health           *health.Summary   `json:"health,omitempty"`
}

// Observer receives snapshots. Deliver must not block; a slow observer has
// to buffer or drop on its own account.
type Observer interface {
	Deliver(Snapshot)
}

// Broadcaster owns the observer registry. The snapshot source is injected by
// the orchestrator; the broadcaster never computes state itself.
type Broadcaster struct {
	mu        sync.Mutex
	observers map[int]Observer
	nextID    int
	source    func() Snapshot
}

func New(source func() Snapshot) *Broadcaster {
	return &Broadcaster{
		observers: make(map[int]Observer),
		source:    source,
	}
}

// Subscribe registers obs and returns an unsubscribe function. The observer
// immediately receives the current snapshot so it never starts stale.
func (b *Broadcaster) Subscribe(obs Observer) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.observers[id] = obs
	b.mu.Unlock()

	obs.Deliver(b.source())

	return func() {
		b.mu.Lock()
		delete(b.observers, id)
		b.mu.Unlock()
	}
}

// Broadcast pushes a fresh snapshot to every observer. Invoked after every
// mutating operation and on the polling cadence.
func (b *Broadcaster) Broadcast() {
	snap := b.source()
	b.mu.Lock()
	obs := make([]Observer, 0, len(b.observers))
	for _, o := range b.observers {
		obs = append(obs, o)
	}
	b.mu.Unlock()
	for _, o := range obs {
		o.Deliver(snap)
	}
	metrics.IncBroadcast()
}

// Run pushes on a fixed cadence until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context, cadence time.Duration) {
	if cadence <= 0 {
		cadence = 5 * time.Second
	}
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Broadcast()
		}
	}
}

// ObserverCount reports the number of registered observers.
func (b *Broadcaster) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}
