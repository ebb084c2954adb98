package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/musestudio/stagehand/internal/settings"
)

type recordingObserver struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recordingObserver) Deliver(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recordingObserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recordingObserver) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func staticSource(s Snapshot) func() Snapshot { return func() Snapshot { return s } }

func TestSubscribeDeliversImmediately(t *testing.T) {
	snap := Snapshot{Time: time.Now(), Settings: settings.Defaults()}
	b := New(staticSource(snap))
	obs := &recordingObserver{}

	unsub := b.Subscribe(obs)
	defer unsub()

	if obs.count() != 1 {
		t.Fatalf("deliveries=%d want 1 (initial snapshot)", obs.count())
	}
	if obs.last().Settings != snap.Settings {
		t.Error("initial snapshot does not match source")
	}
}

func TestBroadcastReachesAllObservers(t *testing.T) {
	b := New(staticSource(Snapshot{}))
	a := &recordingObserver{}
	c := &recordingObserver{}
	defer b.Subscribe(a)()
	defer b.Subscribe(c)()

	b.Broadcast()
	if a.count() != 2 || c.count() != 2 {
		t.Fatalf("deliveries a=%d c=%d want 2 each", a.count(), c.count())
	}
}

func TestBroadcastPullsFreshSnapshot(t *testing.T) {
	var mu sync.Mutex
	cur := Snapshot{EffectiveAPIBase: "http://127.0.0.1:9001"}
	b := New(func() Snapshot {
		mu.Lock()
		defer mu.Unlock()
		return cur
	})
	obs := &recordingObserver{}
	defer b.Subscribe(obs)()

	mu.Lock()
	cur.EffectiveAPIBase = "https://cloud.example"
	mu.Unlock()
	b.Broadcast()

	if got := obs.last().EffectiveAPIBase; got != "https://cloud.example" {
		t.Fatalf("observer got stale snapshot: %q", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(staticSource(Snapshot{}))
	obs := &recordingObserver{}
	unsub := b.Subscribe(obs)
	if b.ObserverCount() != 1 {
		t.Fatalf("ObserverCount=%d want 1", b.ObserverCount())
	}
	unsub()
	if b.ObserverCount() != 0 {
		t.Fatalf("ObserverCount=%d want 0 after unsubscribe", b.ObserverCount())
	}
	before := obs.count()
	b.Broadcast()
	if obs.count() != before {
		t.Error("delivery after unsubscribe")
	}
	// double unsubscribe is harmless
	unsub()
}

func TestRunCadence(t *testing.T) {
	b := New(staticSource(Snapshot{}))
	obs := &recordingObserver{}
	defer b.Subscribe(obs)()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, 20*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for obs.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("cadence delivered only %d snapshots", obs.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
