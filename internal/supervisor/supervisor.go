// Package supervisor owns the lifecycle of the backend control API process:
// start, stop, crash detection and bounded exponential-backoff auto-restart.
//
// All state transitions happen on a single state machine goroutine fed by a
// command channel and by exit events from per-run waiter goroutines, so a
// crash event can never race a concurrent manual stop. Every spawned run
// carries a generation number; a stop marks the generation whose exit is
// expected, which keeps rapid stop/start sequences from mis-attributing an
// exit to the wrong run.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/musestudio/stagehand/internal/history"
	"github.com/musestudio/stagehand/internal/metrics"
	"github.com/musestudio/stagehand/internal/portprobe"
	"github.com/musestudio/stagehand/internal/ringlog"
)

type Supervisor struct {
	cmdChan  chan command
	exitChan chan exitEvent
	doneChan chan struct{}
	ring     *ringlog.Buffer
	log      *slog.Logger

	mu       sync.RWMutex
	spec     Spec
	state    State
	onChange func()
	sinks    []history.Sink

	// Fields below are owned by the state machine goroutine.
	runGen      uint64
	nextGen     uint64
	expectedGen uint64
	timerGen    uint64
	timer       *time.Timer
	curPID      int
	curDone     chan struct{}
}

type action int

const (
	actionStart action = iota
	actionStop
	actionRestart
	actionUpdateSpec
	actionAutoRestart
	actionShutdown
)

type command struct {
	action action
	spec   Spec
	force  bool
	gen    uint64
	reply  chan error
}

type exitEvent struct {
	gen uint64
	err error
}

// New creates a supervisor for the given spec. The state machine goroutine
// starts immediately; the process does not start until Start is called.
func New(spec Spec, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		cmdChan:  make(chan command, 16),
		exitChan: make(chan exitEvent, 4),
		doneChan: make(chan struct{}),
		ring:     ringlog.New(ringlog.DefaultCapacity),
		log:      log,
		spec:     spec.withDefaults(),
		state:    State{Phase: PhaseIdle, PhaseName: PhaseIdle.String()},
	}
	go s.run()
	return s
}

// SetOnChange registers a hook invoked after every state transition.
// The hook runs outside the supervisor's lock.
func (s *Supervisor) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// SetHistory configures lifecycle event sinks.
func (s *Supervisor) SetHistory(sinks ...history.Sink) {
	s.mu.Lock()
	s.sinks = append([]history.Sink(nil), sinks...)
	s.mu.Unlock()
}

// Start launches the backend if it is not already starting or running.
func (s *Supervisor) Start() error { return s.send(command{action: actionStart}) }

// Stop terminates the backend. The expected-exit marker suppresses
// auto-restart; the call returns once the state is idle, while the grace
// wait and any forced kill proceed in the background.
func (s *Supervisor) Stop(force bool) error {
	return s.send(command{action: actionStop, force: force})
}

// Restart stops the backend, waits for its port to be released, then starts
// it again against the current spec.
func (s *Supervisor) Restart() error { return s.send(command{action: actionRestart}) }

// UpdateSpec replaces the spec used for subsequent starts.
func (s *Supervisor) UpdateSpec(spec Spec) error {
	return s.send(command{action: actionUpdateSpec, spec: spec})
}

// Shutdown stops the backend and terminates the state machine goroutine.
func (s *Supervisor) Shutdown() error {
	reply := make(chan error, 1)
	select {
	case s.cmdChan <- command{action: actionShutdown, reply: reply}:
		return <-reply
	case <-s.doneChan:
		return nil
	}
}

func (s *Supervisor) send(cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case s.cmdChan <- cmd:
		return <-cmd.reply
	case <-s.doneChan:
		return fmt.Errorf("supervisor shut down")
	}
}

// State returns a copy of the current process state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Spec returns a copy of the current spec.
func (s *Supervisor) Spec() Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spec
}

// OwnsPort reports whether the given port is the backend port and the
// backend is currently running, i.e. the occupier is ours, not foreign.
func (s *Supervisor) OwnsPort(port int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spec.Port == port && (s.state.Phase == PhaseRunning || s.state.Phase == PhaseStarting)
}

// Logs returns up to tail most recent output lines, oldest first.
func (s *Supervisor) Logs(tail int) []string { return s.ring.Tail(tail) }

// ClearLogs discards the in-memory output buffer. File logs are unaffected.
func (s *Supervisor) ClearLogs() { s.ring.Clear() }

// --- state machine ---

func (s *Supervisor) run() {
	defer close(s.doneChan)
	for {
		select {
		case cmd := <-s.cmdChan:
			var err error
			switch cmd.action {
			case actionStart:
				err = s.handleStart(false)
			case actionStop:
				err = s.handleStop(cmd.force)
			case actionRestart:
				err = s.handleRestart()
			case actionUpdateSpec:
				s.mu.Lock()
				s.spec = cmd.spec.withDefaults()
				s.mu.Unlock()
			case actionAutoRestart:
				s.handleAutoRestart(cmd.gen)
			case actionShutdown:
				err = s.handleStop(false)
				if cmd.reply != nil {
					cmd.reply <- err
				}
				return
			}
			if cmd.reply != nil {
				cmd.reply <- err
			}
		case ev := <-s.exitChan:
			s.handleExit(ev)
		}
	}
}

func (s *Supervisor) handleStart(auto bool) error {
	s.cancelPendingRestart()

	st := s.State()
	if st.Phase == PhaseStarting || st.Phase == PhaseRunning {
		return nil // already up; start is a no-op
	}

	spec := s.Spec()
	if err := ValidateLayout(spec.RepoRoot); err != nil {
		s.setLastError(err.Error())
		return err
	}
	if pstate, _ := portprobe.Bind(spec.Port); pstate == portprobe.Occupied {
		err := &PortConflictError{Port: spec.Port}
		s.setLastError(err.Error())
		return err
	}

	s.setPhase(PhaseStarting)

	cmd := spec.buildCommand()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setPhase(PhaseIdle)
		return &ProcessSpawnError{Cmd: spec.describe(), Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.setPhase(PhaseIdle)
		return &ProcessSpawnError{Cmd: spec.describe(), Err: err}
	}
	if err := cmd.Start(); err != nil {
		serr := &ProcessSpawnError{Cmd: spec.describe(), Err: err}
		s.mutate(func(st *State) {
			st.Phase = PhaseIdle
			st.LastError = serr.Error()
		})
		return serr
	}

	s.nextGen++
	gen := s.nextGen
	s.runGen = gen
	s.curPID = cmd.Process.Pid
	done := make(chan struct{})
	s.curDone = done

	outW, errW, _ := spec.Log.Writers("backend")
	go s.ring.Capture(stdout, outW)
	go s.ring.Capture(stderr, errW)

	go func() {
		err := cmd.Wait()
		closeWriter(outW)
		closeWriter(errW)
		close(done)
		select {
		case s.exitChan <- exitEvent{gen: gen, err: err}:
		case <-s.doneChan:
		}
	}()

	s.mutate(func(st *State) {
		st.Phase = PhaseRunning
		st.PID = cmd.Process.Pid
		st.StartedAt = time.Now()
		st.StoppedAt = time.Time{}
		st.LastError = ""
		st.RestartPending = false
		if !auto {
			st.RestartAttempts = 0
		}
	})
	s.log.Info("backend started", "pid", cmd.Process.Pid, "cwd", spec.RepoRoot, "auto", auto)
	metrics.IncStart()
	s.persist(history.EventStart, cmd.Process.Pid, "")
	return nil
}

func (s *Supervisor) handleStop(force bool) error {
	s.cancelPendingRestart()

	st := s.State()
	switch st.Phase {
	case PhaseIdle:
		return nil
	case PhaseCrashed:
		// A stop on a crashed backend just acknowledges the crash.
		s.mutate(func(st *State) {
			st.Phase = PhaseIdle
			st.LastError = ""
			st.RestartAttempts = 0
		})
		return nil
	}

	spec := s.Spec()
	s.expectedGen = s.runGen
	pid := s.curPID
	done := s.curDone

	s.setPhase(PhaseStopping)
	if force {
		_ = killGroup(pid)
	} else {
		_ = terminateGroup(pid)
		// Escalate in the background so the caller is not blocked on the
		// grace window.
		go func(pid int, done chan struct{}, grace time.Duration) {
			select {
			case <-done:
			case <-time.After(grace):
				_ = killGroup(pid)
			}
		}(pid, done, spec.StopTimeout)
	}

	s.mutate(func(st *State) {
		st.Phase = PhaseIdle
		st.PID = 0
		st.StoppedAt = time.Now()
		st.RestartAttempts = 0
	})
	s.log.Info("backend stop requested", "pid", pid, "force", force)
	metrics.IncStop()
	s.persist(history.EventStop, pid, "")
	return nil
}

func (s *Supervisor) handleRestart() error {
	if err := s.handleStop(false); err != nil {
		return err
	}
	spec := s.Spec()
	// The port must be released before rebinding; the dying process may
	// need the full grace window plus a kill to let go.
	if err := portprobe.WaitFree(spec.Port, spec.StopTimeout+2*time.Second); err != nil {
		return &PortConflictError{Port: spec.Port}
	}
	return s.handleStart(false)
}

func (s *Supervisor) handleExit(ev exitEvent) {
	if ev.gen != s.runGen {
		return // exit of a superseded run; already accounted for
	}
	s.curPID = 0

	if ev.gen == s.expectedGen {
		// User-initiated stop; state is already idle.
		s.mutate(func(st *State) { st.StoppedAt = time.Now() })
		return
	}

	detail := "exited unexpectedly"
	if ev.err != nil {
		detail = ev.err.Error()
	}
	s.log.Warn("backend exited unexpectedly", "detail", detail)
	metrics.IncCrash()

	spec := s.Spec()
	st := s.State()
	if !spec.AutoRestart {
		s.mutate(func(st *State) {
			st.Phase = PhaseCrashed
			st.PID = 0
			st.StoppedAt = time.Now()
			st.LastError = detail
			st.RestartPending = false
		})
		s.persist(history.EventCrash, 0, detail)
		return
	}

	attempts := st.RestartAttempts + 1
	if attempts > spec.MaxAttempts {
		s.mutate(func(st *State) {
			st.Phase = PhaseCrashed
			st.PID = 0
			st.StoppedAt = time.Now()
			st.LastError = fmt.Sprintf("%s (gave up after %d restarts)", detail, spec.MaxAttempts)
			st.RestartPending = false
		})
		s.persist(history.EventGiveUp, 0, detail)
		s.log.Error("backend restart cap reached", "attempts", spec.MaxAttempts)
		return
	}

	delay := spec.BaseDelay << (attempts - 1)
	s.mutate(func(st *State) {
		st.Phase = PhaseCrashed
		st.PID = 0
		st.StoppedAt = time.Now()
		st.LastError = detail
		st.RestartAttempts = attempts
		st.RestartPending = true
	})
	s.persist(history.EventCrash, 0, detail)

	s.timerGen++
	tg := s.timerGen
	s.timer = time.AfterFunc(delay, func() {
		select {
		case s.cmdChan <- command{action: actionAutoRestart, gen: tg}:
		case <-s.doneChan:
		}
	})
	metrics.IncAutoRestart()
	s.persist(history.EventRestartAttempt, 0, fmt.Sprintf("attempt %d in %s", attempts, delay))
	s.log.Info("backend restart scheduled", "attempt", attempts, "delay", delay)
}

func (s *Supervisor) handleAutoRestart(gen uint64) {
	if gen != s.timerGen {
		return // cancelled by a manual operation
	}
	st := s.State()
	if st.Phase != PhaseCrashed || !st.RestartPending {
		return
	}
	s.mutate(func(st *State) { st.RestartPending = false })
	if err := s.handleStart(true); err != nil {
		s.log.Error("auto-restart failed", "error", err)
	}
}

// cancelPendingRestart invalidates any scheduled restart timer. Called at
// the head of every manual operation and on shutdown.
func (s *Supervisor) cancelPendingRestart() {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mutate(func(st *State) { st.RestartPending = false })
}

// --- helpers ---

func (s *Supervisor) setPhase(p Phase) {
	s.mutate(func(st *State) { st.Phase = p })
}

func (s *Supervisor) setLastError(msg string) {
	s.mutate(func(st *State) { st.LastError = msg })
}

func (s *Supervisor) mutate(fn func(*State)) {
	s.mu.Lock()
	old := s.state.Phase
	fn(&s.state)
	s.state.PhaseName = s.state.Phase.String()
	newPhase := s.state.Phase
	hook := s.onChange
	s.mu.Unlock()

	if old != newPhase {
		metrics.SetPhase(old.String(), false)
		metrics.SetPhase(newPhase.String(), true)
	}
	if hook != nil {
		hook()
	}
}

func (s *Supervisor) persist(t history.EventType, pid int, detail string) {
	s.mu.RLock()
	sinks := append([]history.Sink(nil), s.sinks...)
	st := s.state
	s.mu.RUnlock()
	if len(sinks) == 0 {
		return
	}
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		PID:        pid,
		Phase:      st.PhaseName,
		Attempt:    st.RestartAttempts,
		Detail:     detail,
	}
	for _, sink := range sinks {
		_ = sink.Send(context.Background(), e)
	}
}

func closeWriter(w io.WriteCloser) {
	if w != nil {
		_ = w.Close()
	}
}
