package supervisor

import "time"

// Phase is the supervisor's state machine position.
//
// idle -> starting -> running -> stopping -> idle
// running -> crashed -> (scheduled) -> starting on unexpected exit;
// crashed is terminal only after the restart cap is exhausted.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseStopping
	PhaseCrashed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// State is the externally visible process state. Mutated exclusively by the
// supervisor's state machine goroutine; readers get copies.
type State struct {
	Phase           Phase     `json:"-"`
	PhaseName       string    `json:"phase"`
	PID             int       `json:"pid"`
	StartedAt       time.Time `json:"started_at,omitzero"`
	StoppedAt       time.Time `json:"stopped_at,omitzero"`
	LastError       string    `json:"last_error,omitempty"`
	RestartAttempts int       `json:"restart_attempts"`
	RestartPending  bool      `json:"restart_pending"`
}
