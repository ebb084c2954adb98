package supervisor

import "fmt"

// InvalidTargetError reports a repo root that fails structural validation.
// Recoverable; the user must point the host at a valid checkout.
type InvalidTargetError struct {
	Root    string
	Missing string
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid target root %q: missing %s", e.Root, e.Missing)
}

func (e *InvalidTargetError) Suggestion() string {
	return "Select the repository root that contains " + e.Missing
}

// PortConflictError reports that the backend port is bound by a foreign
// process. Recoverable; the user must free the port.
type PortConflictError struct {
	Port int
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("port %d is already in use by another process", e.Port)
}

func (e *PortConflictError) Suggestion() string {
	return fmt.Sprintf("Stop the process occupying port %d and try again", e.Port)
}

// ProcessSpawnError reports a failed spawn (interpreter not found,
// permission denied). Surfaced to the user; never auto-retried.
type ProcessSpawnError struct {
	Cmd string
	Err error
}

func (e *ProcessSpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Cmd, e.Err)
}

func (e *ProcessSpawnError) Unwrap() error { return e.Err }

func (e *ProcessSpawnError) Suggestion() string {
	return "Check that the Python interpreter is installed and on PATH"
}
