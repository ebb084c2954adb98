package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/musestudio/stagehand/internal/logger"
)

// Backend layout, relative to the repo root. The control API is started as a
// Python module so its own relative imports resolve from the repo root.
const (
	EntryRelPath  = "apps/control_api/main.py"
	BackendModule = "apps.control_api"
)

// Policy defaults.
const (
	DefaultStopTimeout = 3200 * time.Millisecond
	DefaultBaseDelay   = 1200 * time.Millisecond
	DefaultMaxAttempts = 3
)

// Spec describes how to run the supervised backend. The orchestrator builds
// an effective Spec from settings (plus environment overrides) before every
// start, so the supervisor itself never reads settings.
type Spec struct {
	Python      string        `json:"python"`       // interpreter path
	RepoRoot    string        `json:"repo_root"`    // absolute working directory
	Env         []string      `json:"env"`          // extra environment, KEY=VALUE
	Port        int           `json:"port"`         // backend listen port
	AutoRestart bool          `json:"auto_restart"` // restart on unexpected exit
	BaseDelay   time.Duration `json:"base_delay"`   // first backoff delay
	MaxAttempts int           `json:"max_attempts"` // restart attempt cap
	StopTimeout time.Duration `json:"stop_timeout"` // grace before SIGKILL
	Log         logger.Config `json:"log"`          // file logging for backend output
}

func (s Spec) withDefaults() Spec {
	if s.Python == "" {
		s.Python = "python3"
	}
	if s.BaseDelay <= 0 {
		s.BaseDelay = DefaultBaseDelay
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.StopTimeout <= 0 {
		s.StopTimeout = DefaultStopTimeout
	}
	return s
}

// ValidateLayout checks the minimum required file layout under root.
func ValidateLayout(root string) error {
	if root == "" {
		return &InvalidTargetError{Root: root, Missing: EntryRelPath}
	}
	entry := filepath.Join(root, filepath.FromSlash(EntryRelPath))
	if fi, err := os.Stat(entry); err != nil || fi.IsDir() {
		return &InvalidTargetError{Root: root, Missing: EntryRelPath}
	}
	return nil
}

// buildCommand constructs the exec.Cmd for this spec. The command is always
// an argv-style invocation; no shell is involved.
func (s Spec) buildCommand() *exec.Cmd {
	// #nosec G204 -- interpreter and workdir come from validated settings
	cmd := exec.Command(s.Python, "-m", BackendModule)
	cmd.Dir = s.RepoRoot
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	setProcGroup(cmd)
	return cmd
}

func (s Spec) describe() string {
	return fmt.Sprintf("%s -m %s (cwd=%s)", s.Python, BackendModule, s.RepoRoot)
}
