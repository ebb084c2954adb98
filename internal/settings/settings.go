package settings

import (
	"os"
	"path/filepath"
	"strings"
)

// Runtime modes. Local means the host supervises the backend process
// itself; cloud means the UI talks to a remote deployment and no local
// process is managed.
const (
	ModeLocal = "local"
	ModeCloud = "cloud"
)

// Update channels. Stored and round-tripped for the updater UI; the host
// itself does not act on them.
const (
	ChannelStable = "stable"
	ChannelBeta   = "beta"
)

// Backend network identity. The control API always binds the loopback
// interface on this port.
const (
	BackendPort  = 9001
	LocalAPIBase = "http://127.0.0.1:9001"
)

// Defaults mirrored from the backend's own configuration.
const (
	DefaultLivePort  = 8010
	DefaultTTSServer = "http://127.0.0.1:9000"
)

// Environment overrides. Both take precedence over persisted settings when
// present; they are advisory and not validated beyond existence.
const (
	EnvRepoRoot = "STAGEHAND_REPO_ROOT"
	EnvPython   = "STAGEHAND_PYTHON"
)

// Settings is the user-editable runtime configuration. It is persisted as a
// whole JSON document; no field is optional after Normalize.
type Settings struct {
	RuntimeMode    string `json:"runtime_mode" mapstructure:"runtime_mode"`
	RepoRoot       string `json:"repo_root" mapstructure:"repo_root"`
	RemoteAPIBase  string `json:"remote_api_base" mapstructure:"remote_api_base"`
	AutoStartAPI   bool   `json:"auto_start_api" mapstructure:"auto_start_api"`
	AutoRestartAPI bool   `json:"auto_restart_api" mapstructure:"auto_restart_api"`
	LivePort       int    `json:"live_port" mapstructure:"live_port"`
	TTSServer      string `json:"tts_server" mapstructure:"tts_server"`
	UpdateChannel  string `json:"update_channel" mapstructure:"update_channel"`
	UpdatesEnabled bool   `json:"updates_enabled" mapstructure:"updates_enabled"`
}

// Patch is a partial settings mutation. Nil fields are left untouched.
type Patch struct {
	RuntimeMode    *string `json:"runtime_mode,omitempty"`
	RepoRoot       *string `json:"repo_root,omitempty"`
	RemoteAPIBase  *string `json:"remote_api_base,omitempty"`
	AutoStartAPI   *bool   `json:"auto_start_api,omitempty"`
	AutoRestartAPI *bool   `json:"auto_restart_api,omitempty"`
	LivePort       *int    `json:"live_port,omitempty"`
	TTSServer      *string `json:"tts_server,omitempty"`
	UpdateChannel  *string `json:"update_channel,omitempty"`
	UpdatesEnabled *bool   `json:"updates_enabled,omitempty"`
}

// Diff records which dependent components must react to an update.
type Diff struct {
	RepoRootChanged    bool
	RuntimeModeChanged bool
	AutoStartEnabled   bool // false -> true transition
	LivePortChanged    bool
}

func Defaults() Settings {
	return Settings{
		RuntimeMode:    ModeLocal,
		RepoRoot:       "",
		RemoteAPIBase:  "",
		AutoStartAPI:   false,
		AutoRestartAPI: true,
		LivePort:       DefaultLivePort,
		TTSServer:      DefaultTTSServer,
		UpdateChannel:  ChannelStable,
		UpdatesEnabled: true,
	}
}

// Normalize coerces unknown or missing fields to safe defaults. Invalid enum
// values are substituted, never rejected, so a hand-edited settings file can
// not brick the host. RepoRoot is resolved to an absolute path.
func Normalize(raw Settings) Settings {
	s := raw
	switch s.RuntimeMode {
	case ModeLocal, ModeCloud:
	default:
		s.RuntimeMode = ModeLocal
	}
	switch s.UpdateChannel {
	case ChannelStable, ChannelBeta:
	default:
		s.UpdateChannel = ChannelStable
	}
	if s.LivePort <= 0 || s.LivePort > 65535 {
		s.LivePort = DefaultLivePort
	}
	if strings.TrimSpace(s.TTSServer) == "" {
		s.TTSServer = DefaultTTSServer
	}
	s.RepoRoot = strings.TrimSpace(s.RepoRoot)
	if s.RepoRoot != "" && !filepath.IsAbs(s.RepoRoot) {
		if abs, err := filepath.Abs(s.RepoRoot); err == nil {
			s.RepoRoot = abs
		}
	}
	return s
}

// Apply merges p over s and returns the normalized result plus the diff the
// orchestrator needs to drive reactions.
func Apply(s Settings, p Patch) (Settings, Diff) {
	next := s
	if p.RuntimeMode != nil {
		next.RuntimeMode = *p.RuntimeMode
	}
	if p.RepoRoot != nil {
		next.RepoRoot = *p.RepoRoot
	}
	if p.RemoteAPIBase != nil {
		next.RemoteAPIBase = *p.RemoteAPIBase
	}
	if p.AutoStartAPI != nil {
		next.AutoStartAPI = *p.AutoStartAPI
	}
	if p.AutoRestartAPI != nil {
		next.AutoRestartAPI = *p.AutoRestartAPI
	}
	if p.LivePort != nil {
		next.LivePort = *p.LivePort
	}
	if p.TTSServer != nil {
		next.TTSServer = *p.TTSServer
	}
	if p.UpdateChannel != nil {
		next.UpdateChannel = *p.UpdateChannel
	}
	if p.UpdatesEnabled != nil {
		next.UpdatesEnabled = *p.UpdatesEnabled
	}
	next = Normalize(next)
	d := Diff{
		RepoRootChanged:    next.RepoRoot != s.RepoRoot,
		RuntimeModeChanged: next.RuntimeMode != s.RuntimeMode,
		AutoStartEnabled:   !s.AutoStartAPI && next.AutoStartAPI,
		LivePortChanged:    next.LivePort != s.LivePort,
	}
	return next, d
}

// EffectiveAPIBase returns the address the UI should use to reach the
// backend for the given settings. Pure function of s; never cached.
func EffectiveAPIBase(s Settings) string {
	if s.RuntimeMode == ModeCloud {
		if strings.TrimSpace(s.RemoteAPIBase) != "" {
			return strings.TrimRight(s.RemoteAPIBase, "/")
		}
	}
	return LocalAPIBase
}

// EffectiveRepoRoot applies the environment override when present.
func EffectiveRepoRoot(s Settings) string {
	if v := os.Getenv(EnvRepoRoot); v != "" {
		if abs, err := filepath.Abs(v); err == nil {
			return abs
		}
		return v
	}
	return s.RepoRoot
}

// EffectivePython returns the interpreter used to spawn the backend.
func EffectivePython(s Settings) string {
	if v := os.Getenv(EnvPython); v != "" {
		return v
	}
	return "python3"
}
