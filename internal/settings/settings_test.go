package settings

import (
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.RuntimeMode != ModeLocal {
		t.Errorf("RuntimeMode=%q want %q", d.RuntimeMode, ModeLocal)
	}
	if d.LivePort != DefaultLivePort {
		t.Errorf("LivePort=%d want %d", d.LivePort, DefaultLivePort)
	}
	if d.TTSServer != DefaultTTSServer {
		t.Errorf("TTSServer=%q want %q", d.TTSServer, DefaultTTSServer)
	}
	if d.AutoStartAPI {
		t.Error("AutoStartAPI should default to false")
	}
	if !d.AutoRestartAPI {
		t.Error("AutoRestartAPI should default to true")
	}
	if d.UpdateChannel != ChannelStable {
		t.Errorf("UpdateChannel=%q want %q", d.UpdateChannel, ChannelStable)
	}
}

func TestNormalizeSubstitutesInvalidEnums(t *testing.T) {
	s := Normalize(Settings{RuntimeMode: "hybrid", UpdateChannel: "nightly", LivePort: 8010, TTSServer: "x"})
	if s.RuntimeMode != ModeLocal {
		t.Errorf("RuntimeMode=%q want %q", s.RuntimeMode, ModeLocal)
	}
	if s.UpdateChannel != ChannelStable {
		t.Errorf("UpdateChannel=%q want %q", s.UpdateChannel, ChannelStable)
	}
}

func TestNormalizePortAndTTS(t *testing.T) {
	for _, port := range []int{0, -5, 70000} {
		s := Normalize(Settings{RuntimeMode: ModeLocal, LivePort: port})
		if s.LivePort != DefaultLivePort {
			t.Errorf("LivePort %d normalized to %d want %d", port, s.LivePort, DefaultLivePort)
		}
	}
	s := Normalize(Settings{RuntimeMode: ModeLocal, LivePort: 8010, TTSServer: "  "})
	if s.TTSServer != DefaultTTSServer {
		t.Errorf("blank TTSServer normalized to %q want %q", s.TTSServer, DefaultTTSServer)
	}
}

func TestNormalizeRepoRootAbsolute(t *testing.T) {
	s := Normalize(Settings{RuntimeMode: ModeLocal, LivePort: 8010, TTSServer: "x", RepoRoot: "rel/path"})
	if !filepath.IsAbs(s.RepoRoot) {
		t.Errorf("RepoRoot=%q not absolute", s.RepoRoot)
	}
	s = Normalize(Settings{RuntimeMode: ModeLocal, LivePort: 8010, TTSServer: "x", RepoRoot: ""})
	if s.RepoRoot != "" {
		t.Errorf("empty RepoRoot became %q", s.RepoRoot)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := Settings{RuntimeMode: "weird", RepoRoot: "some/where", LivePort: -1}
	once := Normalize(in)
	twice := Normalize(once)
	if once != twice {
		t.Fatalf("Normalize not idempotent: %+v vs %+v", once, twice)
	}
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }
func intp(i int) *int       { return &i }

func TestApplyPartialPatch(t *testing.T) {
	base := Defaults()
	next, diff := Apply(base, Patch{AutoStartAPI: boolp(true)})
	if !next.AutoStartAPI {
		t.Error("AutoStartAPI not applied")
	}
	if next.RuntimeMode != base.RuntimeMode || next.LivePort != base.LivePort {
		t.Error("untouched fields changed")
	}
	if !diff.AutoStartEnabled {
		t.Error("diff.AutoStartEnabled not set on false->true transition")
	}
	if diff.RepoRootChanged || diff.RuntimeModeChanged || diff.LivePortChanged {
		t.Errorf("spurious diff flags: %+v", diff)
	}
}

func TestApplyDiffFlags(t *testing.T) {
	base := Defaults()
	base.RepoRoot = "/opt/avatar"

	next, diff := Apply(base, Patch{RepoRoot: strp("/srv/avatar")})
	if !diff.RepoRootChanged {
		t.Error("RepoRootChanged not set")
	}
	if next.RepoRoot != "/srv/avatar" {
		t.Errorf("RepoRoot=%q", next.RepoRoot)
	}

	_, diff = Apply(base, Patch{RuntimeMode: strp(ModeCloud)})
	if !diff.RuntimeModeChanged {
		t.Error("RuntimeModeChanged not set")
	}

	_, diff = Apply(base, Patch{LivePort: intp(8020)})
	if !diff.LivePortChanged {
		t.Error("LivePortChanged not set")
	}

	// same value patch reports no change
	_, diff = Apply(base, Patch{RepoRoot: strp("/opt/avatar")})
	if diff.RepoRootChanged {
		t.Error("RepoRootChanged set for identical value")
	}
}

func TestApplyAutoStartDisableIsNotEnable(t *testing.T) {
	base := Defaults()
	base.AutoStartAPI = true
	_, diff := Apply(base, Patch{AutoStartAPI: boolp(false)})
	if diff.AutoStartEnabled {
		t.Error("true->false transition must not set AutoStartEnabled")
	}
}

func TestApplyNormalizesPatchedValues(t *testing.T) {
	next, _ := Apply(Defaults(), Patch{RuntimeMode: strp("bogus"), LivePort: intp(-1)})
	if next.RuntimeMode != ModeLocal {
		t.Errorf("RuntimeMode=%q want %q", next.RuntimeMode, ModeLocal)
	}
	if next.LivePort != DefaultLivePort {
		t.Errorf("LivePort=%d want %d", next.LivePort, DefaultLivePort)
	}
}

func TestEffectiveAPIBase(t *testing.T) {
	s := Defaults()
	if got := EffectiveAPIBase(s); got != LocalAPIBase {
		t.Errorf("local mode base=%q want %q", got, LocalAPIBase)
	}

	s.RuntimeMode = ModeCloud
	s.RemoteAPIBase = "https://avatar.example.com/api/"
	if got := EffectiveAPIBase(s); got != "https://avatar.example.com/api" {
		t.Errorf("cloud base=%q want trailing slash trimmed", got)
	}

	// cloud mode with no remote base falls back to local
	s.RemoteAPIBase = "  "
	if got := EffectiveAPIBase(s); got != LocalAPIBase {
		t.Errorf("cloud without remote base=%q want %q", got, LocalAPIBase)
	}
}

func TestEffectiveRepoRootEnvOverride(t *testing.T) {
	s := Defaults()
	s.RepoRoot = "/from/settings"
	t.Setenv(EnvRepoRoot, "/from/env")
	if got := EffectiveRepoRoot(s); got != "/from/env" {
		t.Errorf("EffectiveRepoRoot=%q want /from/env", got)
	}
	t.Setenv(EnvRepoRoot, "")
	// empty env means the persisted value wins
	if got := EffectiveRepoRoot(s); got != "/from/settings" {
		t.Errorf("EffectiveRepoRoot=%q want /from/settings", got)
	}
}

func TestEffectivePython(t *testing.T) {
	t.Setenv(EnvPython, "")
	if got := EffectivePython(Defaults()); got != "python3" {
		t.Errorf("EffectivePython=%q want python3", got)
	}
	t.Setenv(EnvPython, "/usr/local/bin/python3.11")
	if got := EffectivePython(Defaults()); got != "/usr/local/bin/python3.11" {
		t.Errorf("EffectivePython=%q", got)
	}
}
