package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// writeRepo lays out a complete backend checkout so the filesystem probes
// pass, then tests knock individual pieces out.
func writeRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{
		"apps/control_api",
		"models",
		"data/avatars/alice",
		"webui",
	} {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o750); err != nil {
			t.Fatal(err)
		}
	}
	for _, file := range []string{
		"apps/control_api/main.py",
		"models/wav2lip.pth",
		"webui/index.html",
	} {
		if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(file)), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func testEnv(t *testing.T, root string) Env {
	return Env{
		RepoRoot:     root,
		BackendPort:  freePort(t),
		LivePort:     freePort(t),
		TTSServer:    "http://127.0.0.1:1", // nothing listens on port 1
		AssetPrimary: filepath.Join(root, "webui"),
	}
}

func resultFor(t *testing.T, s Summary, key string) ProbeResult {
	t.Helper()
	for _, r := range s.Items {
		if r.Key == key {
			return r
		}
	}
	t.Fatalf("no result for %q in %+v", key, s.Items)
	return ProbeResult{}
}

func TestRunCountsMatchItems(t *testing.T) {
	s := NewAggregator().Run(context.Background(), testEnv(t, writeRepo(t)))
	if len(s.Items) == 0 {
		t.Fatal("no results")
	}
	var ok, warn, errs int
	for _, r := range s.Items {
		switch r.Status {
		case StatusOK:
			ok++
		case StatusWarn:
			warn++
		default:
			errs++
		}
	}
	if s.Counts.OK != ok || s.Counts.Warn != warn || s.Counts.Error != errs {
		t.Fatalf("counts %+v do not match items (%d/%d/%d)", s.Counts, ok, warn, errs)
	}
	if s.Time.IsZero() {
		t.Error("summary time not set")
	}
}

func TestHealthyRepo(t *testing.T) {
	root := writeRepo(t)
	s := NewAggregator().Run(context.Background(), testEnv(t, root))
	for _, key := range []string{"target.root", "target.assets", "webui.dir", "backend.entry", "model.wav2lip", "avatar.assets", "backend.port", "live.port"} {
		if r := resultFor(t, s, key); r.Status != StatusOK {
			t.Errorf("%s: %s (%s)", key, r.Status, r.Detail)
		}
	}
	// unreachable TTS is advisory
	if r := resultFor(t, s, "tts.port"); r.Status != StatusWarn {
		t.Errorf("tts.port=%s want warn", r.Status)
	}
}

func TestEmptyRootIsError(t *testing.T) {
	env := testEnv(t, "")
	env.AssetPrimary = ""
	s := NewAggregator().Run(context.Background(), env)
	if r := resultFor(t, s, "target.root"); r.Status != StatusError || r.Suggestion == "" {
		t.Errorf("target.root=%+v want error with suggestion", r)
	}
	if r := resultFor(t, s, "backend.entry"); r.Status != StatusError {
		t.Errorf("backend.entry=%s want error", r.Status)
	}
}

func TestMissingWeightsTiers(t *testing.T) {
	root := writeRepo(t)

	// exact weight file present: ok (covered above); other .pth present: warn
	if err := os.Rename(
		filepath.Join(root, "models", "wav2lip.pth"),
		filepath.Join(root, "models", "wav2lip_gan.pth"),
	); err != nil {
		t.Fatal(err)
	}
	s := NewAggregator().Run(context.Background(), testEnv(t, root))
	if r := resultFor(t, s, "model.wav2lip"); r.Status != StatusWarn {
		t.Errorf("other weights present: %s want warn (%s)", r.Status, r.Detail)
	}

	// no weight files at all: error
	if err := os.Remove(filepath.Join(root, "models", "wav2lip_gan.pth")); err != nil {
		t.Fatal(err)
	}
	s = NewAggregator().Run(context.Background(), testEnv(t, root))
	if r := resultFor(t, s, "model.wav2lip"); r.Status != StatusError {
		t.Errorf("no weights: %s want error", r.Status)
	}
}

func TestNoAvatarsIsWarn(t *testing.T) {
	root := writeRepo(t)
	if err := os.Remove(filepath.Join(root, "data", "avatars", "alice")); err != nil {
		t.Fatal(err)
	}
	s := NewAggregator().Run(context.Background(), testEnv(t, root))
	if r := resultFor(t, s, "avatar.assets"); r.Status != StatusWarn {
		t.Errorf("avatar.assets=%s want warn", r.Status)
	}
}

func TestForeignBackendPortIsError(t *testing.T) {
	root := writeRepo(t)
	env := testEnv(t, root)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()
	env.BackendPort = ln.Addr().(*net.TCPAddr).Port

	s := NewAggregator().Run(context.Background(), env)
	if r := resultFor(t, s, "backend.port"); r.Status != StatusError {
		t.Errorf("foreign occupier: %s want error", r.Status)
	}

	// same situation but the supervisor owns the port: ok
	env.PortOwned = func(port int) bool { return port == env.BackendPort }
	s = NewAggregator().Run(context.Background(), env)
	if r := resultFor(t, s, "backend.port"); r.Status != StatusOK {
		t.Errorf("owned occupier: %s want ok (%s)", r.Status, r.Detail)
	}
}

func TestOccupiedLivePortIsWarn(t *testing.T) {
	root := writeRepo(t)
	env := testEnv(t, root)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()
	env.LivePort = ln.Addr().(*net.TCPAddr).Port

	s := NewAggregator().Run(context.Background(), env)
	if r := resultFor(t, s, "live.port"); r.Status != StatusWarn {
		t.Errorf("live.port=%s want warn", r.Status)
	}
}

func TestTTSProbe(t *testing.T) {
	root := writeRepo(t)

	// healthy server
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/languages" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`["en"]`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	env := testEnv(t, root)
	env.TTSServer = srv.URL
	s := NewAggregator().Run(context.Background(), env)
	if r := resultFor(t, s, "tts.port"); r.Status != StatusOK {
		t.Errorf("tts.port=%s want ok (%s)", r.Status, r.Detail)
	}
	if r := resultFor(t, s, "tts.http"); r.Status != StatusOK {
		t.Errorf("tts.http=%s want ok (%s)", r.Status, r.Detail)
	}

	// reachable but broken interface
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()
	env.TTSServer = broken.URL
	s = NewAggregator().Run(context.Background(), env)
	if r := resultFor(t, s, "tts.http"); r.Status != StatusWarn {
		t.Errorf("tts.http=%s want warn", r.Status)
	}

	// unparseable address
	env.TTSServer = "::nonsense::"
	s = NewAggregator().Run(context.Background(), env)
	if r := resultFor(t, s, "tts.port"); r.Status != StatusWarn {
		t.Errorf("bad address: %s want warn", r.Status)
	}
}
