package logger

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestWritersFromDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}
	outW, errW, err := c.Writers("backend")
	if err != nil {
		t.Fatalf("Writers: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatal("nil writers for configured dir")
	}
	if _, err := outW.Write([]byte("out line\n")); err != nil {
		t.Fatalf("stdout write: %v", err)
	}
	if _, err := errW.Write([]byte("err line\n")); err != nil {
		t.Fatalf("stderr write: %v", err)
	}
	_ = outW.Close()
	_ = errW.Close()

	for _, name := range []string{"backend.stdout.log", "backend.stderr.log"} {
		if _, err := filepath.Glob(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestWritersEmptyConfig(t *testing.T) {
	outW, errW, err := Config{}.Writers("backend")
	if err != nil {
		t.Fatalf("Writers: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatal("writers returned for empty config")
	}
}

func TestNewHostLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewHostLogger(&buf, false, false)
	log.Debug("hidden")
	log.Info("visible", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug record emitted at info level")
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "k=v") {
		t.Errorf("info record missing: %q", out)
	}

	buf.Reset()
	log = NewHostLogger(&buf, true, false)
	log.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("debug record not emitted in debug mode")
	}
}

func TestNewHostLoggerColor(t *testing.T) {
	var buf bytes.Buffer
	log := NewHostLogger(&buf, false, true)
	log.Info("colored")
	if !strings.Contains(buf.String(), "colored") {
		t.Errorf("record missing: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "\033[32m") {
		t.Errorf("no ANSI level color in %q", buf.String())
	}
}

func TestLevelColorBuckets(t *testing.T) {
	cases := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "\033[36m"},
		{slog.LevelInfo, "\033[32m"},
		{slog.LevelInfo + 1, "\033[32m"},
		{slog.LevelWarn, "\033[33m"},
		{slog.LevelError, "\033[31m"},
		{slog.LevelError + 4, "\033[31m"},
	}
	for _, c := range cases {
		if got := levelColor(c.level); got != c.want {
			t.Errorf("levelColor(%s) = %q, want %q", c.level, got, c.want)
		}
	}
}
