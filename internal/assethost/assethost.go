// Package assethost serves the studio UI's static files over a loopback-only
// listener on an OS-assigned port, so the embedded UI never depends on an
// external web server. It prefers the repo checkout's webui directory and
// falls back to the assets bundled next to the executable.
package assethost

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RootDocument is the document served for directory requests.
const RootDocument = "index.html"

// Source values for State.Source.
const (
	SourceRepo    = "repo"
	SourceBundled = "bundled"
)

// NoAssetSourceError reports that neither candidate directory contains a
// servable root document.
type NoAssetSourceError struct {
	Primary  string
	Fallback string
}

func (e *NoAssetSourceError) Error() string {
	return fmt.Sprintf("no asset source: neither %q nor %q contains %s", e.Primary, e.Fallback, RootDocument)
}

func (e *NoAssetSourceError) Suggestion() string {
	return "Reinstall the application or select a repo root with a built webui directory"
}

// errTraversal marks a resolved request path escaping the serving root.
var errTraversal = errors.New("path escapes serving root")

// State is recomputed on every (re)start and owned exclusively by the host.
type State struct {
	ServingDir string `json:"serving_dir"`
	BaseURL    string `json:"base_url"`
	Running    bool   `json:"running"`
	Source     string `json:"source"`
}

type Host struct {
	mu    sync.Mutex
	srv   *http.Server
	state State
	log   *slog.Logger
}

func New(log *slog.Logger) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{log: log}
}

// Start picks a serving directory and binds an ephemeral loopback listener.
// primaryDir wins when it contains the root document; fallbackDir is the
// bundled copy. Calling Start while running is an error; use Restart.
func (h *Host) Start(primaryDir, fallbackDir string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Running {
		return errors.New("asset host already running")
	}

	dir, source, err := pickSource(primaryDir, fallbackDir)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("bind asset host: %w", err)
	}

	g := gin.New()
	g.Use(gin.Recovery())
	g.NoRoute(h.serveFile(dir))
	srv := &http.Server{
		Handler:           g,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()

	h.srv = srv
	h.state = State{
		ServingDir: dir,
		BaseURL:    "http://" + ln.Addr().String(),
		Running:    true,
		Source:     source,
	}
	h.log.Info("asset host started", "dir", dir, "source", source, "base_url", h.state.BaseURL)
	return nil
}

// Stop closes the listener, releasing the port before any new Start.
func (h *Host) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.state.Running {
		return nil
	}
	err := h.srv.Close()
	h.srv = nil
	h.state.Running = false
	h.state.BaseURL = ""
	return err
}

// Restart is used whenever the serving directory changes.
func (h *Host) Restart(primaryDir, fallbackDir string) error {
	if err := h.Stop(); err != nil {
		return err
	}
	return h.Start(primaryDir, fallbackDir)
}

// State returns a copy of the current host state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func pickSource(primary, fallback string) (string, string, error) {
	if hasRootDocument(primary) {
		return primary, SourceRepo, nil
	}
	if hasRootDocument(fallback) {
		return fallback, SourceBundled, nil
	}
	return "", "", &NoAssetSourceError{Primary: primary, Fallback: fallback}
}

func hasRootDocument(dir string) bool {
	if dir == "" {
		return false
	}
	fi, err := os.Stat(filepath.Join(dir, RootDocument))
	return err == nil && !fi.IsDir()
}

// serveFile maps the request path to a file under root. Directory requests
// get the root document; a resolved path escaping root is refused with 403.
func (h *Host) serveFile(root string) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, err := resolve(root, c.Request.URL.Path)
		if err != nil {
			c.String(http.StatusForbidden, "forbidden")
			return
		}
		fi, err := os.Stat(target)
		if err != nil {
			c.String(http.StatusNotFound, "not found")
			return
		}
		if fi.IsDir() {
			target = filepath.Join(target, RootDocument)
			if _, err := os.Stat(target); err != nil {
				c.String(http.StatusNotFound, "not found")
				return
			}
		}
		c.Header("Content-Type", contentType(target))
		c.File(target)
	}
}

// resolve joins reqPath under root, collapsing dot segments, and rejects any
// result outside root.
func resolve(root, reqPath string) (string, error) {
	cleaned := filepath.Clean("/" + strings.TrimPrefix(reqPath, "/"))
	target := filepath.Join(root, filepath.FromSlash(cleaned))
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	if targetAbs != rootAbs && !strings.HasPrefix(targetAbs, rootAbs+string(filepath.Separator)) {
		return "", errTraversal
	}
	return targetAbs, nil
}

// contentType derives the response type from the file extension via a static
// table; anything unknown is served as an opaque octet stream.
func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".js":
		return "application/javascript"
	case ".css":
		return "text/css; charset=utf-8"
	case ".json":
		return "application/json"
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".ico":
		return "image/x-icon"
	default:
		return "application/octet-stream"
	}
}
