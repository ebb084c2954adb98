// Package server exposes the host's command surface to the UI layer over a
// loopback HTTP listener: request/response commands under /api/v1 plus a
// websocket pushing full status snapshots.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/musestudio/stagehand/internal/metrics"
	"github.com/musestudio/stagehand/internal/orchestrator"
	"github.com/musestudio/stagehand/internal/settings"
)

type Router struct {
	orch *orchestrator.Orchestrator
	log  *slog.Logger
}

func NewRouter(orch *orchestrator.Orchestrator, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{orch: orch, log: log}
}

// Handler returns the http.Handler for the command surface.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())

	api := g.Group("/api/v1")
	api.GET("/status", r.handleStatus)
	api.PATCH("/settings", r.handleUpdateSettings)
	api.POST("/api/start", r.handleStartAPI)
	api.POST("/api/stop", r.handleStopAPI)
	api.POST("/api/restart", r.handleRestartAPI)
	api.POST("/checks", r.handleRunChecks)
	api.GET("/logs", r.handleLogs)
	api.POST("/logs/clear", r.handleClearLogs)
	api.POST("/repo-root", r.handlePickRepoRoot)
	api.GET("/events", r.handleEvents)

	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The listener is bound before returning so an occupied or unusable control
// port fails startup instead of leaving a host with no API.
func NewServer(addr string, orch *orchestrator.Orchestrator, log *slog.Logger) (*http.Server, error) {
	r := NewRouter(orch, log)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind control listener on %s: %w", addr, err)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // websocket connections stay open
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if serr := srv.Serve(ln); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			r.log.Error("control API server stopped", "error", serr)
		}
	}()
	return srv, nil
}

// --- handlers ---

type errorResp struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// suggester is implemented by the recoverable error types so the UI can show
// a remediation hint alongside the message.
type suggester interface {
	Suggestion() string
}

func writeError(c *gin.Context, code int, err error) {
	resp := errorResp{Error: err.Error()}
	var s suggester
	if ok := asSuggester(err, &s); ok {
		resp.Suggestion = s.Suggestion()
	}
	c.JSON(code, resp)
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.orch.Snapshot())
}

func (r *Router) handleUpdateSettings(c *gin.Context) {
	var patch settings.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	next, err := r.orch.UpdateSettings(patch)
	if err != nil {
		// Settings stayed authoritative in memory; report the write failure
		// alongside the applied values.
		r.log.Error("settings update persisted with error", "error", err)
	}
	c.JSON(http.StatusOK, next)
}

func (r *Router) handleStartAPI(c *gin.Context) {
	if err := r.orch.StartAPI(); err != nil {
		writeError(c, http.StatusConflict, err)
		return
	}
	c.JSON(http.StatusOK, r.orch.Snapshot())
}

func (r *Router) handleStopAPI(c *gin.Context) {
	force := c.Query("force") == "true"
	if err := r.orch.StopAPI(force); err != nil {
		writeError(c, http.StatusConflict, err)
		return
	}
	c.JSON(http.StatusOK, r.orch.Snapshot())
}

func (r *Router) handleRestartAPI(c *gin.Context) {
	if err := r.orch.RestartAPI(); err != nil {
		writeError(c, http.StatusConflict, err)
		return
	}
	c.JSON(http.StatusOK, r.orch.Snapshot())
}

func (r *Router) handleRunChecks(c *gin.Context) {
	c.JSON(http.StatusOK, r.orch.RunChecks(c.Request.Context()))
}

func (r *Router) handleLogs(c *gin.Context) {
	tail := 200
	if v := c.Query("tail"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			tail = n
		}
	}
	lines := r.orch.Logs(tail)
	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, lines)
}

func (r *Router) handleClearLogs(c *gin.Context) {
	r.orch.ClearLogs()
	c.JSON(http.StatusOK, okResp{OK: true})
}

type pickRepoRootReq struct {
	Path string `json:"path" binding:"required"`
}

func (r *Router) handlePickRepoRoot(c *gin.Context) {
	var req pickRepoRootReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	res, err := r.orch.PickRepoRoot(req.Path)
	if err != nil && !res.OK {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
