package health

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/musestudio/stagehand/internal/assethost"
	"github.com/musestudio/stagehand/internal/portprobe"
	"github.com/musestudio/stagehand/internal/supervisor"
)

// Asset layout under the repo root checked by the probes.
const (
	modelsRelDir  = "models"
	weightRelPath = "models/wav2lip.pth"
	avatarsRelDir = "data/avatars"
)

func one(r ProbeResult) []ProbeResult { return []ProbeResult{r} }

func probeTargetRoot(_ context.Context, env Env) []ProbeResult {
	r := ProbeResult{Key: "target.root", Label: "Repository root"}
	if env.RepoRoot == "" {
		r.Status = StatusError
		r.Detail = "no repository root configured"
		r.Suggestion = "Select the backend repository root in settings"
		return one(r)
	}
	fi, err := os.Stat(env.RepoRoot)
	if err != nil || !fi.IsDir() {
		r.Status = StatusError
		r.Detail = env.RepoRoot + " is not a directory"
		r.Suggestion = "Select an existing backend repository root"
		return one(r)
	}
	if err := supervisor.ValidateLayout(env.RepoRoot); err != nil {
		r.Status = StatusError
		r.Detail = err.Error()
		r.Suggestion = "Select the repository root that contains " + supervisor.EntryRelPath
		return one(r)
	}
	r.Status = StatusOK
	r.Detail = env.RepoRoot
	return one(r)
}

func probeTargetAssets(_ context.Context, env Env) []ProbeResult {
	r := ProbeResult{Key: "target.assets", Label: "Asset directories"}
	var missing []string
	for _, rel := range []string{modelsRelDir, "data"} {
		fi, err := os.Stat(filepath.Join(env.RepoRoot, rel))
		if err != nil || !fi.IsDir() {
			missing = append(missing, rel)
		}
	}
	if len(missing) > 0 {
		r.Status = StatusError
		r.Detail = "missing: " + strings.Join(missing, ", ")
		r.Suggestion = "Create the missing directories under the repository root"
		return one(r)
	}
	r.Status = StatusOK
	r.Detail = "models and data directories present"
	return one(r)
}

func probeWebUIDir(_ context.Context, env Env) []ProbeResult {
	r := ProbeResult{Key: "webui.dir", Label: "Studio UI assets"}
	for _, dir := range []string{env.AssetPrimary, env.AssetFallback} {
		if dir == "" {
			continue
		}
		if fi, err := os.Stat(filepath.Join(dir, assethost.RootDocument)); err == nil && !fi.IsDir() {
			r.Status = StatusOK
			r.Detail = dir
			return one(r)
		}
	}
	r.Status = StatusError
	r.Detail = "no directory with " + assethost.RootDocument + " found"
	r.Suggestion = "Build the webui or reinstall the bundled assets"
	return one(r)
}

func probeBackendEntry(_ context.Context, env Env) []ProbeResult {
	r := ProbeResult{Key: "backend.entry", Label: "Backend entry point"}
	entry := filepath.Join(env.RepoRoot, filepath.FromSlash(supervisor.EntryRelPath))
	if fi, err := os.Stat(entry); err != nil || fi.IsDir() {
		r.Status = StatusError
		r.Detail = entry + " not found"
		r.Suggestion = "Check out a complete copy of the backend repository"
		return one(r)
	}
	r.Status = StatusOK
	r.Detail = entry
	return one(r)
}

func probePythonRuntime(ctx context.Context, env Env) []ProbeResult {
	r := ProbeResult{Key: "python.runtime", Label: "Python interpreter"}
	python := env.Python
	if python == "" {
		python = "python3"
	}
	// #nosec G204 -- interpreter path comes from settings/env override
	out, err := exec.CommandContext(ctx, python, "--version").CombinedOutput()
	if err != nil {
		r.Status = StatusError
		r.Detail = fmt.Sprintf("%s --version: %v", python, err)
		r.Suggestion = "Install Python or set STAGEHAND_PYTHON to a valid interpreter"
		return one(r)
	}
	r.Status = StatusOK
	r.Detail = strings.TrimSpace(string(out))
	return one(r)
}

// probeModelWeights is three-tiered: the exact weight file is ok, other
// weight files in the models directory are an ambiguous warn, nothing is an
// error.
func probeModelWeights(_ context.Context, env Env) []ProbeResult {
	r := ProbeResult{Key: "model.wav2lip", Label: "wav2lip model weights"}
	exact := filepath.Join(env.RepoRoot, filepath.FromSlash(weightRelPath))
	if fi, err := os.Stat(exact); err == nil && !fi.IsDir() {
		r.Status = StatusOK
		r.Detail = exact
		return one(r)
	}
	matches, _ := filepath.Glob(filepath.Join(env.RepoRoot, modelsRelDir, "*.pth"))
	if len(matches) > 0 {
		r.Status = StatusWarn
		r.Detail = fmt.Sprintf("%s missing, found %d other weight file(s)", exact, len(matches))
		r.Suggestion = "Rename or copy the intended weights to " + weightRelPath
		return one(r)
	}
	r.Status = StatusError
	r.Detail = exact + " missing"
	r.Suggestion = "Download the wav2lip weights to " + weightRelPath
	return one(r)
}

func probeAvatarAssets(_ context.Context, env Env) []ProbeResult {
	r := ProbeResult{Key: "avatar.assets", Label: "Avatar assets"}
	dir := filepath.Join(env.RepoRoot, filepath.FromSlash(avatarsRelDir))
	count := 0
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				count++
			}
		}
	}
	if count == 0 {
		r.Status = StatusWarn
		r.Detail = fmt.Sprintf("dir: %s, count: 0", dir)
		r.Suggestion = "Prepare at least one avatar asset before going live"
		return one(r)
	}
	r.Status = StatusOK
	r.Detail = fmt.Sprintf("dir: %s, count: %d", dir, count)
	return one(r)
}

func probeBackendPort(_ context.Context, env Env) []ProbeResult {
	r := ProbeResult{Key: "backend.port", Label: "Backend API port"}
	st, err := portprobe.Bind(env.BackendPort)
	switch st {
	case portprobe.Free:
		r.Status = StatusOK
		r.Detail = fmt.Sprintf("127.0.0.1:%d free", env.BackendPort)
	case portprobe.Occupied:
		if env.PortOwned != nil && env.PortOwned(env.BackendPort) {
			r.Status = StatusOK
			r.Detail = fmt.Sprintf("127.0.0.1:%d held by the supervised backend", env.BackendPort)
		} else {
			r.Status = StatusError
			r.Detail = fmt.Sprintf("127.0.0.1:%d occupied by a foreign process", env.BackendPort)
			r.Suggestion = "Stop the process occupying the port or change the backend port"
		}
	default:
		r.Status = StatusWarn
		r.Detail = fmt.Sprintf("probe failed: %v", err)
	}
	return one(r)
}

// probeLivePort is advisory only; an occupied live port is a warn, never an
// error, because a stream may legitimately be running.
func probeLivePort(_ context.Context, env Env) []ProbeResult {
	r := ProbeResult{Key: "live.port", Label: "Live stream port"}
	st, err := portprobe.Bind(env.LivePort)
	switch st {
	case portprobe.Free:
		r.Status = StatusOK
		r.Detail = fmt.Sprintf("127.0.0.1:%d free", env.LivePort)
	case portprobe.Occupied:
		r.Status = StatusWarn
		r.Detail = fmt.Sprintf("127.0.0.1:%d occupied", env.LivePort)
		r.Suggestion = "Use another port or stop the process occupying it"
	default:
		r.Status = StatusWarn
		r.Detail = fmt.Sprintf("probe failed: %v", err)
	}
	return one(r)
}

// probeTTSServer checks TCP reachability of the TTS server and, when
// reachable, its /languages capability endpoint.
func probeTTSServer(ctx context.Context, env Env) []ProbeResult {
	port := ProbeResult{Key: "tts.port", Label: "TTS server reachability"}
	u, err := url.Parse(env.TTSServer)
	if err != nil || u.Hostname() == "" {
		port.Status = StatusWarn
		port.Detail = fmt.Sprintf("invalid TTS server address %q", env.TTSServer)
		port.Suggestion = "Fix the TTS server URL in settings"
		return one(port)
	}
	host := u.Hostname()
	p := u.Port()
	portNum := 80
	if u.Scheme == "https" {
		portNum = 443
	}
	if p != "" {
		_, _ = fmt.Sscanf(p, "%d", &portNum)
	}
	if !portprobe.Dial(host, portNum, 2500*time.Millisecond) {
		port.Status = StatusWarn
		port.Detail = fmt.Sprintf("%s:%d unreachable", host, portNum)
		port.Suggestion = "Start the TTS server or correct its address"
		return one(port)
	}
	port.Status = StatusOK
	port.Detail = fmt.Sprintf("%s:%d reachable", host, portNum)

	httpRes := ProbeResult{Key: "tts.http", Label: "TTS HTTP interface"}
	capURL := strings.TrimRight(env.TTSServer, "/") + "/languages"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, capURL, nil)
	if err != nil {
		httpRes.Status = StatusWarn
		httpRes.Detail = err.Error()
		return []ProbeResult{port, httpRes}
	}
	client := &http.Client{Timeout: 2500 * time.Millisecond}
	resp, err := client.Do(req)
	if err != nil {
		httpRes.Status = StatusWarn
		httpRes.Detail = "request failed: " + err.Error()
		httpRes.Suggestion = "Check the TTS server logs"
		return []ProbeResult{port, httpRes}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		httpRes.Status = StatusWarn
		httpRes.Detail = fmt.Sprintf("%s returned HTTP %d", capURL, resp.StatusCode)
		httpRes.Suggestion = "Service reachable but the interface misbehaves; check the TTS server version"
	} else {
		httpRes.Status = StatusOK
		httpRes.Detail = capURL + " healthy"
	}
	return []ProbeResult{port, httpRes}
}
