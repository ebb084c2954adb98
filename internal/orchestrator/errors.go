package orchestrator

import "errors"

// ErrCloudMode is returned for start/restart commands while the host only
// targets a remote deployment and supervises no local process.
var ErrCloudMode = errors.New("backend is not supervised in cloud mode")
