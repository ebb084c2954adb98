package assethost

import (
	"os"
	"path/filepath"
)

// Well-known asset locations.
const (
	RepoRelDir    = "webui"
	BundledRelDir = "resources/webui"
)

// RepoDir returns the candidate asset directory inside a repo checkout, or
// "" when no root is configured.
func RepoDir(repoRoot string) string {
	if repoRoot == "" {
		return ""
	}
	return filepath.Join(repoRoot, RepoRelDir)
}

// BundledDir returns the asset directory shipped next to the executable.
func BundledDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), filepath.FromSlash(BundledRelDir))
}
