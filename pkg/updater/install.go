package updater

import (
	"os"
	"path/filepath"

	"github.com/cuemby/refit/pkg/fsutil"
	"github.com/cuemby/refit/pkg/version"
)

// DetectMode classifies the installation at root for a standalone run: a
// missing or empty root is a fresh install, a root without a version marker
// or missing one of the required files needs repair, anything else is an
// ordinary update.
func DetectMode(root string, required []string) Mode {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() || fsutil.IsEmptyDir(root) {
		return ModeFreshInstall
	}
	if version.ReadMarker(root) == "" {
		return ModeRepair
	}
	for _, rel := range required {
		if !fsutil.Exists(filepath.Join(root, rel)) {
			return ModeRepair
		}
	}
	return ModeUpdate
}
