package pipeline

import (
	"fmt"
	"os"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/logger"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/scene"
)

// removeAll is replaced in tests.
var removeAll = os.RemoveAll

// Cleanup removes the dense/ working copy unless keep is set. It must only
// run after every stage reading from dense/ has finished. Removing the
// directory deletes the images symlink, never the original images.
func Cleanup(l scene.Layout, keep bool) error {
	dir := l.DenseDir()
	if keep {
		logger.Log.Infow("Keeping intermediate files", "dir", dir)
		return nil
	}
	if !exists(dir) {
		return nil
	}
	logger.Log.Infow("Removing dense directory", "dir", dir)
	if err := removeAll(dir); err != nil {
		return fmt.Errorf("failed to remove intermediate files: %w", err)
	}
	return nil
}
