package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/colmap"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/logger"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/scene"
)

// prepareWorkingCopy builds dense/: a symlink to the original images and a
// copy of the sparse model with every camera converted to PINHOLE. Images
// are linked rather than undistorted so their dimensions keep matching the
// camera table.
func prepareWorkingCopy(l scene.Layout, run *Run) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := os.MkdirAll(l.DenseDir(), 0755); err != nil {
			return fmt.Errorf("failed to create dense directory: %w", err)
		}

		link := l.DenseImagesDir()
		if err := removeExisting(link); err != nil {
			return err
		}
		if err := os.Symlink(l.ImagesDir(), link); err != nil {
			return fmt.Errorf("failed to link images: %w", err)
		}
		logger.Log.Infow("Linked images", "link", link, "target", l.ImagesDir())

		if err := os.RemoveAll(l.DenseSparseDir()); err != nil {
			return fmt.Errorf("failed to clear %s: %w", l.DenseSparseDir(), err)
		}

		warnings, err := colmap.NormalizeModel(l.SparseDir(), l.DenseSparseDir())
		if err != nil {
			return err
		}
		for _, w := range warnings {
			logger.Log.Warnw("Unknown camera model, using approximate fallback intrinsics",
				"camera_id", w.CameraID,
				"model", w.Model,
				"width", w.Width,
				"height", w.Height)
		}
		run.Warnings = append(run.Warnings, warnings...)
		logger.Log.Infow("Saved PINHOLE cameras", "dir", l.DenseSparseDir(), "approximate", len(warnings))
		return nil
	}
}

// removeExisting deletes a previous symlink or directory at path.
func removeExisting(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
		err = os.Remove(path)
	} else {
		err = os.RemoveAll(path)
	}
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
