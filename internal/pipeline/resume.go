package pipeline

import (
	"github.com/lehigh-university-libraries/colmap2mesh/internal/config"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/scene"
)

// AlreadyDone reports whether a run of cfg can be skipped because its final
// artifact exists and skipping is enabled.
func AlreadyDone(cfg config.Config, l scene.Layout) bool {
	if !cfg.Run.SkipIfExists {
		return false
	}
	return exists(l.FinalMesh(cfg.Textured()))
}
