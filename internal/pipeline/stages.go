package pipeline

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/colmap"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/command"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/config"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/scene"
)

// Stage names in execution order.
const (
	StagePrepare     = "Prepare"
	StageConvert     = "Convert"
	StageDensify     = "Densify"
	StageReconstruct = "Reconstruct"
	StageRefine      = "Refine"
	StageTexture     = "Texture"
)

// StageOrder lists every stage in the order it runs.
var StageOrder = []string{
	StagePrepare,
	StageConvert,
	StageDensify,
	StageReconstruct,
	StageRefine,
	StageTexture,
}

// Stage is one step of the pipeline. A stage either runs an external Tool
// with Args in Dir, or an in-process action.
type Stage struct {
	Name        string
	Description string
	Tool        string
	Args        []string
	Dir         string

	// Inputs must exist before the stage starts; Outputs must exist after
	// it finishes.
	Inputs  []string
	Outputs []string

	action func(ctx context.Context) error
}

// BuildStages returns the ordered stages for cfg. The Texture stage is left
// out when texturing is disabled. prepare is the in-process action of the
// Prepare stage.
func BuildStages(cfg config.Config, l scene.Layout, prepare func(ctx context.Context) error) []Stage {
	mvs := l.MVSDir()
	denseCameras := filepath.Join(l.DenseSparseDir(), colmap.CamerasBin)

	stages := []Stage{
		{
			Name:        StagePrepare,
			Description: "Preparing images and converting cameras to PINHOLE",
			Dir:         l.DenseDir(),
			Inputs:      []string{l.ImagesDir(), l.SparseDir()},
			Outputs:     []string{l.DenseImagesDir(), denseCameras},
			action:      prepare,
		},
		{
			Name:        StageConvert,
			Description: "Converting COLMAP to MVS format",
			Tool:        command.ToolInterface,
			Args: []string{
				"-i", l.DenseDir(),
				"-o", l.MVSPath(scene.SceneMVS),
				"--image-folder", l.DenseImagesDir(),
			},
			Dir:     mvs,
			Inputs:  []string{l.DenseImagesDir(), denseCameras},
			Outputs: []string{l.MVSPath(scene.SceneMVS)},
		},
		{
			Name:        StageDensify,
			Description: "Densifying point cloud",
			Tool:        command.ToolDensify,
			Args:        []string{scene.SceneMVS},
			Dir:         mvs,
			Inputs:      []string{l.MVSPath(scene.SceneMVS)},
			Outputs:     []string{l.MVSPath(scene.DenseMVS)},
		},
		{
			Name:        StageReconstruct,
			Description: "Reconstructing mesh",
			Tool:        command.ToolReconstruct,
			Args:        []string{scene.DenseMVS, "-p", scene.DensePLY},
			Dir:         mvs,
			Inputs:      []string{l.MVSPath(scene.DenseMVS)},
			Outputs:     []string{l.MVSPath(scene.MeshPLY)},
		},
		{
			Name:        StageRefine,
			Description: "Refining mesh",
			Tool:        command.ToolRefine,
			Args: []string{
				scene.DenseMVS,
				"-m", scene.MeshPLY,
				"-o", scene.RefinedMVS,
				"--scales", cfg.Mesh.RefineScales,
				"--max-face-area", strconv.Itoa(cfg.Mesh.MaxFaceArea),
			},
			Dir:     mvs,
			Inputs:  []string{l.MVSPath(scene.DenseMVS), l.MVSPath(scene.MeshPLY)},
			Outputs: []string{l.MVSPath(scene.RefinedPLY)},
		},
	}

	if cfg.Textured() {
		stages = append(stages, Stage{
			Name:        StageTexture,
			Description: "Applying texture to mesh",
			Tool:        command.ToolTexture,
			Args:        []string{scene.DenseMVS, "-m", scene.RefinedPLY, "-o", scene.TexturedMVS},
			Dir:         mvs,
			Inputs:      []string{l.MVSPath(scene.DenseMVS), l.MVSPath(scene.RefinedPLY)},
			Outputs:     []string{l.MVSPath(scene.TexturedPLY)},
		})
	}

	return stages
}
