// Package pipeline turns a COLMAP sparse reconstruction into a mesh by
// running the OpenMVS tools in order over a scene directory.
//
// A run is single-threaded: every tool blocks until it exits, nothing is
// retried and there is no timeout. Concurrent runs over one scene directory
// are not supported.
package pipeline

import (
	"context"
	"fmt"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/command"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/config"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/logger"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/scene"
)

// Pipeline runs the mesh pipeline for one configuration.
type Pipeline struct {
	cfg      config.Config
	exec     command.Executor
	lookPath command.LookPathFunc
}

// New creates a Pipeline. A nil exec runs real processes and a nil lookPath
// searches PATH.
func New(cfg config.Config, exec command.Executor, lookPath command.LookPathFunc) *Pipeline {
	if exec == nil {
		exec = command.NewOSExecutor()
	}
	return &Pipeline{cfg: cfg, exec: exec, lookPath: lookPath}
}

// Run executes the pipeline: resume check, validation, stages, progress
// record, cleanup. The returned Run is non-nil whenever the scene layout
// could be resolved, including on failure.
func (p *Pipeline) Run(ctx context.Context) (*Run, error) {
	l, err := scene.NewLayout(p.cfg.SceneDir)
	if err != nil {
		return nil, err
	}

	run := newRun(l.FinalMesh(p.cfg.Textured()), p.cfg.Textured())
	logger.Log.Infow("Starting mesh pipeline",
		"run_id", run.ID,
		"scene_dir", l.Root,
		"max_face_area", p.cfg.Mesh.MaxFaceArea,
		"refine_scales", p.cfg.Mesh.RefineScales,
		"texture", p.cfg.Textured())

	if AlreadyDone(p.cfg, l) {
		run.Resumed = true
		logger.Log.Infow("Output already exists, skipping processing", "output", run.FinalOutput)
		return run, nil
	}

	inv, err := scene.Validate(l)
	if err != nil {
		return run, err
	}
	run.ImageCount = len(inv.Images)
	logger.Log.Infow("Validated scene", "images", len(inv.Images), "sparse_format", inv.SparseFormat)

	tools, err := p.cfg.Toolset()
	if err != nil {
		return run, fmt.Errorf("invalid tool configuration: %w", err)
	}
	if _, err := scene.CheckDependencies(tools, p.lookPath); err != nil {
		return run, err
	}

	stages := BuildStages(p.cfg, l, prepareWorkingCopy(l, run))
	if err := NewRunner(p.exec, tools).Run(ctx, run, stages); err != nil {
		logger.Log.Warnw("Run failed, keeping intermediate files for inspection", "dir", l.DenseDir())
		return run, err
	}

	progressPath := l.MVSPath(scene.ProgressFile)
	if err := WriteProgress(progressPath, NewProgressRecord(p.cfg)); err != nil {
		return run, err
	}
	logger.Log.Infow("Progress file saved", "path", progressPath)

	// The scene is complete once progress is recorded; a leftover dense/
	// directory does not fail the run.
	if err := Cleanup(l, p.cfg.Run.KeepIntermediate); err != nil {
		logger.Log.Warnw("Failed to remove intermediate files", "dir", l.DenseDir(), "error", err)
	}

	logger.Log.Infow("Mesh pipeline complete",
		"run_id", run.ID,
		"stages", run.Executed(),
		"output", run.FinalOutput)
	return run, nil
}
