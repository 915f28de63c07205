package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/command"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/logger"
)

// Runner executes stages in order, checking each stage's inputs before it
// starts and its outputs after it finishes. The first failure stops the run.
type Runner struct {
	exec  command.Executor
	tools command.Toolset
}

// NewRunner creates a Runner launching tools through exec.
func NewRunner(exec command.Executor, tools command.Toolset) *Runner {
	return &Runner{exec: exec, tools: tools}
}

// Run executes stages, recording progress in run.
func (r *Runner) Run(ctx context.Context, run *Run, stages []Stage) error {
	for i, stage := range stages {
		logger.Log.Infow("Starting stage",
			"step", fmt.Sprintf("%d/%d", i+1, len(stages)),
			"stage", stage.Name,
			"description", stage.Description)

		start := time.Now()
		err := r.runStage(ctx, stage)
		elapsed := time.Since(start)

		if err != nil {
			run.set(stage.Name, StatusFailed, elapsed)
			logger.Log.Errorw("Stage failed", "stage", stage.Name, "duration", elapsed, "error", err)
			return err
		}
		run.set(stage.Name, StatusSucceeded, elapsed)
		logger.Log.Infow("Stage finished", "stage", stage.Name, "duration", elapsed.Round(time.Millisecond))
	}
	return nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage) error {
	for _, in := range stage.Inputs {
		if !exists(in) {
			return &StageError{Stage: stage.Name, Reason: "required input not found: " + in}
		}
	}

	if stage.Dir != "" {
		if err := os.MkdirAll(stage.Dir, 0755); err != nil {
			return &StageError{Stage: stage.Name, Reason: "failed to create working directory", Err: err}
		}
	}

	var cmdLine string
	if stage.action != nil {
		if err := stage.action(ctx); err != nil {
			return &StageError{Stage: stage.Name, Reason: stage.Description, Err: err}
		}
	} else {
		cmd := r.tools.Command(stage.Tool, stage.Dir, stage.Args...)
		cmdLine = cmd.String()
		logger.Log.Infow("Running command", "command", cmdLine, "dir", cmd.Dir)

		res, err := r.exec.Run(ctx, cmd)
		if len(res.Output) > 0 {
			logger.Log.Debugw("Command output", "stage", stage.Name, "output", string(res.Output))
		}
		if err != nil {
			reason := "command could not be run"
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reason = "interrupted"
			}
			return &StageError{
				Stage:       stage.Name,
				CommandLine: cmdLine,
				ExitCode:    res.ExitCode,
				Output:      res.Output,
				Reason:      reason,
				Err:         err,
			}
		}
		if res.ExitCode != 0 {
			return &StageError{
				Stage:       stage.Name,
				CommandLine: cmdLine,
				ExitCode:    res.ExitCode,
				Output:      res.Output,
				Reason:      fmt.Sprintf("command exited with status %d", res.ExitCode),
			}
		}
		return checkOutputs(stage, cmdLine, res.Output)
	}

	return checkOutputs(stage, cmdLine, nil)
}

// checkOutputs fails the stage when an expected artifact is missing; the
// tools do not always report failure through their exit status.
func checkOutputs(stage Stage, cmdLine string, output []byte) error {
	for _, out := range stage.Outputs {
		if !exists(out) {
			return &StageError{
				Stage:       stage.Name,
				CommandLine: cmdLine,
				Output:      output,
				Reason:      "expected output not found: " + filepath.Base(out),
			}
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
