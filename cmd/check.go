package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"text/tabwriter"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/colmap"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/command"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/config"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/pipeline"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/scene"
	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a scene and the installed tools without running anything",
		Args:  cobra.NoArgs,
	}
	sceneDir := sceneFlag(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, opts, config.Overrides{SceneDir: sceneDir()})
		if err != nil {
			return err
		}
		return runCheck(cmd, cfg, nil)
	}
	return cmd
}

func runCheck(cmd *cobra.Command, cfg config.Config, lookPath command.LookPathFunc) error {
	out := cmd.OutOrStdout()

	l, err := scene.NewLayout(cfg.SceneDir)
	if err != nil {
		return err
	}
	inv, err := scene.Validate(l)
	if err != nil {
		return err
	}
	rec, err := colmap.Load(l.SparseDir())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Scene:   %s\n", l.Root)
	fmt.Fprintf(out, "Images:  %d\n", len(inv.Images))
	fmt.Fprintf(out, "Sparse:  %s (%d cameras, %d images, %d points)\n",
		inv.SparseFormat, len(rec.Cameras), len(rec.Images), len(rec.Points3D))

	progressPath := l.MVSPath(scene.ProgressFile)
	if prev, err := pipeline.ReadProgress(progressPath); err == nil {
		fmt.Fprintf(out, "Previous: completed=%t textured=%t max_face_area=%d refine_scales=%s (%s)\n",
			prev.Completed, prev.Textured, prev.MaxFaceArea, prev.RefineScales, progressPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	tools, err := cfg.Toolset()
	if err != nil {
		return err
	}
	resolved, depErr := scene.CheckDependencies(tools, lookPath)

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tCOMMAND\tPATH")
	for _, tool := range command.RequiredTools {
		path, ok := resolved[tool]
		if !ok {
			path = "not found"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", tool, tools.Command(tool, "").String(), path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if depErr != nil {
		return depErr
	}

	fmt.Fprintln(out, "\n✅ Scene is ready")
	return nil
}
