package cmd

import (
	"fmt"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/cameratable"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/colmap"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/config"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/logger"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/scene"
	"github.com/spf13/cobra"
)

func newCamerasCmd(opts *rootOptions) *cobra.Command {
	var format string
	var export string

	cmd := &cobra.Command{
		Use:   "cameras",
		Short: "Show how each camera maps to the PINHOLE model",
		Long: `Load the sparse reconstruction of a scene and print the PINHOLE intrinsics
the mesh pipeline would use for every camera. Nothing in the scene is written.

Cameras whose model has no pinhole mapping are flagged as approximate.`,
		Example: `  colmap2mesh cameras --scene-dir ./statue
  colmap2mesh cameras --scene-dir ./statue --format yaml
  colmap2mesh cameras --scene-dir ./statue --export cameras.parquet`,
		Args: cobra.NoArgs,
	}
	sceneDir := sceneFlag(cmd)
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or yaml")
	cmd.Flags().StringVar(&export, "export", "", "Also write the rows to a .parquet or .yaml file")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if format != "table" && format != "yaml" {
			return fmt.Errorf("unknown format %q (supported: table, yaml)", format)
		}
		cfg, err := loadConfig(cmd, opts, config.Overrides{SceneDir: sceneDir()})
		if err != nil {
			return err
		}

		l, err := scene.NewLayout(cfg.SceneDir)
		if err != nil {
			return err
		}
		rec, err := colmap.Load(l.SparseDir())
		if err != nil {
			return err
		}
		report, warnings, err := cameratable.FromReconstruction(l.Root, rec)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			logger.Log.Warnw(w.String(), "width", w.Width, "height", w.Height)
		}

		out := cmd.OutOrStdout()
		switch format {
		case "yaml":
			err = cameratable.WriteYAML(out, report)
		default:
			err = cameratable.Print(out, report.Cameras)
		}
		if err != nil {
			return err
		}

		if export != "" {
			if err := cameratable.Export(export, report); err != nil {
				return err
			}
			logger.Log.Infow("Exported camera table", "path", export, "cameras", len(report.Cameras))
		}
		return nil
	}
	return cmd
}
