package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/config"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/pipeline"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/scene"
	"github.com/spf13/cobra"
)

func newMeshCmd(opts *rootOptions) *cobra.Command {
	var (
		noTexture        bool
		maxFaceArea      int
		refineScales     string
		skipIfExists     bool
		keepIntermediate bool
	)

	cmd := &cobra.Command{
		Use:   "mesh",
		Short: "Run the OpenMVS mesh pipeline over a scene",
		Long: `Run the mesh pipeline over a scene directory.

The scene must contain images/ with the photos and sparse/ with a COLMAP
reconstruction (cameras, images and points3D tables). Results are written to
mesh/mvs/ inside the scene. The intermediate dense/ directory is removed after
a successful run unless --keep-intermediate is set.`,
		Example: `  # Full pipeline with texture
  colmap2mesh mesh --scene-dir ./statue

  # Geometry only, finer refinement, rerun safely
  colmap2mesh mesh --scene-dir ./statue --no-texture --max-face-area 8 --skip-if-exists`,
		Args: cobra.NoArgs,
	}
	sceneDir := sceneFlag(cmd)

	cmd.Flags().BoolVar(&noTexture, "no-texture", false, "Skip the texturing stage")
	cmd.Flags().IntVar(&maxFaceArea, "max-face-area", 16, "Maximum face area for RefineMesh")
	cmd.Flags().StringVar(&refineScales, "refine-scales", "1", "Number of scales for RefineMesh")
	cmd.Flags().BoolVar(&skipIfExists, "skip-if-exists", false, "Do nothing when the final mesh already exists")
	cmd.Flags().BoolVar(&keepIntermediate, "keep-intermediate", false, "Keep the dense/ working directory")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		o := config.Overrides{SceneDir: sceneDir()}
		if flags.Changed("no-texture") {
			o.NoTexture = &noTexture
		}
		if flags.Changed("max-face-area") {
			o.MaxFaceArea = &maxFaceArea
		}
		if flags.Changed("refine-scales") {
			o.RefineScales = &refineScales
		}
		if flags.Changed("skip-if-exists") {
			o.SkipIfExists = &skipIfExists
		}
		if flags.Changed("keep-intermediate") {
			o.KeepIntermediate = &keepIntermediate
		}

		cfg, err := loadConfig(cmd, opts, o)
		if err != nil {
			return err
		}

		run, err := pipeline.New(cfg, nil, nil).Run(cmd.Context())
		if err != nil {
			return err
		}
		printSummary(cmd, run)
		return nil
	}

	return cmd
}

func printSummary(cmd *cobra.Command, run *pipeline.Run) {
	out := cmd.OutOrStdout()
	if run.Resumed {
		fmt.Fprintf(out, "Output already exists: %s\n", run.FinalOutput)
		return
	}

	fmt.Fprintf(out, "\n✅ Mesh pipeline complete (run %s)\n", run.ID)
	fmt.Fprintf(out, "Images:  %d\n", run.ImageCount)
	for _, s := range run.Stages {
		if s.Status == pipeline.StatusSucceeded {
			fmt.Fprintf(out, "  %-12s %s\n", s.Name, s.Duration.Round(time.Second))
		}
	}
	if len(run.Warnings) > 0 {
		fmt.Fprintf(out, "⚠️  %d camera(s) used approximate intrinsics\n", len(run.Warnings))
	}

	size := "unknown size"
	if info, err := os.Stat(run.FinalOutput); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	fmt.Fprintf(out, "Output:  %s (%s)\n", run.FinalOutput, size)

	textures, _ := filepath.Glob(filepath.Join(filepath.Dir(run.FinalOutput), scene.TextureImageGlob))
	if len(textures) > 0 {
		fmt.Fprintf(out, "Texture: %d image(s)\n", len(textures))
	}
}
