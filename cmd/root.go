package cmd

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/config"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFile    string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "colmap2mesh",
		Short: "Build textured meshes from COLMAP reconstructions with OpenMVS",
		Long: `colmap2mesh turns a COLMAP sparse reconstruction into a mesh.

It converts every camera to the PINHOLE model, then runs the OpenMVS tools
InterfaceCOLMAP, DensifyPointCloud, ReconstructMesh, RefineMesh and
TextureMesh over the scene directory.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file (default: $"+config.EnvConfigPath+", ./colmap2mesh.yaml or the user config dir)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Also write JSON logs to this file, rotated")

	// Accept scene_dir as well as scene-dir.
	cmd.SetGlobalNormalizationFunc(underscoreToDash)

	cmd.AddCommand(newMeshCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newCamerasCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))

	return cmd
}

func underscoreToDash(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// loadConfig layers the config file and the changed flags, validates the
// result and installs the logger.
func loadConfig(cmd *cobra.Command, opts *rootOptions, o config.Overrides) (config.Config, error) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		o.LogLevel = &opts.logLevel
	}
	if flags.Changed("log-file") {
		o.LogFile = &opts.logFile
	}

	cfg, err := config.Load(opts.configPath, o)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.LogFile)
	return cfg, nil
}

// sceneFlag registers --scene-dir and returns a function reporting the
// override, nil when the flag was not given.
func sceneFlag(cmd *cobra.Command) func() *string {
	var dir string
	cmd.Flags().StringVar(&dir, "scene-dir", "", "Scene directory containing images/ and sparse/")
	return func() *string {
		if cmd.Flags().Changed("scene-dir") {
			return &dir
		}
		return nil
	}
}
