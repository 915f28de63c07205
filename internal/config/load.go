package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding a config file path.
const EnvConfigPath = "COLMAP2MESH_CONFIG"

// Overrides carries command-line values. Nil fields leave the loaded value
// untouched.
type Overrides struct {
	SceneDir         *string
	MaxFaceArea      *int
	RefineScales     *string
	NoTexture        *bool
	SkipIfExists     *bool
	KeepIntermediate *bool
	LogLevel         *string
	LogFile          *string
}

// Load builds the configuration with priority: defaults < file < overrides.
// An explicit path must exist; otherwise the standard locations are searched
// and a missing file is not an error.
func Load(path string, o Overrides) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if !explicit {
		path = findConfigFile()
	}

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return Config{}, fmt.Errorf("expanding config path %s: %w", path, err)
		}
		if err := loadFromFile(&cfg, expanded); err != nil {
			return Config{}, fmt.Errorf("loading config from %s: %w", expanded, err)
		}
	}

	o.apply(&cfg)

	for _, p := range []*string{&cfg.SceneDir, &cfg.Logging.LogFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return Config{}, fmt.Errorf("expanding path %s: %w", *p, err)
		}
		*p = expanded
	}

	return cfg, nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{"./colmap2mesh.yaml"}
	if dir := ConfigDir(); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory, or "" when it
// cannot be determined.
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "colmap2mesh")
}

// loadFromFile merges a YAML file into cfg. Unknown keys are rejected.
func loadFromFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func (o Overrides) apply(cfg *Config) {
	if o.SceneDir != nil {
		cfg.SceneDir = *o.SceneDir
	}
	if o.MaxFaceArea != nil {
		cfg.Mesh.MaxFaceArea = *o.MaxFaceArea
	}
	if o.RefineScales != nil {
		cfg.Mesh.RefineScales = *o.RefineScales
	}
	if o.NoTexture != nil {
		cfg.Mesh.NoTexture = *o.NoTexture
	}
	if o.SkipIfExists != nil {
		cfg.Run.SkipIfExists = *o.SkipIfExists
	}
	if o.KeepIntermediate != nil {
		cfg.Run.KeepIntermediate = *o.KeepIntermediate
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFile != nil {
		cfg.Logging.LogFile = *o.LogFile
	}
}

// Save writes cfg as YAML to path.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
