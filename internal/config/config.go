// Package config handles colmap2mesh configuration loading.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/command"
)

// Config holds every setting of a pipeline run. It is built once at startup
// and passed by value afterwards.
type Config struct {
	SceneDir string            `yaml:"scene_dir,omitempty"`
	Mesh     MeshConfig        `yaml:"mesh"`
	Run      RunConfig         `yaml:"run"`
	Tools    map[string]string `yaml:"tools,omitempty"` // tool name -> command line
	Logging  LoggingConfig     `yaml:"logging"`
}

// MeshConfig holds OpenMVS stage parameters.
type MeshConfig struct {
	MaxFaceArea  int    `yaml:"max_face_area"`
	RefineScales string `yaml:"refine_scales"`
	NoTexture    bool   `yaml:"no_texture"`
}

// RunConfig controls resume and cleanup behavior.
type RunConfig struct {
	SkipIfExists     bool `yaml:"skip_if_exists"`
	KeepIntermediate bool `yaml:"keep_intermediate"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with the documented defaults.
func Default() Config {
	return Config{
		Mesh: MeshConfig{
			MaxFaceArea:  16,
			RefineScales: "1",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Textured reports whether the Texture stage runs.
func (c Config) Textured() bool {
	return !c.Mesh.NoTexture
}

// Toolset builds the tool command lines from Tools.
func (c Config) Toolset() (command.Toolset, error) {
	return command.NewToolset(c.Tools)
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SceneDir) == "" {
		errs = append(errs, errors.New("scene directory is required"))
	}
	if c.Mesh.MaxFaceArea <= 0 {
		errs = append(errs, fmt.Errorf("max face area must be positive, got %d", c.Mesh.MaxFaceArea))
	}
	if strings.TrimSpace(c.Mesh.RefineScales) == "" {
		errs = append(errs, errors.New("refine scales must not be empty"))
	}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}
	for name := range c.Tools {
		if !isKnownTool(name) {
			errs = append(errs, fmt.Errorf("unknown tool %q in tools section", name))
		}
	}
	if _, err := c.Toolset(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func isKnownTool(name string) bool {
	for _, tool := range command.RequiredTools {
		if tool == name {
			return true
		}
	}
	return false
}
