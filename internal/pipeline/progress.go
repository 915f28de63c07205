package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/config"
)

// ProgressRecord summarizes a completed run. Its presence in the MVS
// directory marks the scene as done.
type ProgressRecord struct {
	Completed    bool   `json:"completed"`
	SceneDir     string `json:"scene_dir"`
	MaxFaceArea  int    `json:"max_face_area"`
	RefineScales string `json:"refine_scales"`
	Textured     bool   `json:"textured"`
}

// NewProgressRecord describes a successful run of cfg.
func NewProgressRecord(cfg config.Config) ProgressRecord {
	return ProgressRecord{
		Completed:    true,
		SceneDir:     cfg.SceneDir,
		MaxFaceArea:  cfg.Mesh.MaxFaceArea,
		RefineScales: cfg.Mesh.RefineScales,
		Textured:     cfg.Textured(),
	}
}

// WriteProgress stores rec as indented JSON at path.
func WriteProgress(path string, rec ProgressRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write progress file: %w", err)
	}
	return nil
}

// ReadProgress loads a progress record.
func ReadProgress(path string) (ProgressRecord, error) {
	var rec ProgressRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to parse progress file %s: %w", path, err)
	}
	return rec, nil
}
