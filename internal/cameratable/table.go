// Package cameratable reports how each camera of a sparse model maps to the
// PINHOLE model used by the mesh pipeline.
package cameratable

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/colmap"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Row is one normalized camera.
type Row struct {
	CameraID    int64   `yaml:"camera_id" parquet:"camera_id"`
	SourceModel string  `yaml:"source_model" parquet:"source_model"`
	Width       int64   `yaml:"width" parquet:"width"`
	Height      int64   `yaml:"height" parquet:"height"`
	FX          float64 `yaml:"fx" parquet:"fx"`
	FY          float64 `yaml:"fy" parquet:"fy"`
	CX          float64 `yaml:"cx" parquet:"cx"`
	CY          float64 `yaml:"cy" parquet:"cy"`
	Approximate bool    `yaml:"approximate" parquet:"approximate"`
}

// Report is the YAML document written by Export.
type Report struct {
	SceneDir string `yaml:"scene_dir"`
	Cameras  []Row  `yaml:"cameras"`
}

// Rows converts normalized cameras to report rows, preserving order.
func Rows(cams []colmap.NormalizedCamera) []Row {
	rows := make([]Row, 0, len(cams))
	for _, c := range cams {
		fx, fy, cx, cy := c.Intrinsics()
		rows = append(rows, Row{
			CameraID:    int64(c.ID),
			SourceModel: c.SourceModel,
			Width:       int64(c.Width),
			Height:      int64(c.Height),
			FX:          fx,
			FY:          fy,
			CX:          cx,
			CY:          cy,
			Approximate: c.Approximate,
		})
	}
	return rows
}

// FromReconstruction normalizes the cameras of rec in memory and returns
// the report and the warnings for cameras without a pinhole mapping.
func FromReconstruction(sceneDir string, rec *colmap.Reconstruction) (Report, []colmap.ModelWarning, error) {
	cams, warnings, err := colmap.NormalizeCameras(rec.Cameras)
	if err != nil {
		return Report{}, nil, err
	}
	return Report{SceneDir: sceneDir, Cameras: Rows(cams)}, warnings, nil
}

// Export writes the report to path. The format follows the extension:
// .parquet for a Parquet table, .yaml or .yml for YAML.
func Export(path string, r Report) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".parquet":
		return WriteParquet(path, r.Cameras)
	case ".yaml", ".yml":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := WriteYAML(f, r); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("unsupported export format: %s (supported: .parquet, .yaml)", ext)
	}
}

// WriteYAML encodes the report as YAML.
func WriteYAML(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&r); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}

// WriteParquet stores rows in a Parquet file.
func WriteParquet(path string, rows []Row) error {
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write parquet file: %w", err)
	}
	return nil
}

// Print writes rows as an aligned table.
func Print(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODEL\tSIZE\tFX\tFY\tCX\tCY\tAPPROX")
	for _, r := range rows {
		approx := ""
		if r.Approximate {
			approx = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%dx%d\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			r.CameraID, r.SourceModel, r.Width, r.Height, r.FX, r.FY, r.CX, r.CY, approx)
	}
	return tw.Flush()
}
