package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/colmap"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/command"
)

// ImageExtensions are the photo extensions accepted in images/, compared
// case-insensitively.
var ImageExtensions = []string{".jpg", ".jpeg", ".png"}

// ValidationError reports the first missing piece of the scene layout.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid scene: %s: %s", e.Reason, e.Path)
}

// DependencyError lists every required tool that could not be found.
type DependencyError struct {
	Missing []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("required commands not found in PATH: %s (install OpenMVS and COLMAP or configure the tool command lines)",
		strings.Join(e.Missing, ", "))
}

// Inventory summarizes a validated scene.
type Inventory struct {
	Images       []string
	SparseFormat colmap.Format
}

// Validate checks that images/ holds at least one photo and sparse/ holds a
// complete reconstruction. It stops at the first problem.
func Validate(l Layout) (*Inventory, error) {
	imagesDir := l.ImagesDir()
	if err := requireDir(imagesDir, "images directory not found"); err != nil {
		return nil, err
	}

	images, err := ListImages(imagesDir)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, &ValidationError{Path: imagesDir, Reason: "no images found"}
	}

	sparseDir := l.SparseDir()
	if err := requireDir(sparseDir, "sparse directory not found"); err != nil {
		return nil, err
	}

	format, ok := colmap.DetectFormat(sparseDir)
	if !ok {
		for _, name := range colmap.BinaryTables {
			path := filepath.Join(sparseDir, name)
			if _, err := os.Stat(path); err != nil {
				return nil, &ValidationError{Path: path, Reason: "required file not found"}
			}
		}
		// Only reachable when a table path exists but is a directory.
		return nil, &ValidationError{Path: sparseDir, Reason: "incomplete sparse reconstruction"}
	}

	return &Inventory{Images: images, SparseFormat: format}, nil
}

func requireDir(path, reason string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ValidationError{Path: path, Reason: reason}
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return &ValidationError{Path: path, Reason: "not a directory"}
	}
	return nil
}

// ListImages returns the names of photo files directly inside dir, sorted.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read images directory: %w", err)
	}
	var images []string
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		images = append(images, e.Name())
	}
	return images, nil
}

// IsImage reports whether name has one of ImageExtensions.
func IsImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range ImageExtensions {
		if ext == want {
			return true
		}
	}
	return false
}

// CheckDependencies verifies that every required tool resolves. All missing
// tools are reported together.
func CheckDependencies(tools command.Toolset, lookPath command.LookPathFunc) (map[string]string, error) {
	resolved, missing := tools.Resolve(command.RequiredTools, lookPath)
	if len(missing) > 0 {
		return resolved, &DependencyError{Missing: missing}
	}
	return resolved, nil
}
