package colmap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Table file names inside a sparse model directory.
const (
	CamerasBin  = "cameras.bin"
	ImagesBin   = "images.bin"
	Points3DBin = "points3D.bin"

	CamerasTxt  = "cameras.txt"
	ImagesTxt   = "images.txt"
	Points3DTxt = "points3D.txt"
)

// BinaryTables and TextTables list the files making up a complete sparse
// model in each format.
var (
	BinaryTables = []string{CamerasBin, ImagesBin, Points3DBin}
	TextTables   = []string{CamerasTxt, ImagesTxt, Points3DTxt}
)

// Format is the on-disk encoding of a sparse model.
type Format string

const (
	FormatBinary Format = "binary"
	FormatText   Format = "text"
)

// LoadError reports a sparse model that could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load reconstruction %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Reconstruction is an in-memory COLMAP sparse model.
type Reconstruction struct {
	Cameras  []Camera
	Images   []Image
	Points3D []Point3D
}

// DetectFormat reports which complete table set dir holds, preferring the
// binary tables the way COLMAP does.
func DetectFormat(dir string) (Format, bool) {
	if hasAll(dir, BinaryTables) {
		return FormatBinary, true
	}
	if hasAll(dir, TextTables) {
		return FormatText, true
	}
	return "", false
}

func hasAll(dir string, names []string) bool {
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

// Load reads the sparse model stored in dir. Any failure is returned as a
// *LoadError.
func Load(dir string) (*Reconstruction, error) {
	format, ok := DetectFormat(dir)
	if !ok {
		return nil, &LoadError{Path: dir, Err: errors.New("no complete set of camera, image and point tables")}
	}

	rec := &Reconstruction{}
	var err error
	switch format {
	case FormatBinary:
		err = loadTables(dir, BinaryTables, rec, ReadCamerasBinary, ReadImagesBinary, ReadPoints3DBinary)
	case FormatText:
		err = loadTables(dir, TextTables, rec, ReadCamerasText, ReadImagesText, ReadPoints3DText)
	}
	if err != nil {
		return nil, err
	}

	if err := rec.checkReferences(); err != nil {
		return nil, &LoadError{Path: dir, Err: err}
	}
	return rec, nil
}

func loadTables(
	dir string,
	names []string,
	rec *Reconstruction,
	readCams func(io.Reader) ([]Camera, error),
	readImgs func(io.Reader) ([]Image, error),
	readPts func(io.Reader) ([]Point3D, error),
) error {
	readers := []func(io.Reader) error{
		func(r io.Reader) (err error) { rec.Cameras, err = readCams(r); return },
		func(r io.Reader) (err error) { rec.Images, err = readImgs(r); return },
		func(r io.Reader) (err error) { rec.Points3D, err = readPts(r); return },
	}
	for i, name := range names {
		path := filepath.Join(dir, name)
		if err := readFile(path, readers[i]); err != nil {
			return &LoadError{Path: path, Err: err}
		}
	}
	return nil
}

func readFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}

// checkReferences verifies that every image refers to a camera in the model.
func (r *Reconstruction) checkReferences() error {
	ids := make(map[uint32]struct{}, len(r.Cameras))
	for _, cam := range r.Cameras {
		if _, dup := ids[cam.ID]; dup {
			return fmt.Errorf("duplicate camera id %d", cam.ID)
		}
		ids[cam.ID] = struct{}{}
	}
	for _, img := range r.Images {
		if _, ok := ids[img.CameraID]; !ok {
			return fmt.Errorf("image %d (%s) references missing camera %d", img.ID, img.Name, img.CameraID)
		}
	}
	return nil
}

// Write stores the model in dir as binary tables, creating dir if needed.
func (r *Reconstruction) Write(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create sparse directory: %w", err)
	}

	cams := append([]Camera(nil), r.Cameras...)
	sort.Slice(cams, func(i, j int) bool { return cams[i].ID < cams[j].ID })

	writers := map[string]func(io.Writer) error{
		CamerasBin:  func(w io.Writer) error { return WriteCamerasBinary(w, cams) },
		ImagesBin:   func(w io.Writer) error { return WriteImagesBinary(w, r.Images) },
		Points3DBin: func(w io.Writer) error { return WritePoints3DBinary(w, r.Points3D) },
	}
	for _, name := range BinaryTables {
		if err := writeFile(filepath.Join(dir, name), writers[name]); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
