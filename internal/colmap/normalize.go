package colmap

import (
	"fmt"
	"math"
)

// family groups camera models by how their leading params encode the
// pinhole intrinsics.
type family int

const (
	familyPinhole family = iota
	familySingleFocal
	familyDualFocal
	familyOther
)

func (m CameraModel) family() family {
	switch m {
	case Pinhole:
		return familyPinhole
	case SimplePinhole, SimpleRadial, SimpleRadialFisheye, Radial, RadialFisheye:
		return familySingleFocal
	case OpenCV, OpenCVFisheye, FullOpenCV, FOV, ThinPrismFisheye, RadTanThinPrismFisheye:
		return familyDualFocal
	default:
		return familyOther
	}
}

// ModelWarning records a camera whose model is not recognized. The
// normalized camera uses fallback intrinsics and is only approximate.
type ModelWarning struct {
	CameraID uint32
	Model    string
	Width    uint64
	Height   uint64
}

func (w ModelWarning) String() string {
	return fmt.Sprintf("camera %d: unknown camera model %s, using fallback intrinsics", w.CameraID, w.Model)
}

// NormalizedCamera is a PINHOLE camera derived from a source camera.
type NormalizedCamera struct {
	Camera

	SourceModel string
	Approximate bool
}

// Intrinsics returns fx, fy, cx, cy.
func (n NormalizedCamera) Intrinsics() (fx, fy, cx, cy float64) {
	return n.Params[0], n.Params[1], n.Params[2], n.Params[3]
}

// NormalizeCamera converts cam to the PINHOLE model. Distortion terms are
// dropped. Unrecognized models get fx = fy = max(width, height) and a
// centered principal point, and the result is marked approximate.
func NormalizeCamera(cam Camera) (NormalizedCamera, error) {
	out := NormalizedCamera{
		Camera: Camera{
			ID:     cam.ID,
			Model:  Pinhole,
			Width:  cam.Width,
			Height: cam.Height,
		},
		SourceModel: cam.Name(),
	}

	fam := cam.Model.family()
	need := map[family]int{familyPinhole: 4, familySingleFocal: 3, familyDualFocal: 4}[fam]
	if len(cam.Params) < need {
		return NormalizedCamera{}, fmt.Errorf("camera %d: model %s needs at least %d params, got %d",
			cam.ID, cam.Name(), need, len(cam.Params))
	}

	switch fam {
	case familyPinhole, familyDualFocal:
		out.Params = []float64{cam.Params[0], cam.Params[1], cam.Params[2], cam.Params[3]}
	case familySingleFocal:
		f, cx, cy := cam.Params[0], cam.Params[1], cam.Params[2]
		out.Params = []float64{f, f, cx, cy}
	default:
		f := math.Max(float64(cam.Width), float64(cam.Height))
		out.Params = []float64{f, f, float64(cam.Width) / 2, float64(cam.Height) / 2}
		out.Approximate = true
	}
	return out, nil
}

// NormalizeCameras converts every camera, preserving order. A warning is
// returned for each approximate camera.
func NormalizeCameras(cams []Camera) ([]NormalizedCamera, []ModelWarning, error) {
	out := make([]NormalizedCamera, 0, len(cams))
	var warnings []ModelWarning
	for _, cam := range cams {
		n, err := NormalizeCamera(cam)
		if err != nil {
			return nil, nil, err
		}
		if n.Approximate {
			warnings = append(warnings, ModelWarning{
				CameraID: cam.ID,
				Model:    cam.Name(),
				Width:    cam.Width,
				Height:   cam.Height,
			})
		}
		out = append(out, n)
	}
	return out, warnings, nil
}

// Normalized returns a copy of r whose cameras are all PINHOLE. Image and
// point tables are shared with r.
func (r *Reconstruction) Normalized() (*Reconstruction, []ModelWarning, error) {
	normalized, warnings, err := NormalizeCameras(r.Cameras)
	if err != nil {
		return nil, nil, err
	}
	cams := make([]Camera, len(normalized))
	for i, n := range normalized {
		cams[i] = n.Camera
	}
	return &Reconstruction{Cameras: cams, Images: r.Images, Points3D: r.Points3D}, warnings, nil
}

// NormalizeModel loads the sparse model in srcDir, normalizes its cameras
// and writes the result to dstDir as binary tables. srcDir is never written.
func NormalizeModel(srcDir, dstDir string) ([]ModelWarning, error) {
	rec, err := Load(srcDir)
	if err != nil {
		return nil, err
	}
	out, warnings, err := rec.Normalized()
	if err != nil {
		return nil, &LoadError{Path: srcDir, Err: err}
	}
	if err := out.Write(dstDir); err != nil {
		return nil, err
	}
	return warnings, nil
}
