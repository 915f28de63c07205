// Package colmap reads and writes COLMAP sparse reconstructions and normalizes
// their camera intrinsics to the pinhole model accepted by OpenMVS.
package colmap

import "fmt"

// CameraModel identifies a COLMAP camera projection model.
// Values match the model ids stored in cameras.bin.
type CameraModel int

const (
	ModelUnknown CameraModel = -1

	SimplePinhole          CameraModel = 0
	Pinhole                CameraModel = 1
	SimpleRadial           CameraModel = 2
	Radial                 CameraModel = 3
	OpenCV                 CameraModel = 4
	OpenCVFisheye          CameraModel = 5
	FullOpenCV             CameraModel = 6
	FOV                    CameraModel = 7
	SimpleRadialFisheye    CameraModel = 8
	RadialFisheye          CameraModel = 9
	ThinPrismFisheye       CameraModel = 10
	RadTanThinPrismFisheye CameraModel = 11
)

type modelInfo struct {
	name      string
	numParams int
}

var models = map[CameraModel]modelInfo{
	SimplePinhole:          {"SIMPLE_PINHOLE", 3},
	Pinhole:                {"PINHOLE", 4},
	SimpleRadial:           {"SIMPLE_RADIAL", 4},
	Radial:                 {"RADIAL", 5},
	OpenCV:                 {"OPENCV", 8},
	OpenCVFisheye:          {"OPENCV_FISHEYE", 8},
	FullOpenCV:             {"FULL_OPENCV", 12},
	FOV:                    {"FOV", 5},
	SimpleRadialFisheye:    {"SIMPLE_RADIAL_FISHEYE", 4},
	RadialFisheye:          {"RADIAL_FISHEYE", 5},
	ThinPrismFisheye:       {"THIN_PRISM_FISHEYE", 12},
	RadTanThinPrismFisheye: {"RAD_TAN_THIN_PRISM_FISHEYE", 16},
}

// String returns the COLMAP model name, e.g. "SIMPLE_RADIAL".
func (m CameraModel) String() string {
	if info, ok := models[m]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// NumParams returns the number of intrinsic parameters the model carries,
// or -1 for an unknown model.
func (m CameraModel) NumParams() int {
	if info, ok := models[m]; ok {
		return info.numParams
	}
	return -1
}

// Known reports whether m is one of the COLMAP model ids.
func (m CameraModel) Known() bool {
	_, ok := models[m]
	return ok
}

// ParseCameraModel maps a COLMAP model name to its id. Unrecognized names
// return ModelUnknown.
func ParseCameraModel(name string) CameraModel {
	for m, info := range models {
		if info.name == name {
			return m
		}
	}
	return ModelUnknown
}

// Camera is one row of the COLMAP camera table.
type Camera struct {
	ID     uint32
	Model  CameraModel
	Width  uint64
	Height uint64
	Params []float64

	// ModelName preserves the model name read from a text table when it
	// does not match a known model.
	ModelName string
}

// Name returns the model name, preferring the raw text-table name for
// unknown models.
func (c Camera) Name() string {
	if c.Model == ModelUnknown && c.ModelName != "" {
		return c.ModelName
	}
	return c.Model.String()
}

func (c Camera) String() string {
	return fmt.Sprintf("camera %d (%s %dx%d)", c.ID, c.Name(), c.Width, c.Height)
}

// Image is one registered image of the COLMAP image table.
type Image struct {
	ID       uint32
	QVec     [4]float64
	TVec     [3]float64
	CameraID uint32
	Name     string
	Points2D []Point2D
}

// Point2D is a keypoint observation. Point3DID is -1 for untriangulated
// observations.
type Point2D struct {
	X, Y      float64
	Point3DID int64
}

// Point3D is one triangulated point of the COLMAP point table.
type Point3D struct {
	ID    uint64
	XYZ   [3]float64
	RGB   [3]uint8
	Error float64
	Track []TrackElement
}

// TrackElement references the observation of a 3D point in an image.
type TrackElement struct {
	ImageID    uint32
	Point2DIdx uint32
}
