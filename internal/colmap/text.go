package colmap

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// textLines yields the non-empty, non-comment lines of a COLMAP text table
// together with their 1-based line numbers.
func textLines(r io.Reader, fn func(lineNum int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 64 * 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(lineNum, strings.Fields(line)); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	return scanner.Err()
}

type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) uint(i int, bits int) uint64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(p.fields[i], 10, bits)
	if err != nil {
		p.err = err
	}
	return v
}

func (p *fieldParser) int(i int) int64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(p.fields[i], 10, 64)
	if err != nil {
		p.err = err
	}
	return v
}

func (p *fieldParser) float(i int) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.fields[i], 64)
	if err != nil {
		p.err = err
	}
	return v
}

// ReadCamerasText decodes a cameras.txt table:
//
//	CAMERA_ID MODEL WIDTH HEIGHT PARAMS[]
//
// Unknown model names are kept with ModelUnknown so they can be normalized
// with fallback intrinsics.
func ReadCamerasText(r io.Reader) ([]Camera, error) {
	var cams []Camera
	err := textLines(r, func(_ int, fields []string) error {
		if len(fields) < 4 {
			return fmt.Errorf("expected at least 4 fields, got %d", len(fields))
		}
		p := &fieldParser{fields: fields}
		cam := Camera{
			ID:     uint32(p.uint(0, 32)),
			Model:  ParseCameraModel(fields[1]),
			Width:  p.uint(2, 64),
			Height: p.uint(3, 64),
		}
		if cam.Model == ModelUnknown {
			cam.ModelName = fields[1]
		}
		cam.Params = make([]float64, 0, len(fields)-4)
		for i := 4; i < len(fields); i++ {
			cam.Params = append(cam.Params, p.float(i))
		}
		if p.err != nil {
			return p.err
		}
		if n := cam.Model.NumParams(); n >= 0 && len(cam.Params) != n {
			return fmt.Errorf("camera %d: model %s expects %d params, got %d", cam.ID, cam.Model, n, len(cam.Params))
		}
		cams = append(cams, cam)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading cameras: %w", err)
	}
	return cams, nil
}

// ReadImagesText decodes an images.txt table, which stores two lines per
// image:
//
//	IMAGE_ID QW QX QY QZ TX TY TZ CAMERA_ID NAME
//	POINTS2D[] as (X, Y, POINT3D_ID)
//
// The second line may be empty, so lines are consumed raw rather than through
// textLines.
func ReadImagesText(r io.Reader) ([]Image, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024*1024)

	var imgs []Image
	lineNum := 0
	var header *Image
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if header == nil {
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) < 10 {
				return nil, fmt.Errorf("reading images: line %d: expected 10 fields, got %d", lineNum, len(fields))
			}
			p := &fieldParser{fields: fields}
			img := Image{ID: uint32(p.uint(0, 32))}
			for j := range img.QVec {
				img.QVec[j] = p.float(1 + j)
			}
			for j := range img.TVec {
				img.TVec[j] = p.float(5 + j)
			}
			img.CameraID = uint32(p.uint(8, 32))
			img.Name = strings.Join(fields[9:], " ")
			if p.err != nil {
				return nil, fmt.Errorf("reading images: line %d: %w", lineNum, p.err)
			}
			header = &img
			continue
		}

		fields := strings.Fields(line)
		if len(fields)%3 != 0 {
			return nil, fmt.Errorf("reading images: line %d: points2D fields not a multiple of 3", lineNum)
		}
		p := &fieldParser{fields: fields}
		header.Points2D = make([]Point2D, 0, len(fields)/3)
		for i := 0; i < len(fields); i += 3 {
			header.Points2D = append(header.Points2D, Point2D{X: p.float(i), Y: p.float(i + 1), Point3DID: p.int(i + 2)})
		}
		if p.err != nil {
			return nil, fmt.Errorf("reading images: line %d: %w", lineNum, p.err)
		}
		imgs = append(imgs, *header)
		header = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading images: %w", err)
	}
	if header != nil {
		imgs = append(imgs, *header)
	}
	return imgs, nil
}

// ReadPoints3DText decodes a points3D.txt table:
//
//	POINT3D_ID X Y Z R G B ERROR TRACK[] as (IMAGE_ID, POINT2D_IDX)
func ReadPoints3DText(r io.Reader) ([]Point3D, error) {
	var pts []Point3D
	err := textLines(r, func(_ int, fields []string) error {
		if len(fields) < 8 || (len(fields)-8)%2 != 0 {
			return fmt.Errorf("malformed point record with %d fields", len(fields))
		}
		p := &fieldParser{fields: fields}
		pt := Point3D{ID: p.uint(0, 64)}
		for j := range pt.XYZ {
			pt.XYZ[j] = p.float(1 + j)
		}
		for j := range pt.RGB {
			pt.RGB[j] = uint8(p.uint(4+j, 8))
		}
		pt.Error = p.float(7)
		pt.Track = make([]TrackElement, 0, (len(fields)-8)/2)
		for i := 8; i < len(fields); i += 2 {
			pt.Track = append(pt.Track, TrackElement{
				ImageID:    uint32(p.uint(i, 32)),
				Point2DIdx: uint32(p.uint(i+1, 32)),
			})
		}
		if p.err != nil {
			return p.err
		}
		pts = append(pts, pt)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading points3D: %w", err)
	}
	return pts, nil
}
