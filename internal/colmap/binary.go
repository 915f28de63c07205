package colmap

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// COLMAP binary tables are little-endian with uint64 record counts.

var errBadCount = errors.New("record count exceeds remaining data")

// maxPrealloc bounds slice preallocation from counts read out of a file so a
// corrupt header cannot force a huge allocation.
const maxPrealloc = 1 << 16

type binReader struct {
	r   *bufio.Reader
	buf [8]byte
	err error
}

func newBinReader(r io.Reader) *binReader {
	return &binReader{r: bufio.NewReader(r)}
}

func (b *binReader) read(n int) []byte {
	if b.err != nil {
		return b.buf[:n]
	}
	if _, err := io.ReadFull(b.r, b.buf[:n]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		b.err = err
	}
	return b.buf[:n]
}

func (b *binReader) u8() uint8    { return b.read(1)[0] }
func (b *binReader) u32() uint32  { return binary.LittleEndian.Uint32(b.read(4)) }
func (b *binReader) i32() int32   { return int32(b.u32()) }
func (b *binReader) u64() uint64  { return binary.LittleEndian.Uint64(b.read(8)) }
func (b *binReader) i64() int64   { return int64(b.u64()) }
func (b *binReader) f64() float64 { return math.Float64frombits(b.u64()) }

func (b *binReader) cstring() string {
	if b.err != nil {
		return ""
	}
	s, err := b.r.ReadString(0)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		b.err = err
		return ""
	}
	return s[:len(s)-1]
}

func (b *binReader) count() int {
	n := b.u64()
	if b.err == nil && n > math.MaxInt32 {
		b.err = errBadCount
	}
	return int(n)
}

func prealloc(n int) int {
	return min(n, maxPrealloc)
}

// ReadCamerasBinary decodes a cameras.bin table. The record length depends on
// the model, so a model id outside the known set cannot be skipped and fails
// the whole table.
func ReadCamerasBinary(r io.Reader) ([]Camera, error) {
	br := newBinReader(r)
	n := br.count()
	cams := make([]Camera, 0, prealloc(n))
	for i := 0; i < n && br.err == nil; i++ {
		cam := Camera{
			ID:    br.u32(),
			Model: CameraModel(br.i32()),
		}
		cam.Width = br.u64()
		cam.Height = br.u64()
		if br.err != nil {
			break
		}
		np := cam.Model.NumParams()
		if np < 0 {
			return nil, fmt.Errorf("camera %d: unsupported model id %d", cam.ID, int(cam.Model))
		}
		cam.Params = make([]float64, np)
		for j := range cam.Params {
			cam.Params[j] = br.f64()
		}
		cams = append(cams, cam)
	}
	if br.err != nil {
		return nil, fmt.Errorf("reading cameras: %w", br.err)
	}
	return cams, nil
}

// ReadImagesBinary decodes an images.bin table.
func ReadImagesBinary(r io.Reader) ([]Image, error) {
	br := newBinReader(r)
	n := br.count()
	imgs := make([]Image, 0, prealloc(n))
	for i := 0; i < n && br.err == nil; i++ {
		img := Image{ID: br.u32()}
		for j := range img.QVec {
			img.QVec[j] = br.f64()
		}
		for j := range img.TVec {
			img.TVec[j] = br.f64()
		}
		img.CameraID = br.u32()
		img.Name = br.cstring()
		np := br.count()
		img.Points2D = make([]Point2D, 0, prealloc(np))
		for j := 0; j < np && br.err == nil; j++ {
			img.Points2D = append(img.Points2D, Point2D{X: br.f64(), Y: br.f64(), Point3DID: br.i64()})
		}
		imgs = append(imgs, img)
	}
	if br.err != nil {
		return nil, fmt.Errorf("reading images: %w", br.err)
	}
	return imgs, nil
}

// ReadPoints3DBinary decodes a points3D.bin table.
func ReadPoints3DBinary(r io.Reader) ([]Point3D, error) {
	br := newBinReader(r)
	n := br.count()
	pts := make([]Point3D, 0, prealloc(n))
	for i := 0; i < n && br.err == nil; i++ {
		p := Point3D{ID: br.u64()}
		for j := range p.XYZ {
			p.XYZ[j] = br.f64()
		}
		for j := range p.RGB {
			p.RGB[j] = br.u8()
		}
		p.Error = br.f64()
		nt := br.count()
		p.Track = make([]TrackElement, 0, prealloc(nt))
		for j := 0; j < nt && br.err == nil; j++ {
			p.Track = append(p.Track, TrackElement{ImageID: br.u32(), Point2DIdx: br.u32()})
		}
		pts = append(pts, p)
	}
	if br.err != nil {
		return nil, fmt.Errorf("reading points3D: %w", br.err)
	}
	return pts, nil
}

type binWriter struct {
	w   *bufio.Writer
	buf [8]byte
	err error
}

func newBinWriter(w io.Writer) *binWriter {
	return &binWriter{w: bufio.NewWriter(w)}
}

func (b *binWriter) write(p []byte) {
	if b.err != nil {
		return
	}
	_, b.err = b.w.Write(p)
}

func (b *binWriter) u8(v uint8) { b.write([]byte{v}) }

func (b *binWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(b.buf[:4], v)
	b.write(b.buf[:4])
}

func (b *binWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(b.buf[:8], v)
	b.write(b.buf[:8])
}

func (b *binWriter) f64(v float64) { b.u64(math.Float64bits(v)) }

func (b *binWriter) cstring(s string) {
	b.write([]byte(s))
	b.u8(0)
}

func (b *binWriter) flush() error {
	if b.err != nil {
		return b.err
	}
	return b.w.Flush()
}

// WriteCamerasBinary encodes cameras in cameras.bin layout. Every camera must
// use a known model with the matching number of params.
func WriteCamerasBinary(w io.Writer, cams []Camera) error {
	for _, cam := range cams {
		if !cam.Model.Known() {
			return fmt.Errorf("camera %d: cannot encode model %q", cam.ID, cam.Name())
		}
		if len(cam.Params) != cam.Model.NumParams() {
			return fmt.Errorf("camera %d: model %s expects %d params, got %d",
				cam.ID, cam.Model, cam.Model.NumParams(), len(cam.Params))
		}
	}
	bw := newBinWriter(w)
	bw.u64(uint64(len(cams)))
	for _, cam := range cams {
		bw.u32(cam.ID)
		bw.u32(uint32(int32(cam.Model)))
		bw.u64(cam.Width)
		bw.u64(cam.Height)
		for _, p := range cam.Params {
			bw.f64(p)
		}
	}
	return bw.flush()
}

// WriteImagesBinary encodes images in images.bin layout.
func WriteImagesBinary(w io.Writer, imgs []Image) error {
	bw := newBinWriter(w)
	bw.u64(uint64(len(imgs)))
	for _, img := range imgs {
		bw.u32(img.ID)
		for _, q := range img.QVec {
			bw.f64(q)
		}
		for _, t := range img.TVec {
			bw.f64(t)
		}
		bw.u32(img.CameraID)
		bw.cstring(img.Name)
		bw.u64(uint64(len(img.Points2D)))
		for _, p := range img.Points2D {
			bw.f64(p.X)
			bw.f64(p.Y)
			bw.u64(uint64(p.Point3DID))
		}
	}
	return bw.flush()
}

// WritePoints3DBinary encodes points in points3D.bin layout.
func WritePoints3DBinary(w io.Writer, pts []Point3D) error {
	bw := newBinWriter(w)
	bw.u64(uint64(len(pts)))
	for _, p := range pts {
		bw.u64(p.ID)
		for _, v := range p.XYZ {
			bw.f64(v)
		}
		for _, c := range p.RGB {
			bw.u8(c)
		}
		bw.f64(p.Error)
		bw.u64(uint64(len(p.Track)))
		for _, t := range p.Track {
			bw.u32(t.ImageID)
			bw.u32(t.Point2DIdx)
		}
	}
	return bw.flush()
}
