package ai

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"aerialcapture/internal/dto"
)

// MatFrame is a dto.Frame backed by an OpenCV matrix in BGR order.
type MatFrame struct {
	mat gocv.Mat
}

// NewMatFrame takes ownership of mat.
func NewMatFrame(mat gocv.Mat) *MatFrame {
	return &MatFrame{mat: mat}
}

// Mat exposes the underlying matrix; it stays owned by the frame.
func (f *MatFrame) Mat() gocv.Mat {
	return f.mat
}

func (f *MatFrame) Size() (int, int) {
	return f.mat.Cols(), f.mat.Rows()
}

func (f *MatFrame) Clone() dto.Frame {
	return &MatFrame{mat: f.mat.Clone()}
}

// Encode returns the frame as JPEG at the given quality.
func (f *MatFrame) Encode(quality int) ([]byte, error) {
	if f.mat.Empty() {
		return nil, errors.New("frame is empty")
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, f.mat, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

func (f *MatFrame) Close() error {
	return f.mat.Close()
}

// matOf extracts the matrix of a frame produced by this package.
func matOf(frame dto.Frame) (gocv.Mat, error) {
	mf, ok := frame.(*MatFrame)
	if !ok {
		return gocv.Mat{}, fmt.Errorf("unsupported frame type %T", frame)
	}
	return mf.mat, nil
}
