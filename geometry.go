package lfwrecord

// Conversion of annotation shapes to fractional bounding boxes.

import (
	"math"

	"github.com/pkg/errors"
)

// Shape is an unnormalised object annotation.
type Shape interface {
	// Bounds returns the top-left corner and size of the axis-aligned box covering the shape, in
	// pixels, for an image of the given size.
	Bounds(width, height float64) (x, y, w, h float64)
}

// FullFrame is a box covering the entire image. It is used for images without annotations.
type FullFrame struct{}

// Bounds implements Shape.
func (FullFrame) Bounds(width, height float64) (x, y, w, h float64) {
	return 0, 0, width, height
}

// Rect is a box given by its top-left corner and size in pixels.
type Rect struct {
	X, Y, W, H float64
}

// Bounds implements Shape.
func (r Rect) Bounds(_, _ float64) (x, y, w, h float64) {
	return r.X, r.Y, r.W, r.H
}

// Ellipse is a rotated ellipse annotation.
type Ellipse struct {
	MajorRadius  float64
	MinorRadius  float64
	AngleDegrees float64
	CenterX      float64
	CenterY      float64
}

// Radii returns the projected half extents of the ellipse.
//
// Both radii are scaled by the cosine of the angle. This is not the exact bound of a rotated
// ellipse, but it is what the existing FDDB-derived datasets were built with.
func (e Ellipse) Radii() (rMajor, rMinor float64) {
	c := math.Cos(e.AngleDegrees * math.Pi / 180)
	return e.MajorRadius * c, e.MinorRadius * c
}

// Bounds implements Shape. The major radius is vertical.
func (e Ellipse) Bounds(_, _ float64) (x, y, w, h float64) {
	rMajor, rMinor := e.Radii()
	return e.CenterX - rMinor, e.CenterY - rMajor, 2 * rMinor, 2 * rMajor
}

// Normalize converts s to a face Box with coordinates given as fractions of the image width and
// height. Boxes outside of the image are not clamped.
//
// A non-positive image dimension or a NaN coordinate is a NumericIntegrity error.
func Normalize(s Shape, width, height int) (Box, error) {
	if width <= 0 || height <= 0 {
		return Box{}, integrity("invalid image size %dx%d", width, height)
	}

	fw, fh := float64(width), float64(height)
	x, y, w, h := s.Bounds(fw, fh)
	b := Box{
		XMin:       float32(x / fw),
		XMax:       float32((x + w) / fw),
		YMin:       float32(y / fh),
		YMax:       float32((y + h) / fh),
		ClassLabel: FaceClassID,
		ClassName:  FaceClassName,
	}
	if err := b.check(); err != nil {
		return Box{}, err
	}

	return b, nil
}

// NormalizeAll normalises all shapes for an image of the given size.
func NormalizeAll(shapes []Shape, width, height int) ([]Box, error) {
	boxes := make([]Box, 0, len(shapes))
	for i, s := range shapes {
		b, err := Normalize(s, width, height)
		if err != nil {
			return nil, errors.Wrapf(err, "shape %d (%+v)", i, s)
		}
		boxes = append(boxes, b)
	}
	return boxes, nil
}
