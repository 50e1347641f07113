package lfwrecord

// The image record and its tensorflow.Example encoding.

import (
	"fmt"
	"math"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// The single object class of the dataset.
const (
	FaceClassID   = 1
	FaceClassName = "face"
)

// Feature keys of the object detection Example format.
const (
	keyHeight    = "image/height"
	keyWidth     = "image/width"
	keyFilename  = "image/filename"
	keySourceID  = "image/source_id"
	keyEncoded   = "image/encoded"
	keyFormat    = "image/format"
	keyXMin      = "image/object/bbox/xmin"
	keyXMax      = "image/object/bbox/xmax"
	keyYMin      = "image/object/bbox/ymin"
	keyYMax      = "image/object/bbox/ymax"
	keyClassText = "image/object/class/text"
	keyClassID   = "image/object/class/label"
)

// Box is a labelled object with coordinates given as fractions of the image width and height.
type Box struct {
	XMin, XMax, YMin, YMax float32
	ClassLabel             int64
	ClassName              string
}

// check returns a NumericIntegrity error if any coordinate is NaN.
func (b Box) check() error {
	for _, v := range [4]float32{b.XMin, b.XMax, b.YMin, b.YMax} {
		if math.IsNaN(float64(v)) {
			return integrity("NaN coordinate in box %+v", b)
		}
	}
	return nil
}

// ImageRecord is the data for a single image in the output dataset. It is not modified after
// construction.
type ImageRecord struct {
	Filename string // Used as the display name and the source ID.
	Encoded  []byte // The compressed image.
	Format   string // The compression format, e.g. "jpeg".
	Width    int
	Height   int
	Boxes    []Box
}

// NewImageRecord assembles an ImageRecord. It fails with a NumericIntegrity error if the image
// size is not positive or a box has a NaN coordinate.
func NewImageRecord(filename string, encoded []byte, format string, width, height int,
		boxes []Box) (*ImageRecord, error) {

	if width <= 0 || height <= 0 {
		return nil, &Error{Kind: NumericIntegrity, Path: filename,
			Err: errors.Errorf("invalid image size %dx%d", width, height)}
	}
	for _, b := range boxes {
		if err := b.check(); err != nil {
			return nil, withLocation(err, filename, 0)
		}
	}

	return &ImageRecord{
		Filename: filename,
		Encoded:  encoded,
		Format:   format,
		Width:    width,
		Height:   height,
		Boxes:    boxes,
	}, nil
}

// FeatureMap returns the feature map of the object detection Example for r.
func (r *ImageRecord) FeatureMap() map[string]interface{} {
	n := len(r.Boxes)
	xmins := make([]float32, n)
	xmaxs := make([]float32, n)
	ymins := make([]float32, n)
	ymaxs := make([]float32, n)
	classes := make([]string, n)
	classIDs := make([]int64, n)
	for i, b := range r.Boxes {
		xmins[i] = b.XMin
		xmaxs[i] = b.XMax
		ymins[i] = b.YMin
		ymaxs[i] = b.YMax
		classes[i] = b.ClassName
		classIDs[i] = b.ClassLabel
	}

	f := make(map[string]interface{}, 12)
	f[keyHeight] = r.Height
	f[keyWidth] = r.Width
	f[keyFilename] = r.Filename
	f[keySourceID] = r.Filename
	f[keyEncoded] = r.Encoded
	f[keyFormat] = r.Format
	f[keyXMin] = xmins
	f[keyXMax] = xmaxs
	f[keyYMin] = ymins
	f[keyYMax] = ymaxs
	f[keyClassText] = classes
	f[keyClassID] = classIDs

	return f
}

// Example converts r to a tensorflow.Example.
func (r *ImageRecord) Example() (e *tensorflow.Example, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", p)
		}
	}()

	return example.New(r.FeatureMap()), nil
}

// MarshalRecord serialises r as a tensorflow.Example protobuf.
func MarshalRecord(r *ImageRecord) ([]byte, error) {
	e, err := r.Example()
	if err != nil {
		return nil, err
	}
	return proto.Marshal(e)
}

// UnmarshalRecord decodes a serialised tensorflow.Example into an ImageRecord.
func UnmarshalRecord(data []byte) (*ImageRecord, error) {
	var e tensorflow.Example
	if err := proto.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(err, "failed to decode the example")
	}
	f := e.GetFeatures().GetFeature()

	bytesValue := func(key string) string {
		if v := bytesList(f[key]); len(v) > 0 {
			return string(v[0])
		}
		return ""
	}
	intValue := func(key string) int {
		if v := int64List(f[key]); len(v) > 0 {
			return int(v[0])
		}
		return 0
	}

	r := &ImageRecord{
		Filename: bytesValue(keyFilename),
		Format:   bytesValue(keyFormat),
		Width:    intValue(keyWidth),
		Height:   intValue(keyHeight),
	}
	if v := bytesList(f[keyEncoded]); len(v) > 0 {
		r.Encoded = v[0]
	}

	xmins := floatList(f[keyXMin])
	xmaxs := floatList(f[keyXMax])
	ymins := floatList(f[keyYMin])
	ymaxs := floatList(f[keyYMax])
	classes := bytesList(f[keyClassText])
	classIDs := int64List(f[keyClassID])

	n := len(xmins)
	for _, l := range []int{len(xmaxs), len(ymins), len(ymaxs), len(classes), len(classIDs)} {
		if l != n {
			return nil, errors.Errorf("inconsistent object feature lengths in %q", r.Filename)
		}
	}
	if n > 0 {
		r.Boxes = make([]Box, n)
		for i := range r.Boxes {
			r.Boxes[i] = Box{
				XMin:       xmins[i],
				XMax:       xmaxs[i],
				YMin:       ymins[i],
				YMax:       ymaxs[i],
				ClassLabel: classIDs[i],
				ClassName:  string(classes[i]),
			}
		}
	}

	return r, nil
}

// The list accessors return nil for missing features or features of another kind.

func bytesList(f *tensorflow.Feature) [][]byte {
	if l := f.GetBytesList(); l != nil {
		return l.Value
	}
	return nil
}

func int64List(f *tensorflow.Feature) []int64 {
	if l := f.GetInt64List(); l != nil {
		return l.Value
	}
	return nil
}

func floatList(f *tensorflow.Feature) []float32 {
	if l := f.GetFloatList(); l != nil {
		return l.Value
	}
	return nil
}
