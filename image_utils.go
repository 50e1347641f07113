package lfwrecord

import (
	"bytes"
	"image"
	_ "image/jpeg" // Register the decoders for image.DecodeConfig.
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// The encoding of all images written to records.
const recordFormat = "jpeg"

// encodedImage is a compressed image along with its decoded dimensions. SrcWidth and SrcHeight
// are the dimensions of the image as read from disk, before any resizing.
type encodedImage struct {
	Data   []byte
	Format string
	Width  int
	Height int

	SrcWidth  int
	SrcHeight int
}

// imageOptions controls the re-encoding of images.
type imageOptions struct {
	MaxSide     int // Downscale if the longer side exceeds this; zero disables resizing.
	JPEGQuality int
}

// loadImage reads the image at path. JPEGs within the size limit are passed through unchanged,
// all other images are decoded, resized if necessary and encoded as JPEG.
func loadImage(path string, opts imageOptions) (encodedImage, error) {
	data, err := readFile(path)
	if err != nil {
		return encodedImage{}, err
	}

	return prepareImage(path, data, opts)
}

func prepareImage(path string, data []byte, opts imageOptions) (encodedImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return encodedImage{}, errors.Wrapf(err, "failed to decode the image metadata of %q", path)
	}

	longer := cfg.Width
	if cfg.Height > longer {
		longer = cfg.Height
	}
	doResize := opts.MaxSide > 0 && longer > opts.MaxSide
	if format == recordFormat && !doResize {
		return encodedImage{
			Data:      data,
			Format:    format,
			Width:     cfg.Width,
			Height:    cfg.Height,
			SrcWidth:  cfg.Width,
			SrcHeight: cfg.Height,
		}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return encodedImage{}, errors.Wrapf(err, "failed to decode %q", path)
	}
	if doResize {
		img = imaging.Fit(img, opts.MaxSide, opts.MaxSide, imaging.Lanczos)
		klog.V(2).Infof("Resized %q from %dx%d to %dx%d", path, cfg.Width, cfg.Height,
			img.Bounds().Dx(), img.Bounds().Dy())
	}

	enc, err := encodeJPEG(img, opts.JPEGQuality)
	if err != nil {
		return encodedImage{}, errors.Wrapf(err, "failed to encode %q", path)
	}

	return encodedImage{
		Data:      enc,
		Format:    recordFormat,
		Width:     img.Bounds().Dx(),
		Height:    img.Bounds().Dy(),
		SrcWidth:  cfg.Width,
		SrcHeight: cfg.Height,
	}, nil
}

// encodeJPEG encodes img as JPEG with the given quality (clamped to [1, 100]).
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = 92
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
