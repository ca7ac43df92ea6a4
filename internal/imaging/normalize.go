package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
)

// ErrInvalidImage marks uploads that can never be recognized.
var ErrInvalidImage = errors.New("invalid image")

const (
	DefaultMaxDimension = 1600
	maxPixels           = 50_000_000
	jpegQuality         = 85
)

var supportedTypes = []string{"image/jpeg", "image/png", "image/gif"}

// DetectContentType sniffs the upload and returns its MIME type when it is
// one the pipeline can decode.
func DetectContentType(data []byte) (string, error) {
	mtype := mimetype.Detect(data)
	for _, supported := range supportedTypes {
		if mtype.Is(supported) {
			return supported, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported content type %s", ErrInvalidImage, mtype.String())
}

// Normalize decodes the image, bounds its longest side to maxDimension and
// re-encodes it as JPEG. The returned content type is always image/jpeg.
func Normalize(data []byte, maxDimension int) ([]byte, string, error) {
	if _, err := DetectContentType(data); err != nil {
		return nil, "", err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read image header: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, "", fmt.Errorf("%w: unsupported dimensions %dx%d", ErrInvalidImage, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to decode image: %v", ErrInvalidImage, err)
	}

	if maxDimension > 0 {
		img = fit(img, maxDimension)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// fit downscales img with Catmull-Rom resampling so that neither side
// exceeds limit, keeping the aspect ratio.
func fit(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}

	var dw, dh int
	if w >= h {
		dw, dh = limit, h*limit/w
	} else {
		dw, dh = w*limit/h, limit
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(dw, 1), max(dh, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
