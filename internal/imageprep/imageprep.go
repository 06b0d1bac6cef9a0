// Package imageprep turns uploaded raster files into bounded JPEG payloads
// suitable for inline model requests.
package imageprep

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 2048
	DefaultQuality      = 80

	// OutputMIME is the content type of every prepared image.
	OutputMIME = "image/jpeg"
)

// ErrUnsupportedFormat is returned for content that is not jpeg, png or webp.
var ErrUnsupportedFormat = errors.New("unsupported image format")

var supportedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Options bounds the output image.
type Options struct {
	MaxDimension int
	Quality      int
}

func (o Options) withDefaults() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Result is a prepared image.
type Result struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Prepare decodes data, scales it down so that neither side exceeds
// MaxDimension and re-encodes it as JPEG. Images already inside the bound are
// re-encoded without resizing.
// Parameters:
//   - data: raw file contents.
//   - opts: output bounds; zero values use the defaults.
//
// Returns:
//   - *Result: JPEG bytes and final dimensions.
//   - error: ErrUnsupportedFormat for non-image content, or a decode/encode error.
func Prepare(data []byte, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	detected := mimetype.Detect(data)
	if !supportedMIME[detected.String()] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, detected.String())
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	w, h := Fit(img.Bounds().Dx(), img.Bounds().Dy(), opts.MaxDimension)
	if w != img.Bounds().Dx() || h != img.Bounds().Dy() {
		img = transform.Resize(img, w, h, transform.Lanczos)
	}

	var buf bytes.Buffer
	if err := imgio.JPEGEncoder(opts.Quality)(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &Result{Data: buf.Bytes(), MIME: OutputMIME, Width: w, Height: h}, nil
}

// Fit scales w x h proportionally so the longer side is at most max.
func Fit(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}

// DetectMIME returns the sniffed content type of data.
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}
