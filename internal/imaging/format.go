package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
)

// Format is an output encoding produced by the compressor.
type Format int

const (
	FormatJPEG Format = iota
	FormatPNG
	FormatWEBP
)

// MIMEType returns the content type written for the format.
func (f Format) MIMEType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWEBP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatWEBP:
		return "webp"
	default:
		return "jpeg"
	}
}

// formatPolicy maps a declared source MIME type to the encoding used by the quality loop.
// Types missing from the table are normalised to JPEG.
var formatPolicy = map[string]Format{
	"image/png":  FormatPNG,
	"image/webp": FormatWEBP,
}

// OutputFormat returns the loop encoding for a declared MIME type.
func OutputFormat(mimeType string) Format {
	if f, ok := formatPolicy[mimeType]; ok {
		return f
	}
	return FormatJPEG
}

// decodedMIME maps image.Decode format names to content types.
var decodedMIME = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

type encodeFunc func(img image.Image, quality int) ([]byte, error)

var encoders = map[Format]encodeFunc{
	FormatJPEG: encodeJPEG,
	FormatPNG:  encodePNG,
	FormatWEBP: encodeWEBP,
}

func encode(f Format, img image.Image, quality int) ([]byte, error) {
	enc, ok := encoders[f]
	if !ok {
		return nil, fmt.Errorf("%w: no encoder for %s", ErrEncode, f)
	}
	out, err := enc(img, quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %s at quality %d: %v", ErrEncode, f, quality, err)
	}
	return out, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pngEncoder always spends the maximum compression effort.
var pngEncoder = png.Encoder{CompressionLevel: png.BestCompression}

func encodePNG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, quantize(img, paletteLevels(quality))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWEBP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(clampQuality(quality))}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
