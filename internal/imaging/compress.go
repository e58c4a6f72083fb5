// Package imaging shrinks uploaded images under a byte budget.
//
// The compressor decodes the source once, returns it untouched when it already fits, and
// otherwise walks a descending quality ladder at a capped width. When the ladder is exhausted
// a single fixed-parameter JPEG is produced as a best effort, even if it still overflows.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Defaults for the compression budget and quality ladder.
const (
	DefaultMaxBytes        = 100 * 1024
	DefaultInitialQuality  = 80
	DefaultQualityStep     = 10
	DefaultMinQuality      = 10
	DefaultMaxWidth        = 800
	DefaultFallbackWidth   = 400
	DefaultFallbackQuality = 60
	// DefaultMaxPixels matches the decode limit common image libraries apply by default.
	DefaultMaxPixels = 0x3FFF * 0x3FFF
)

var (
	// ErrDecode is returned when the input is not a decodable image.
	ErrDecode = errors.New("decode image")
	// ErrEncode is returned when a re-encode attempt fails for a reason other than size.
	ErrEncode = errors.New("encode image")
)

// Options configures the compressor.
type Options struct {
	MaxBytes        int
	InitialQuality  int
	QualityStep     int
	MinQuality      int
	MaxWidth        int
	FallbackWidth   int
	FallbackQuality int
	// MaxPixels bounds width*height of inputs so a small payload cannot force a huge decode.
	MaxPixels int
}

// DefaultOptions returns the stock budget: 100 KiB, quality 80 down to 10 in steps of 10 at
// most 800px wide, then a 400px quality-60 JPEG.
func DefaultOptions() Options {
	return Options{
		MaxBytes:        DefaultMaxBytes,
		InitialQuality:  DefaultInitialQuality,
		QualityStep:     DefaultQualityStep,
		MinQuality:      DefaultMinQuality,
		MaxWidth:        DefaultMaxWidth,
		FallbackWidth:   DefaultFallbackWidth,
		FallbackQuality: DefaultFallbackQuality,
		MaxPixels:       DefaultMaxPixels,
	}
}

// Result describes one compression.
type Result struct {
	// Data is the output payload. It aliases the input when Passthrough is set.
	Data []byte
	// MIMEType is the content type of Data.
	MIMEType string
	// Width and Height are the output dimensions.
	Width  int
	Height int
	// Attempts counts quality-loop encodes, excluding the fallback.
	Attempts int
	// Quality is the quality of the encode that produced Data; zero for passthrough.
	Quality     int
	Passthrough bool
	Fallback    bool
}

// Compressor is stateless and safe for concurrent use.
type Compressor struct {
	opts Options
}

// NewCompressor creates a Compressor. A zero QualityStep or MaxPixels is replaced by its
// default so the quality loop always terminates and decodes stay bounded.
func NewCompressor(opts Options) *Compressor {
	if opts.QualityStep <= 0 {
		opts.QualityStep = DefaultQualityStep
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	return &Compressor{opts: opts}
}

// Options returns the compressor configuration.
func (c *Compressor) Options() Options {
	return c.opts
}

// Compress reduces data to at most MaxBytes when achievable. The input slice is never written.
func (c *Compressor) Compress(data []byte, mimeType string) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty %dx%d image", ErrDecode, cfg.Width, cfg.Height)
	}
	if cfg.Width > c.opts.MaxPixels/cfg.Height {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, c.opts.MaxPixels)
	}

	src, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := src.Bounds()

	if len(data) <= c.opts.MaxBytes {
		detected, ok := decodedMIME[name]
		if !ok {
			detected = mimeType
		}
		return &Result{
			Data:        data,
			MIMEType:    detected,
			Width:       b.Dx(),
			Height:      b.Dy(),
			Passthrough: true,
		}, nil
	}

	format := OutputFormat(mimeType)
	scaled := scaleToWidth(src, c.opts.MaxWidth)

	res := &Result{}
	for q := c.opts.InitialQuality; q >= c.opts.MinQuality; q -= c.opts.QualityStep {
		out, err := encode(format, scaled, q)
		if err != nil {
			return nil, err
		}
		res.Attempts++
		if len(out) <= c.opts.MaxBytes {
			res.Data = out
			res.MIMEType = format.MIMEType()
			res.Quality = q
			res.Width, res.Height = dims(scaled)
			return res, nil
		}
	}

	small := scaleToWidth(src, c.opts.FallbackWidth)
	out, err := encode(FormatJPEG, small, c.opts.FallbackQuality)
	if err != nil {
		return nil, err
	}
	res.Data = out
	res.MIMEType = FormatJPEG.MIMEType()
	res.Quality = c.opts.FallbackQuality
	res.Fallback = true
	res.Width, res.Height = dims(small)
	return res, nil
}

// Compress runs a compressor with DefaultOptions and returns only the output bytes.
func Compress(data []byte, mimeType string) ([]byte, error) {
	res, err := NewCompressor(DefaultOptions()).Compress(data, mimeType)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func dims(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}
