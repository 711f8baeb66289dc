// Package imagedecode turns base64 screenshot payloads into in-memory rasters.
package imagedecode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const DefaultMaxPixels = 40_000_000

var (
	ErrEmptyPayload  = errors.New("empty image payload")
	ErrNotImage      = errors.New("data URI does not carry an image")
	ErrTooManyPixels = errors.New("image exceeds pixel limit")
)

// DecodeError reports a payload that is not valid base64 or not a decodable
// image.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode image: %s: %v", e.Reason, e.Err)
	}
	return "decode image: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Raster is a decoded screenshot. It is owned by the request that decoded it.
type Raster struct {
	Image     image.Image
	Width     int
	Height    int
	ColorMode string
	Format    string
}

type Options struct {
	MaxPixels int
}

func Decode(payload string, opts Options) (Raster, error) {
	raw, err := DecodeBase64(payload)
	if err != nil {
		return Raster{}, err
	}
	return DecodeBytes(raw, opts)
}

// DecodeBase64 strips an optional data URI prefix and decodes the remainder.
func DecodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, &DecodeError{Reason: "payload is empty", Err: ErrEmptyPayload}
	}

	if strings.HasPrefix(payload, "data:") {
		header, data, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, &DecodeError{Reason: "malformed data URI"}
		}
		mediaType := strings.ToLower(strings.TrimPrefix(header, "data:"))
		if !strings.HasPrefix(mediaType, "image/") {
			return nil, &DecodeError{Reason: "unsupported media type", Err: ErrNotImage}
		}
		payload = data
	}

	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, payload)

	enc := base64.StdEncoding
	if !strings.HasSuffix(payload, "=") && len(payload)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	raw, err := enc.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Err: err}
	}
	if len(raw) == 0 {
		return nil, &DecodeError{Reason: "payload is empty", Err: ErrEmptyPayload}
	}
	return raw, nil
}

func DecodeBytes(raw []byte, opts Options) (Raster, error) {
	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Raster{}, &DecodeError{Reason: "unrecognized image format", Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Raster{}, &DecodeError{Reason: "image has no pixels"}
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return Raster{}, &DecodeError{
			Reason: fmt.Sprintf("%dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxPixels),
			Err:    ErrTooManyPixels,
		}
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Raster{}, &DecodeError{Reason: "corrupt image data", Err: err}
	}
	bounds := img.Bounds()
	return Raster{
		Image:     img,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		ColorMode: colorMode(img.ColorModel()),
		Format:    format,
	}, nil
}

func colorMode(m color.Model) string {
	switch m {
	case color.RGBAModel, color.NRGBAModel:
		return "RGBA"
	case color.RGBA64Model, color.NRGBA64Model:
		return "RGBA64"
	case color.GrayModel:
		return "L"
	case color.Gray16Model:
		return "I;16"
	case color.YCbCrModel, color.NYCbCrAModel:
		return "YCbCr"
	case color.CMYKModel:
		return "CMYK"
	case color.AlphaModel, color.Alpha16Model:
		return "A"
	}
	if _, ok := m.(color.Palette); ok {
		return "P"
	}
	return "unknown"
}
