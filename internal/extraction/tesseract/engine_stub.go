//go:build !tesseract
// +build !tesseract

package tesseract

import (
	"context"
	"errors"
	"image"
)

var ErrNotCompiled = errors.New("tesseract support is not compiled in (build with -tags tesseract)")

type Engine struct{}

// New fails in builds without the tesseract tag so that selecting this
// backend stops startup instead of serving without OCR.
func New([]string) (*Engine, error) {
	return nil, ErrNotCompiled
}

func (*Engine) Name() string { return "tesseract" }

func (*Engine) Detect(context.Context, image.Image) (any, error) {
	return nil, ErrNotCompiled
}
