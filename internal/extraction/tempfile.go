package extraction

import (
	"fmt"
	"image"
	"image/png"
	"os"
)

// WithTempImage writes img to a temporary PNG file, calls fn with its path and
// removes the file afterwards, including when fn fails or panics. The path must
// not be retained past fn.
func WithTempImage(img image.Image, fn func(path string) error) error {
	f, err := os.CreateTemp("", "dashlens-ocr-*.png")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()

	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp image: %w", err)
	}
	return fn(path)
}
