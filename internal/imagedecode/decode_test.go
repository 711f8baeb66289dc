package imagedecode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodeAcceptsDataURIAndBareBase64(t *testing.T) {
	b64 := pngBase64(t, 4, 3)
	for name, payload := range map[string]string{
		"bare":     b64,
		"data-uri": "data:image/png;base64," + b64,
		"wrapped":  "data:image/png;base64," + b64[:10] + "\n" + b64[10:],
	} {
		r, err := Decode(payload, Options{})
		if err != nil {
			t.Fatalf("%s: Decode() error = %v", name, err)
		}
		if r.Width != 4 || r.Height != 3 {
			t.Fatalf("%s: unexpected size %dx%d", name, r.Width, r.Height)
		}
		if r.Format != "png" || r.ColorMode != "RGBA" {
			t.Fatalf("%s: unexpected metadata %q %q", name, r.Format, r.ColorMode)
		}
	}
}

func TestDecodeAcceptsUnpaddedBase64(t *testing.T) {
	b64 := strings.TrimRight(pngBase64(t, 2, 2), "=")
	if _, err := Decode(b64, Options{}); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
}

func TestDecodeRejectsInvalidPayloads(t *testing.T) {
	cases := map[string]string{
		"empty":      "   ",
		"not-base64": "%%%not base64%%%",
		"not-image":  base64.StdEncoding.EncodeToString([]byte("hello world, definitely not a png")),
		"text-uri":   "data:text/plain;base64,aGVsbG8=",
		"no-comma":   "data:image/png;base64",
	}
	for name, payload := range cases {
		_, err := Decode(payload, Options{})
		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			t.Fatalf("%s: expected *DecodeError, got %v", name, err)
		}
	}
}

func TestDecodeNonImageDataURIIsErrNotImage(t *testing.T) {
	_, err := Decode("data:application/pdf;base64,JVBERi0=", Options{})
	if !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected ErrNotImage, got %v", err)
	}
}

func TestDecodeEnforcesPixelLimit(t *testing.T) {
	_, err := Decode(pngBase64(t, 20, 20), Options{MaxPixels: 100})
	if !errors.Is(err, ErrTooManyPixels) {
		t.Fatalf("expected ErrTooManyPixels, got %v", err)
	}
}

func TestColorModeNames(t *testing.T) {
	if got := colorMode(color.GrayModel); got != "L" {
		t.Fatalf("gray: %q", got)
	}
	if got := colorMode(color.Palette{color.Black, color.White}); got != "P" {
		t.Fatalf("palette: %q", got)
	}
}
