//go:build tesseract
// +build tesseract

package tesseract

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"

	"dashlens/internal/extraction"
)

// Engine runs Tesseract through gosseract. gosseract clients are not safe for
// concurrent use, so every Detect call gets its own.
type Engine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

func New(languages []string) (*Engine, error) {
	e := &Engine{
		languages:     append([]string(nil), languages...),
		clientFactory: gosseract.NewClient,
	}
	c := e.clientFactory()
	defer c.Close()
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	return e, nil
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Detect(ctx context.Context, img image.Image) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var detections []extraction.Detection
	err := extraction.WithTempImage(img, func(path string) error {
		c := e.clientFactory()
		defer c.Close()

		if len(e.languages) > 0 {
			if err := c.SetLanguage(e.languages...); err != nil {
				return fmt.Errorf("set languages: %w", err)
			}
		}
		if err := c.SetImage(path); err != nil {
			return fmt.Errorf("set image: %w", err)
		}
		boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
		if err != nil {
			return fmt.Errorf("bounding boxes: %w", err)
		}
		detections = make([]extraction.Detection, 0, len(boxes))
		for _, b := range boxes {
			conf := b.Confidence / 100.0
			detections = append(detections, extraction.Detection{
				Text:       b.Word,
				Confidence: &conf,
				BBox: []float64{
					float64(b.Box.Min.X), float64(b.Box.Min.Y),
					float64(b.Box.Max.X), float64(b.Box.Max.Y),
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detections, nil
}
