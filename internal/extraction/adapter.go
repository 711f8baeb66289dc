// Package extraction runs an OCR engine over a raster and normalizes whatever
// the engine returns into a single Result shape.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"dashlens/internal/imagedecode"
)

// ErrOCRUnavailable means no engine was initialized. Zero detections are not
// an error.
var ErrOCRUnavailable = errors.New("ocr backend is not initialized")

// Engine is an OCR backend. Detect returns the backend-native detection list;
// the Adapter is responsible for normalizing it.
type Engine interface {
	Name() string
	Detect(ctx context.Context, img image.Image) (any, error)
}

type Element struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

type Result struct {
	FullText string    `json:"full_text"`
	Elements []Element `json:"elements"`
}

// NewResult builds a Result whose FullText is the space-join of the element
// texts.
func NewResult(elements []Element) Result {
	if elements == nil {
		elements = []Element{}
	}
	texts := make([]string, len(elements))
	for i, el := range elements {
		texts[i] = el.Text
	}
	return Result{FullText: strings.Join(texts, " "), Elements: elements}
}

type Adapter struct {
	engine Engine
}

func New(engine Engine) *Adapter {
	return &Adapter{engine: engine}
}

func (a *Adapter) Ready() bool {
	return a != nil && a.engine != nil
}

func (a *Adapter) EngineName() string {
	if !a.Ready() {
		return ""
	}
	return a.engine.Name()
}

func (a *Adapter) Extract(ctx context.Context, raster imagedecode.Raster) (Result, error) {
	if !a.Ready() {
		return Result{}, ErrOCRUnavailable
	}
	if raster.Image == nil {
		return NewResult(nil), nil
	}

	raw, err := a.engine.Detect(ctx, raster.Image)
	if err != nil {
		return Result{}, fmt.Errorf("%s detect: %w", a.engine.Name(), err)
	}
	result, err := Normalize(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%s output: %w", a.engine.Name(), err)
	}
	return result, nil
}
