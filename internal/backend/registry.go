// Package backend holds the process-wide inference handles. The Registry is
// built once at startup and never mutated, so it is safe to share between
// request goroutines.
package backend

import (
	"context"
	"errors"

	"dashlens/internal/extraction"
	"dashlens/internal/imagedecode"
	"dashlens/internal/synthesis"
)

var ErrOCRNotReady = errors.New("ocr backend not ready")

type Extractor interface {
	Ready() bool
	Extract(ctx context.Context, raster imagedecode.Raster) (extraction.Result, error)
}

type Captioner interface {
	Ready() bool
	Caption(ctx context.Context, raster imagedecode.Raster, ocrText string) (string, error)
}

type Synthesizer interface {
	Ready() bool
	Synthesize(ctx context.Context, ext extraction.Result, caption string) synthesis.Outcome
}

// Capabilities says which optional stages this deployment runs at all.
// A disabled stage is absent from /health; an enabled but unavailable stage
// is reported as false.
type Capabilities struct {
	Captioning bool
	Synthesis  bool
}

type Availability struct {
	OCR        bool
	Captioning bool
	Synthesis  bool
}

type Handles struct {
	OCR          Extractor
	Captioning   Captioner
	Synthesis    Synthesizer
	Capabilities Capabilities
	// Probes are run by CheckReady; a nil probe always passes.
	OCRProbe       func(ctx context.Context) error
	SynthesisProbe func(ctx context.Context) error
}

type Registry struct {
	h Handles
}

func New(h Handles) *Registry {
	return &Registry{h: h}
}

// Availability is a pure read; a nil Registry reports nothing available.
func (r *Registry) Availability() Availability {
	if r == nil {
		return Availability{}
	}
	return Availability{
		OCR:        r.h.OCR != nil && r.h.OCR.Ready(),
		Captioning: r.h.Capabilities.Captioning && r.h.Captioning != nil && r.h.Captioning.Ready(),
		Synthesis:  r.h.Capabilities.Synthesis && r.h.Synthesis != nil && r.h.Synthesis.Ready(),
	}
}

func (r *Registry) Capabilities() Capabilities {
	if r == nil {
		return Capabilities{}
	}
	return r.h.Capabilities
}

func (r *Registry) Extractor() Extractor {
	if r == nil {
		return nil
	}
	return r.h.OCR
}

// Captioner returns nil unless captioning is enabled and ready.
func (r *Registry) Captioner() Captioner {
	if !r.Availability().Captioning {
		return nil
	}
	return r.h.Captioning
}

// Synthesizer returns the synthesis handle whenever the capability is
// enabled, ready or not: an unconfigured synthesizer still answers with an
// error analysis.
func (r *Registry) Synthesizer() Synthesizer {
	if r == nil || !r.h.Capabilities.Synthesis {
		return nil
	}
	return r.h.Synthesis
}

// CheckReady backs the readiness endpoint. It fails when OCR is unavailable
// or when an enabled backend's probe fails.
func (r *Registry) CheckReady(ctx context.Context) error {
	if !r.Availability().OCR {
		return ErrOCRNotReady
	}
	if r.h.OCRProbe != nil {
		if err := r.h.OCRProbe(ctx); err != nil {
			return err
		}
	}
	if r.h.Capabilities.Synthesis && r.h.SynthesisProbe != nil {
		if err := r.h.SynthesisProbe(ctx); err != nil {
			return err
		}
	}
	return nil
}
