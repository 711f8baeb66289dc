package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dashlens/internal/backend"
	"dashlens/internal/extraction"
	"dashlens/internal/imagedecode"
	"dashlens/internal/synthesis"
)

const (
	StageDecode     = "decode"
	StageExtract    = "extract"
	StageCaption    = "caption"
	StageSynthesize = "synthesize"
)

const (
	StatusOK       = "ok"
	StatusSkipped  = "skipped"
	StatusDegraded = "degraded"
	StatusDisabled = "disabled"
	statusFailed   = "failed"
)

type Observer interface {
	ObserveStage(stage, status string, duration time.Duration)
	IncDegraded(stage string)
	IncScreenshots()
}

type Input struct {
	Screenshots []string
}

type StageReport struct {
	Stage    string
	Status   string
	Duration time.Duration
	Detail   string
}

type Timings struct {
	Decode     time.Duration
	Extract    time.Duration
	Caption    time.Duration
	Synthesize time.Duration
	Total      time.Duration
}

type Result struct {
	ScreenshotsAnalyzed int
	Analysis            synthesis.Analysis
	Extraction          extraction.Result
	// OCROnly is set when synthesis is disabled for this deployment; the
	// analysis is then a plain OCR summary.
	OCROnly        bool
	Caption        string
	CaptionRan     bool
	ImageWidth     int
	ImageHeight    int
	Stages         []StageReport
	SynthesisUsage *synthesis.TokenUsage
	Timings        Timings
}

type Service struct {
	registry   *backend.Registry
	decodeOpts imagedecode.Options
	ocrTimeout time.Duration
	gate       chan struct{}
	observer   Observer
	logger     *slog.Logger
}

type Option func(*Service)

func WithMaxPixels(n int) Option {
	return func(s *Service) {
		s.decodeOpts.MaxPixels = n
	}
}

func WithOCRTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.ocrTimeout = d
	}
}

// WithConcurrency bounds how many requests run the extract and caption
// stages at once. Zero means unbounded.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.gate = make(chan struct{}, n)
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(registry *backend.Registry, opts ...Option) *Service {
	s := &Service{
		registry:   registry,
		decodeOpts: imagedecode.Options{MaxPixels: imagedecode.DefaultMaxPixels},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Process analyzes the first screenshot of the request. Stage failures after
// extraction degrade the response instead of failing it.
func (s *Service) Process(ctx context.Context, in Input) (Result, error) {
	started := time.Now()

	if len(in.Screenshots) == 0 {
		return Result{}, clientError("No screenshots provided", ErrNoScreenshots)
	}
	extractor := s.registry.Extractor()
	if extractor == nil || !extractor.Ready() {
		return Result{}, &Error{Kind: KindNotReady, Message: "OCR backend not initialized", Err: backend.ErrOCRNotReady}
	}
	if s.observer != nil {
		s.observer.IncScreenshots()
	}

	result := Result{ScreenshotsAnalyzed: len(in.Screenshots)}

	stageStarted := time.Now()
	raster, err := imagedecode.Decode(in.Screenshots[0], s.decodeOpts)
	result.Timings.Decode = time.Since(stageStarted)
	if err != nil {
		s.observe(StageDecode, statusFailed, result.Timings.Decode)
		return Result{}, clientError(decodeMessage(err), err)
	}
	result.ImageWidth, result.ImageHeight = raster.Width, raster.Height
	s.report(&result, StageDecode, StatusOK, result.Timings.Decode, raster.Format)

	release, err := s.acquire(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("wait for inference slot: %w", err)
	}
	defer release()

	stageStarted = time.Now()
	ext, err := s.extract(ctx, extractor, raster)
	result.Timings.Extract = time.Since(stageStarted)
	if err != nil {
		s.observe(StageExtract, statusFailed, result.Timings.Extract)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("extract: %w", ctxErr)
		}
		return Result{}, backendFault("OCR", err)
	}
	result.Extraction = ext
	s.report(&result, StageExtract, StatusOK, result.Timings.Extract, "")

	stageStarted = time.Now()
	result.Caption, result.CaptionRan = s.caption(ctx, &result, raster, ext.FullText)
	result.Timings.Caption = time.Since(stageStarted)
	release()
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("caption: %w", err)
	}

	stageStarted = time.Now()
	s.synthesize(ctx, &result, ext)
	result.Timings.Synthesize = time.Since(stageStarted)

	result.Timings.Total = time.Since(started)
	s.logger.Info("screenshot analyzed",
		"width", result.ImageWidth,
		"height", result.ImageHeight,
		"ocr_elements", len(ext.Elements),
		"caption_ran", result.CaptionRan,
		"ocr_only", result.OCROnly,
		"health_status", result.Analysis.Health(),
		"duration_ms", result.Timings.Total.Milliseconds(),
	)
	return result, nil
}

func (s *Service) extract(ctx context.Context, extractor backend.Extractor, raster imagedecode.Raster) (extraction.Result, error) {
	if s.ocrTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ocrTimeout)
		defer cancel()
	}
	return extractor.Extract(ctx, raster)
}

func (s *Service) caption(ctx context.Context, result *Result, raster imagedecode.Raster, ocrText string) (string, bool) {
	started := time.Now()
	if !s.registry.Capabilities().Captioning {
		s.report(result, StageCaption, StatusDisabled, 0, "")
		return "", false
	}
	captioner := s.registry.Captioner()
	if captioner == nil {
		s.report(result, StageCaption, StatusSkipped, 0, "captioning backend unavailable")
		return "", false
	}

	caption, err := captioner.Caption(ctx, raster, ocrText)
	if err != nil {
		s.logger.Warn("captioning failed, continuing without caption", "error", err)
		s.degrade(result, StageCaption, time.Since(started), err.Error())
		return "", false
	}
	s.report(result, StageCaption, StatusOK, time.Since(started), "")
	return caption, true
}

func (s *Service) synthesize(ctx context.Context, result *Result, ext extraction.Result) {
	started := time.Now()
	if !s.registry.Capabilities().Synthesis {
		result.OCROnly = true
		result.Analysis = OCRSummary(ext)
		s.report(result, StageSynthesize, StatusDisabled, 0, "")
		return
	}

	var out synthesis.Outcome
	if synth := s.registry.Synthesizer(); synth != nil {
		out = synth.Synthesize(ctx, ext, result.Caption)
	}
	if out.Analysis == nil {
		reason := "synthesis backend not configured"
		out = synthesis.Outcome{
			Analysis: synthesis.NewErrorAnalysis(reason, ext.FullText, result.Caption),
			Degraded: true,
			Reason:   reason,
		}
	}

	result.Analysis = out.Analysis
	result.SynthesisUsage = out.Usage
	if out.Degraded {
		s.logger.Warn("synthesis degraded to error analysis", "reason", out.Reason)
		s.degrade(result, StageSynthesize, time.Since(started), out.Reason)
		return
	}
	s.report(result, StageSynthesize, StatusOK, time.Since(started), "")
}

// OCRSummary is the analysis returned when synthesis is disabled.
func OCRSummary(ext extraction.Result) synthesis.StructuredAnalysis {
	return synthesis.StructuredAnalysis{
		PageTitle:       "OCR Analysis",
		PrimaryPurpose:  "Raw OCR text extraction",
		HealthStatus:    synthesis.HealthUnknown,
		KeyMetrics:      []synthesis.Metric{},
		Alerts:          []synthesis.Alert{},
		Charts:          []string{},
		CriticalIssues:  []string{},
		KeyInsights:     []string{fmt.Sprintf("Extracted %d text elements", len(ext.Elements))},
		Recommendations: []string{"Enable synthesis for structured insights"},
	}
}

func (s *Service) acquire(ctx context.Context) (func(), error) {
	if s.gate == nil {
		return func() {}, nil
	}
	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	released := false
	return func() {
		if !released {
			released = true
			<-s.gate
		}
	}, nil
}

func (s *Service) report(result *Result, stage, status string, d time.Duration, detail string) {
	result.Stages = append(result.Stages, StageReport{Stage: stage, Status: status, Duration: d, Detail: detail})
	s.observe(stage, status, d)
}

func (s *Service) degrade(result *Result, stage string, d time.Duration, detail string) {
	s.report(result, stage, StatusDegraded, d, truncate(detail, MaxFaultMessage))
	if s.observer != nil {
		s.observer.IncDegraded(stage)
	}
}

func (s *Service) observe(stage, status string, d time.Duration) {
	if s.observer != nil {
		s.observer.ObserveStage(stage, status, d)
	}
}

func decodeMessage(err error) string {
	switch {
	case errors.Is(err, imagedecode.ErrEmptyPayload):
		return "Screenshot payload is empty"
	case errors.Is(err, imagedecode.ErrTooManyPixels):
		return "Screenshot exceeds the maximum image size"
	default:
		return "Screenshot is not a decodable image"
	}
}
