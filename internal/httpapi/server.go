package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"dashlens/internal/backend"
	"dashlens/internal/config"
	"dashlens/internal/model"
	"dashlens/internal/pipeline"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type PipelineService interface {
	Process(ctx context.Context, in pipeline.Input) (pipeline.Result, error)
}

type BackendStatus interface {
	Availability() backend.Availability
	CheckReady(ctx context.Context) error
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
}

type Dependencies struct {
	Pipeline       PipelineService
	Backends       BackendStatus
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	pipeline     PipelineService
	backends     BackendStatus
	metrics      MetricsObserver
	metricsRoute http.Handler
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
	statusCanceled   = 499
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Pipeline == nil || deps.Backends == nil {
		panic("httpapi: pipeline and backends are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		pipeline:     deps.Pipeline,
		backends:     deps.Backends,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Post("/analyze", s.handleAnalyze)
	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	return r
}

// handleHealth reports a flag for every stage the configuration enables,
// whether or not its backend has been initialized yet.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	avail := s.backends.Availability()

	models := model.HealthModels{OCR: avail.OCR}
	if s.cfg.Captioning.Enabled {
		models.Captioning = &avail.Captioning
	}
	if s.cfg.Synthesis.Enabled {
		models.Synthesis = &avail.Synthesis
	}
	writeJSON(w, http.StatusOK, model.HealthResponse{
		Status:  "healthy",
		Service: s.cfg.ServiceName,
		Models:  models,
	})
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.LivenessResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.backends.CheckReady(ctx); err != nil {
		s.logger.Warn("readiness check failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeJSON(w, http.StatusServiceUnavailable, model.ReadyResponse{
			OK:          false,
			ServiceName: s.cfg.ServiceName,
			Reason:      err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: s.cfg.ServiceName})
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	defer func() { _ = r.Body.Close() }()

	var req model.AnalyzeRequest
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}
	if err := ensureBodyFullyConsumed(decoder); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}

	result, err := s.pipeline.Process(r.Context(), pipeline.Input{Screenshots: req.Screenshots})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAnalyzeResponse(result))
}

func (s *server) handleJSONDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", fmt.Sprintf("request exceeds %d bytes", s.cfg.MaxRequestBytes))
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
}

func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "request failed"

	var pErr *pipeline.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		code = "timeout"
		message = "request timed out"
	case errors.Is(err, context.Canceled):
		status = statusCanceled
		code = "canceled"
		message = "request canceled"
	case errors.As(err, &pErr):
		message = pErr.Message
		code = string(pErr.Kind)
		switch pErr.Kind {
		case pipeline.KindClientError:
			status = http.StatusBadRequest
		case pipeline.KindNotReady:
			status = http.StatusServiceUnavailable
		case pipeline.KindBackendFault:
			status = http.StatusInternalServerError
		}
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "analyze failed",
		"request_id", requestIDFromContext(r.Context()),
		"status", status,
		"error", err,
	)
	s.writeError(w, r, status, code, message)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	rid := requestIDFromContext(r.Context())
	if rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Success:   false,
		Error:     message,
		Code:      code,
		RequestID: rid,
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func toAnalyzeResponse(res pipeline.Result) model.AnalyzeResponse {
	stages := make([]model.StageReport, 0, len(res.Stages))
	for _, st := range res.Stages {
		stages = append(stages, model.StageReport{
			Stage:      st.Stage,
			Status:     st.Status,
			DurationMS: st.Duration.Milliseconds(),
			Detail:     st.Detail,
		})
	}

	diag := model.PipelineDiagnostics{
		OCRElements:   len(res.Extraction.Elements),
		OCRTextLength: utf8.RuneCountInString(res.Extraction.FullText),
		ImageWidth:    res.ImageWidth,
		ImageHeight:   res.ImageHeight,
		Stages:        stages,
		TimingsMS: model.PipelineTimings{
			Decode:     res.Timings.Decode.Milliseconds(),
			Extract:    res.Timings.Extract.Milliseconds(),
			Caption:    res.Timings.Caption.Milliseconds(),
			Synthesize: res.Timings.Synthesize.Milliseconds(),
			Total:      res.Timings.Total.Milliseconds(),
		},
	}
	if res.CaptionRan {
		n := utf8.RuneCountInString(res.Caption)
		diag.VLMResponseLength = &n
	}
	if u := res.SynthesisUsage; u != nil {
		diag.SynthesisUsage = &model.TokenUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}

	resp := model.AnalyzeResponse{
		Success:             true,
		ScreenshotsAnalyzed: res.ScreenshotsAnalyzed,
		Analysis:            res.Analysis,
		Pipeline:            diag,
	}
	if res.OCROnly {
		resp.OCRResults = res.Extraction
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func ensureBodyFullyConsumed(decoder *json.Decoder) error {
	var extra any
	if err := decoder.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple JSON values")
		}
		return err
	}
	return nil
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func newRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
