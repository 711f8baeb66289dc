package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"dashlens/internal/captioning"
	"dashlens/internal/config"
	"dashlens/internal/extraction"
	"dashlens/internal/extraction/paddle"
	"dashlens/internal/extraction/tesseract"
	"dashlens/internal/synthesis"
	"dashlens/internal/upstream/openai"
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Options struct {
	HTTPClient *http.Client
	Observer   ObserverFunc
	Logger     *slog.Logger
}

// Init builds the registry in a fixed order: OCR, captioning, synthesis.
// An OCR failure is returned since the service cannot answer anything
// without it. Missing captioning or synthesis configuration only leaves
// that stage unavailable.
func Init(ctx context.Context, cfg config.Config, opts Options) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.UpstreamHTTPTimeout}
	}

	h := Handles{
		Capabilities: Capabilities{
			Captioning: cfg.Captioning.Enabled,
			Synthesis:  cfg.Synthesis.Enabled,
		},
	}

	ocr, probe, err := initOCR(ctx, cfg.OCR, httpClient, opts.Observer)
	if err != nil {
		return nil, fmt.Errorf("init ocr (%s): %w", cfg.OCR.Backend, err)
	}
	h.OCR = ocr
	h.OCRProbe = probe
	logger.Info("ocr backend ready", "engine", ocr.EngineName(), "languages", cfg.OCR.Languages)

	if cfg.Captioning.Enabled {
		if cfg.Captioning.Model == "" {
			logger.Warn("captioning enabled but CAPTION_MODEL is empty; captioning unavailable")
		} else {
			client := openai.New(cfg.Captioning.BaseURL, cfg.Captioning.APIKey, httpClient,
				openai.WithName("caption"),
				openai.WithObserver(openai.ObserverFunc(opts.Observer)),
			)
			h.Captioning = captioning.New(client, cfg.Captioning.Model, cfg.Captioning.Timeout,
				captioning.WithMaxSide(cfg.Captioning.MaxSide),
				captioning.WithMaxTokens(cfg.Captioning.MaxTokens),
			)
			logger.Info("captioning backend ready", "model", cfg.Captioning.Model, "base_url", cfg.Captioning.BaseURL)
		}
	}

	if cfg.Synthesis.Enabled {
		if cfg.Synthesis.APIKey == "" {
			logger.Warn("synthesis enabled but no API key is set; responses will carry an error analysis")
			h.Synthesis = synthesis.New(nil, cfg.Synthesis.Model, cfg.Synthesis.Timeout)
		} else {
			client := openai.New(cfg.Synthesis.BaseURL, cfg.Synthesis.APIKey, httpClient,
				openai.WithName("synthesis"),
				openai.WithObserver(openai.ObserverFunc(opts.Observer)),
			)
			h.Synthesis = synthesis.New(client, cfg.Synthesis.Model, cfg.Synthesis.Timeout,
				synthesis.WithMaxTokens(cfg.Synthesis.MaxTokens),
			)
			h.SynthesisProbe = client.CheckModels
			logger.Info("synthesis backend ready", "model", cfg.Synthesis.Model, "base_url", cfg.Synthesis.BaseURL)
		}
	}

	return New(h), nil
}

func initOCR(ctx context.Context, cfg config.OCRConfig, httpClient *http.Client, observer ObserverFunc) (*extraction.Adapter, func(context.Context) error, error) {
	switch cfg.Backend {
	case config.OCRBackendTesseract:
		engine, err := tesseract.New(tesseract.Languages(cfg.Languages))
		if err != nil {
			return nil, nil, err
		}
		return extraction.New(engine), nil, nil
	case config.OCRBackendPaddle:
		var lang string
		if len(cfg.Languages) > 0 {
			lang = cfg.Languages[0]
		}
		client := paddle.New(cfg.PaddleURL, httpClient,
			paddle.WithLanguage(lang),
			paddle.WithObserver(paddle.ObserverFunc(observer)),
		)
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			return nil, nil, err
		}
		return extraction.New(client), client.Ping, nil
	default:
		return nil, nil, fmt.Errorf("unknown ocr backend %q", cfg.Backend)
	}
}
