package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	OCRBackendPaddle    = "paddle"
	OCRBackendTesseract = "tesseract"
)

type Config struct {
	ListenAddr           string
	ServiceName          string
	LogLevel             string
	MaxRequestBytes      int64
	MaxImagePixels       int64
	UpstreamHTTPTimeout  time.Duration
	InferenceConcurrency int

	OCR        OCRConfig
	Captioning CaptioningConfig
	Synthesis  SynthesisConfig
}

type OCRConfig struct {
	Backend   string
	PaddleURL string
	Languages []string
	Timeout   time.Duration
}

type CaptioningConfig struct {
	Enabled   bool
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	MaxSide   int
	MaxTokens int
}

type SynthesisConfig struct {
	Enabled   bool
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

type envConfig struct {
	ListenAddr                 string   `env:"LISTEN_ADDR" envDefault:":5000"`
	ServiceName                string   `env:"SERVICE_NAME" envDefault:"vision-analysis"`
	LogLevel                   string   `env:"LOG_LEVEL" envDefault:"info"`
	MaxRequestBytes            int64    `env:"MAX_REQUEST_BYTES" envDefault:"26214400"`
	MaxImagePixels             int64    `env:"MAX_IMAGE_PIXELS" envDefault:"40000000"`
	UpstreamHTTPTimeoutSeconds int      `env:"UPSTREAM_HTTP_TIMEOUT_SECONDS" envDefault:"90"`
	InferenceConcurrency       int      `env:"INFERENCE_CONCURRENCY" envDefault:"0"`
	OCRBackend                 string   `env:"OCR_BACKEND" envDefault:"paddle"`
	PaddleOCRURL               string   `env:"PADDLE_OCR_URL" envDefault:"http://127.0.0.1:8866"`
	OCRLanguages               []string `env:"OCR_LANGUAGES" envDefault:"en" envSeparator:","`
	OCRTimeoutSeconds          int      `env:"OCR_TIMEOUT_SECONDS" envDefault:"30"`
	CaptioningEnabled          bool     `env:"CAPTIONING_ENABLED" envDefault:"true"`
	CaptionBaseURL             string   `env:"CAPTION_BASE_URL" envDefault:"http://127.0.0.1:11434/v1"`
	CaptionAPIKey              string   `env:"CAPTION_API_KEY"`
	CaptionModel               string   `env:"CAPTION_MODEL"`
	CaptionTimeoutSeconds      int      `env:"CAPTION_TIMEOUT_SECONDS" envDefault:"60"`
	CaptionMaxSide             int      `env:"CAPTION_MAX_SIDE" envDefault:"1024"`
	CaptionMaxTokens           int      `env:"CAPTION_MAX_TOKENS" envDefault:"512"`
	SynthesisEnabled           bool     `env:"SYNTHESIS_ENABLED" envDefault:"true"`
	SynthesisBaseURL           string   `env:"SYNTHESIS_BASE_URL" envDefault:"https://api.anthropic.com/v1"`
	SynthesisAPIKey            string   `env:"SYNTHESIS_API_KEY"`
	AnthropicAPIKey            string   `env:"ANTHROPIC_API_KEY"`
	SynthesisModel             string   `env:"SYNTHESIS_MODEL" envDefault:"claude-3-5-haiku-20241022"`
	SynthesisTimeoutSeconds    int      `env:"SYNTHESIS_TIMEOUT_SECONDS" envDefault:"30"`
	SynthesisMaxTokens         int      `env:"SYNTHESIS_MAX_TOKENS" envDefault:"2000"`
}

// Load reads an optional .env file from the working directory, then the
// process environment. Variables already set in the environment win.
func Load() (Config, error) {
	_ = godotenv.Load()

	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	synthesisKey := strings.TrimSpace(raw.SynthesisAPIKey)
	if synthesisKey == "" {
		synthesisKey = strings.TrimSpace(raw.AnthropicAPIKey)
	}

	cfg := Config{
		ListenAddr:           strings.TrimSpace(raw.ListenAddr),
		ServiceName:          strings.TrimSpace(raw.ServiceName),
		LogLevel:             strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		MaxRequestBytes:      raw.MaxRequestBytes,
		MaxImagePixels:       raw.MaxImagePixels,
		UpstreamHTTPTimeout:  time.Duration(raw.UpstreamHTTPTimeoutSeconds) * time.Second,
		InferenceConcurrency: raw.InferenceConcurrency,
		OCR: OCRConfig{
			Backend:   strings.ToLower(strings.TrimSpace(raw.OCRBackend)),
			PaddleURL: trimURL(raw.PaddleOCRURL),
			Languages: cleanList(raw.OCRLanguages),
			Timeout:   time.Duration(raw.OCRTimeoutSeconds) * time.Second,
		},
		Captioning: CaptioningConfig{
			Enabled:   raw.CaptioningEnabled,
			BaseURL:   trimURL(raw.CaptionBaseURL),
			APIKey:    strings.TrimSpace(raw.CaptionAPIKey),
			Model:     strings.TrimSpace(raw.CaptionModel),
			Timeout:   time.Duration(raw.CaptionTimeoutSeconds) * time.Second,
			MaxSide:   raw.CaptionMaxSide,
			MaxTokens: raw.CaptionMaxTokens,
		},
		Synthesis: SynthesisConfig{
			Enabled:   raw.SynthesisEnabled,
			BaseURL:   trimURL(raw.SynthesisBaseURL),
			APIKey:    synthesisKey,
			Model:     strings.TrimSpace(raw.SynthesisModel),
			Timeout:   time.Duration(raw.SynthesisTimeoutSeconds) * time.Second,
			MaxTokens: raw.SynthesisMaxTokens,
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.ServiceName == "" {
		return errors.New("SERVICE_NAME must not be empty")
	}
	if c.MaxRequestBytes <= 0 {
		return errors.New("MAX_REQUEST_BYTES must be > 0")
	}
	if c.MaxImagePixels <= 0 {
		return errors.New("MAX_IMAGE_PIXELS must be > 0")
	}
	if c.UpstreamHTTPTimeout <= 0 {
		return errors.New("UPSTREAM_HTTP_TIMEOUT_SECONDS must be > 0")
	}
	if c.InferenceConcurrency < 0 {
		return errors.New("INFERENCE_CONCURRENCY must be >= 0")
	}

	switch c.OCR.Backend {
	case OCRBackendPaddle:
		if c.OCR.PaddleURL == "" {
			return errors.New("PADDLE_OCR_URL must not be empty")
		}
	case OCRBackendTesseract:
	default:
		return fmt.Errorf("OCR_BACKEND must be %q or %q, got %q", OCRBackendPaddle, OCRBackendTesseract, c.OCR.Backend)
	}
	if len(c.OCR.Languages) == 0 {
		return errors.New("OCR_LANGUAGES must not be empty")
	}
	if c.OCR.Timeout <= 0 {
		return errors.New("OCR_TIMEOUT_SECONDS must be > 0")
	}

	if c.Captioning.Enabled {
		if c.Captioning.BaseURL == "" {
			return errors.New("CAPTION_BASE_URL must not be empty when captioning is enabled")
		}
		if c.Captioning.Timeout <= 0 {
			return errors.New("CAPTION_TIMEOUT_SECONDS must be > 0")
		}
		if c.Captioning.MaxSide <= 0 {
			return errors.New("CAPTION_MAX_SIDE must be > 0")
		}
		if c.Captioning.MaxTokens <= 0 {
			return errors.New("CAPTION_MAX_TOKENS must be > 0")
		}
	}

	if c.Synthesis.Enabled {
		if c.Synthesis.BaseURL == "" {
			return errors.New("SYNTHESIS_BASE_URL must not be empty when synthesis is enabled")
		}
		if c.Synthesis.Model == "" {
			return errors.New("SYNTHESIS_MODEL must not be empty when synthesis is enabled")
		}
		if c.Synthesis.Timeout <= 0 {
			return errors.New("SYNTHESIS_TIMEOUT_SECONDS must be > 0")
		}
		if c.Synthesis.MaxTokens <= 0 {
			return errors.New("SYNTHESIS_MAX_TOKENS must be > 0")
		}
	}
	return nil
}

func trimURL(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
