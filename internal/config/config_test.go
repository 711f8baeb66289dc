package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp keeps a developer's .env out of the test.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SYNTHESIS_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":5000" || cfg.ServiceName != "vision-analysis" {
		t.Fatalf("unexpected listener config: %+v", cfg)
	}
	if cfg.OCR.Backend != OCRBackendPaddle || cfg.OCR.PaddleURL != "http://127.0.0.1:8866" {
		t.Fatalf("unexpected OCR config: %+v", cfg.OCR)
	}
	if len(cfg.OCR.Languages) != 1 || cfg.OCR.Languages[0] != "en" {
		t.Fatalf("unexpected languages: %v", cfg.OCR.Languages)
	}
	if !cfg.Captioning.Enabled || cfg.Captioning.Model != "" || cfg.Captioning.MaxSide != 1024 || cfg.Captioning.MaxTokens != 512 {
		t.Fatalf("unexpected captioning config: %+v", cfg.Captioning)
	}
	if !cfg.Synthesis.Enabled || cfg.Synthesis.MaxTokens != 2000 || cfg.Synthesis.Timeout != 30*time.Second {
		t.Fatalf("unexpected synthesis config: %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.APIKey != "" {
		t.Fatalf("expected empty synthesis key, got %q", cfg.Synthesis.APIKey)
	}
	if cfg.MaxRequestBytes != 26214400 || cfg.UpstreamHTTPTimeout != 90*time.Second {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
}

func TestLoadFallsBackToAnthropicKey(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SYNTHESIS_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Synthesis.APIKey != "sk-ant-test" {
		t.Fatalf("expected fallback key, got %q", cfg.Synthesis.APIKey)
	}

	t.Setenv("SYNTHESIS_API_KEY", "explicit")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Synthesis.APIKey != "explicit" {
		t.Fatalf("expected explicit key to win, got %q", cfg.Synthesis.APIKey)
	}
}

func TestLoadNormalizesValues(t *testing.T) {
	chdirTemp(t)
	t.Setenv("OCR_BACKEND", " Tesseract ")
	t.Setenv("OCR_LANGUAGES", "eng, deu,,")
	t.Setenv("SYNTHESIS_BASE_URL", "https://example.test/v1/")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OCR.Backend != OCRBackendTesseract {
		t.Fatalf("unexpected backend %q", cfg.OCR.Backend)
	}
	if strings.Join(cfg.OCR.Languages, "+") != "eng+deu" {
		t.Fatalf("unexpected languages %v", cfg.OCR.Languages)
	}
	if cfg.Synthesis.BaseURL != "https://example.test/v1" {
		t.Fatalf("unexpected base url %q", cfg.Synthesis.BaseURL)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level %q", cfg.LogLevel)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CAPTION_MODEL=internvl2-2b\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Registers restoration of the original value before clearing it.
	t.Setenv("CAPTION_MODEL", "")
	os.Unsetenv("CAPTION_MODEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Captioning.Model != "internvl2-2b" {
		t.Fatalf("expected model from .env, got %q", cfg.Captioning.Model)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"unknown backend":         {"OCR_BACKEND", "easyocr"},
		"zero ocr timeout":        {"OCR_TIMEOUT_SECONDS", "0"},
		"negative concurrency":    {"INFERENCE_CONCURRENCY", "-1"},
		"empty model":             {"SYNTHESIS_MODEL", " "},
		"zero max tokens":         {"SYNTHESIS_MAX_TOKENS", "0"},
		"zero caption max tokens": {"CAPTION_MAX_TOKENS", "0"},
		"bad integer":             {"MAX_REQUEST_BYTES", "lots"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", kv[0], kv[1])
			}
		})
	}
}

func TestDisabledSynthesisSkipsItsValidation(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SYNTHESIS_ENABLED", "false")
	t.Setenv("SYNTHESIS_MODEL", " ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Synthesis.Enabled {
		t.Fatal("expected synthesis disabled")
	}
}
