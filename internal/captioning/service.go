package captioning

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"dashlens/internal/imagedecode"
	"dashlens/internal/upstream/openai"
)

const (
	defaultMaxSide   = 1024
	defaultMaxTokens = 512
)

const promptTemplate = `Analyze this dashboard/webpage screenshot.

OCR extracted text:
%s

Based on the image and text, provide:
1. Page title or main heading
2. Primary purpose of this page
3. Key metrics visible (numbers, percentages, stats)
4. Charts or visualizations present
5. Any alerts, warnings, or error messages
6. Overall health status (healthy/warning/critical)

Be concise and focus on actionable insights.`

var ErrNoImage = errors.New("no image to caption")

type ChatClient interface {
	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Service struct {
	client    ChatClient
	model     string
	timeout   time.Duration
	maxSide   int
	maxTokens int
}

type Option func(*Service)

// WithMaxSide bounds the longest edge of the image sent upstream.
func WithMaxSide(px int) Option {
	return func(s *Service) {
		if px > 0 {
			s.maxSide = px
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

func New(client ChatClient, model string, timeout time.Duration, opts ...Option) *Service {
	s := &Service{
		client:    client,
		model:     strings.TrimSpace(model),
		timeout:   timeout,
		maxSide:   defaultMaxSide,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) Ready() bool {
	return s != nil && s.client != nil && s.model != ""
}

// Caption asks the vision model to describe the screenshot, grounded by the
// OCR text. The reply is returned as-is apart from surrounding whitespace.
func (s *Service) Caption(ctx context.Context, raster imagedecode.Raster, ocrText string) (string, error) {
	if raster.Image == nil {
		return "", ErrNoImage
	}
	dataURL, err := encodeDataURL(fit(raster.Image, s.maxSide))
	if err != nil {
		return "", err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.7,
		MaxTokens:   s.maxTokens,
		Messages: []openai.ChatMessage{{
			Role: "user",
			Content: []openai.ContentPart{
				openai.TextPart(BuildPrompt(ocrText)),
				openai.ImagePart(dataURL),
			},
		}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func BuildPrompt(ocrText string) string {
	ocrText = strings.TrimSpace(ocrText)
	if ocrText == "" {
		ocrText = "(no text detected)"
	}
	return fmt.Sprintf(promptTemplate, ocrText)
}

// fit scales img down so that neither edge exceeds maxSide. Smaller images are
// returned unchanged.
func fit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}
	scale := float64(maxSide) / float64(max(w, h))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func encodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
