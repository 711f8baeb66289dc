package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dashlens/internal/extraction"
	"dashlens/internal/upstream/openai"
)

const DefaultSystemPrompt = `You are a dashboard analyst. You receive the text read from a dashboard or web page screenshot and, when available, a description of the screenshot written by a vision model. You return a single structured assessment of the page.

Output rules:
- Return ONLY a JSON object, with no surrounding prose and no code fences.
- Use only information present in the evidence. Do not invent metrics or alerts.
- When a field cannot be determined, use an empty string or an empty list.`

const schemaDescription = `{
  "page_title": "main heading or page title",
  "primary_purpose": "what this page is for, in one sentence",
  "health_status": "healthy" | "warning" | "critical" | "unknown",
  "key_metrics": [
    {"name": "metric name", "value": "value as shown", "status": "good" | "warning" | "critical" | "normal", "trend": "increasing" | "decreasing" | "stable" | "unknown"}
  ],
  "alerts": [
    {"severity": "critical" | "warning" | "info", "message": "alert text"}
  ],
  "charts": ["short description of each chart or visualization"],
  "critical_issues": ["issue"],
  "key_insights": ["insight"],
  "recommendations": ["recommendation"]
}`

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 2000
)

type ChatClient interface {
	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Outcome is always populated. Degraded is set when Analysis is an
// ErrorAnalysis, with Reason holding the same message.
type Outcome struct {
	Analysis Analysis
	Degraded bool
	Reason   string
	Usage    *TokenUsage
}

type Service struct {
	client    ChatClient
	model     string
	timeout   time.Duration
	maxTokens int
}

type Option func(*Service)

func WithMaxTokens(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// New accepts a nil client; the service then reports not ready and every
// Synthesize call yields an ErrorAnalysis.
func New(client ChatClient, model string, timeout time.Duration, opts ...Option) *Service {
	s := &Service{
		client:    client,
		model:     strings.TrimSpace(model),
		timeout:   timeout,
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

// Synthesize never fails: any upstream or parse problem is folded into an
// ErrorAnalysis carrying snippets of the evidence.
func (s *Service) Synthesize(ctx context.Context, ext extraction.Result, caption string) Outcome {
	if !s.Ready() {
		return degraded("synthesis backend not configured", ext.FullText, caption, nil)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	chatResp, err := s.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: defaultTemperature,
		MaxTokens:   s.maxTokens,
		Messages: []openai.ChatMessage{
			{Role: "system", Content: DefaultSystemPrompt},
			{Role: "user", Content: BuildUserMessage(ext, caption)},
		},
	})
	if err != nil {
		return degraded(fmt.Sprintf("synthesis request failed: %v", err), ext.FullText, caption, nil)
	}

	usage := convertUsage(chatResp.Usage)
	analysis, err := ParseAnalysis(chatResp.Content)
	if err != nil {
		return degraded(fmt.Sprintf("could not parse synthesis reply: %v", err), ext.FullText, caption, usage)
	}
	return Outcome{Analysis: analysis, Usage: usage}
}

// BuildUserMessage embeds both evidence sources and the target schema.
func BuildUserMessage(ext extraction.Result, caption string) string {
	ocrText := strings.TrimSpace(ext.FullText)
	if ocrText == "" {
		ocrText = "(no text detected)"
	}
	caption = strings.TrimSpace(caption)
	if caption == "" {
		caption = "(not available)"
	}

	var lines strings.Builder
	for _, el := range ext.Elements {
		fmt.Fprintf(&lines, "- %q (confidence %.2f)\n", el.Text, el.Confidence)
	}
	elements := strings.TrimRight(lines.String(), "\n")
	if elements == "" {
		elements = "(none)"
	}

	return fmt.Sprintf(`Analyze this dashboard screenshot using the evidence below.

OCR_TEXT:
%s

OCR_ELEMENTS (%d):
%s

VISUAL_DESCRIPTION:
%s

Respond with JSON matching this schema:
%s

Rules:
- At most %d key_metrics and %d alerts.
- At most %d entries in each of critical_issues, key_insights and recommendations.
- health_status is critical when any critical alert or issue is present.
- Return ONLY valid JSON, no other text.`,
		ocrText, len(ext.Elements), elements, caption, schemaDescription,
		MaxKeyMetrics, MaxAlerts, MaxListItems)
}

func degraded(reason, ocrText, caption string, usage *TokenUsage) Outcome {
	return Outcome{
		Analysis: NewErrorAnalysis(reason, ocrText, caption),
		Degraded: true,
		Reason:   reason,
		Usage:    usage,
	}
}

func convertUsage(u *openai.TokenUsage) *TokenUsage {
	if u == nil {
		return nil
	}
	return &TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
