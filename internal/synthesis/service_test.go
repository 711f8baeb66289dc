package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dashlens/internal/extraction"
	"dashlens/internal/upstream/openai"
)

type fakeChatClient struct {
	request openai.ChatCompletionRequest
	resp    openai.ChatCompletionResponse
	err     error
	calls   int
}

func (f *fakeChatClient) ChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.request = req
	return f.resp, f.err
}

func revenueExtraction() extraction.Result {
	return extraction.NewResult([]extraction.Element{{Text: "Revenue: $42K", Confidence: 0.95, BBox: []float64{1, 2, 3, 4}}})
}

func TestSynthesizeBuildsPromptAndReturnsUsage(t *testing.T) {
	client := &fakeChatClient{resp: openai.ChatCompletionResponse{
		Content: "```json\n{\"page_title\":\"Billing\",\"health_status\":\"Healthy\",\"key_metrics\":[{\"name\":\"Revenue\",\"value\":42000,\"status\":\"good\",\"trend\":\"up\"}]}\n```",
		Usage:   &openai.TokenUsage{PromptTokens: 300, CompletionTokens: 40, TotalTokens: 340},
	}}
	svc := New(client, "claude-test", 2*time.Second)

	out := svc.Synthesize(context.Background(), revenueExtraction(), "A billing dashboard.")
	if out.Degraded {
		t.Fatalf("unexpected degraded outcome: %s", out.Reason)
	}
	analysis, ok := out.Analysis.(StructuredAnalysis)
	if !ok {
		t.Fatalf("expected StructuredAnalysis, got %T", out.Analysis)
	}
	if analysis.PageTitle != "Billing" || analysis.HealthStatus != HealthHealthy {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}
	if len(analysis.KeyMetrics) != 1 || analysis.KeyMetrics[0].Value != "42000" || analysis.KeyMetrics[0].Trend != "unknown" {
		t.Fatalf("unexpected metrics: %+v", analysis.KeyMetrics)
	}
	if out.Usage == nil || out.Usage.TotalTokens != 340 {
		t.Fatalf("expected usage, got %+v", out.Usage)
	}

	if client.request.Model != "claude-test" || client.request.Temperature != 0.3 || client.request.MaxTokens != 2000 {
		t.Fatalf("unexpected request: %+v", client.request)
	}
	if len(client.request.Messages) != 2 {
		t.Fatalf("unexpected message count: %d", len(client.request.Messages))
	}
	user, _ := client.request.Messages[1].Content.(string)
	for _, want := range []string{"Revenue: $42K", "A billing dashboard.", "\"key_metrics\"", "0.95"} {
		if !strings.Contains(user, want) {
			t.Fatalf("user message missing %q:\n%s", want, user)
		}
	}
}

func TestSynthesizeWithoutClientDegrades(t *testing.T) {
	svc := New(nil, "claude-test", time.Second)
	if svc.Ready() {
		t.Fatal("service without client must not be ready")
	}
	out := svc.Synthesize(context.Background(), revenueExtraction(), "")
	ea, ok := out.Analysis.(ErrorAnalysis)
	if !ok || !out.Degraded {
		t.Fatalf("expected degraded ErrorAnalysis, got %+v", out)
	}
	if ea.PageTitle != "Analysis Error" || ea.HealthStatus != HealthUnknown || ea.OCRText != "Revenue: $42K" {
		t.Fatalf("unexpected error analysis: %+v", ea)
	}
}

func TestSynthesizeUpstreamFailureDegrades(t *testing.T) {
	client := &fakeChatClient{err: errors.New("overloaded")}
	out := New(client, "m", time.Second).Synthesize(context.Background(), revenueExtraction(), "caption")
	ea, ok := out.Analysis.(ErrorAnalysis)
	if !ok || !strings.Contains(ea.Error, "overloaded") {
		t.Fatalf("expected upstream error in analysis, got %+v", out.Analysis)
	}
	if ea.VLMAnalysis != "caption" {
		t.Fatalf("expected caption snippet, got %q", ea.VLMAnalysis)
	}
}

func TestSynthesizeUnparseableReplyDegrades(t *testing.T) {
	client := &fakeChatClient{resp: openai.ChatCompletionResponse{Content: "I cannot help with that."}}
	out := New(client, "m", time.Second).Synthesize(context.Background(), revenueExtraction(), "")
	if !out.Degraded {
		t.Fatalf("expected degraded outcome, got %+v", out)
	}
	if _, ok := out.Analysis.(ErrorAnalysis); !ok {
		t.Fatalf("expected ErrorAnalysis, got %T", out.Analysis)
	}
}

func TestErrorAnalysisTruncatesSnippets(t *testing.T) {
	long := strings.Repeat("é", 800)
	ea := NewErrorAnalysis("x", long, long)
	if n := len([]rune(ea.OCRText)); n != SnippetLength {
		t.Fatalf("ocr snippet length = %d", n)
	}
	if n := len([]rune(ea.VLMAnalysis)); n != SnippetLength {
		t.Fatalf("vlm snippet length = %d", n)
	}
}

func TestBuildUserMessagePlaceholders(t *testing.T) {
	msg := BuildUserMessage(extraction.NewResult(nil), "  ")
	if !strings.Contains(msg, "(no text detected)") || !strings.Contains(msg, "(not available)") {
		t.Fatalf("missing placeholders:\n%s", msg)
	}
}
