package model

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type HealthModels struct {
	OCR        bool  `json:"ocr"`
	Captioning *bool `json:"captioning,omitempty"`
	Synthesis  *bool `json:"synthesis,omitempty"`
}

type HealthResponse struct {
	Status  string       `json:"status"`
	Service string       `json:"service"`
	Models  HealthModels `json:"models"`
}

type LivenessResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"service_name,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type AnalyzeRequest struct {
	Screenshots []string `json:"screenshots"`
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type StageReport struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Detail     string `json:"detail,omitempty"`
}

type PipelineTimings struct {
	Decode     int64 `json:"decode"`
	Extract    int64 `json:"extract"`
	Caption    int64 `json:"caption"`
	Synthesize int64 `json:"synthesize"`
	Total      int64 `json:"total"`
}

type PipelineDiagnostics struct {
	OCRElements       int             `json:"ocr_elements"`
	OCRTextLength     int             `json:"ocr_text_length"`
	VLMResponseLength *int            `json:"vlm_response_length,omitempty"`
	ImageWidth        int             `json:"image_width"`
	ImageHeight       int             `json:"image_height"`
	Stages            []StageReport   `json:"stages"`
	SynthesisUsage    *TokenUsage     `json:"synthesis_usage,omitempty"`
	TimingsMS         PipelineTimings `json:"timings_ms"`
}

// AnalyzeResponse.Analysis holds a synthesis.StructuredAnalysis or a
// synthesis.ErrorAnalysis; OCRResults is only set for OCR-only deployments.
type AnalyzeResponse struct {
	Success             bool                `json:"success"`
	ScreenshotsAnalyzed int                 `json:"screenshots_analyzed"`
	Analysis            any                 `json:"analysis"`
	Pipeline            PipelineDiagnostics `json:"pipeline"`
	OCRResults          any                 `json:"ocr_results,omitempty"`
}
