package synthesis

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	MaxKeyMetrics = 6
	MaxAlerts     = 10
	MaxListItems  = 3
	SnippetLength = 500
)

const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
	HealthUnknown  = "unknown"
)

// Analysis is either a StructuredAnalysis or an ErrorAnalysis.
type Analysis interface {
	Health() string
}

type Metric struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Status string `json:"status"`
	Trend  string `json:"trend"`
}

type Alert struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type StructuredAnalysis struct {
	PageTitle       string   `json:"page_title"`
	PrimaryPurpose  string   `json:"primary_purpose"`
	HealthStatus    string   `json:"health_status"`
	KeyMetrics      []Metric `json:"key_metrics"`
	Alerts          []Alert  `json:"alerts"`
	Charts          []string `json:"charts"`
	CriticalIssues  []string `json:"critical_issues"`
	KeyInsights     []string `json:"key_insights"`
	Recommendations []string `json:"recommendations"`
}

func (a StructuredAnalysis) Health() string { return a.HealthStatus }

// ErrorAnalysis is returned in place of a StructuredAnalysis when synthesis
// could not produce one. It carries truncated copies of the evidence.
type ErrorAnalysis struct {
	Error        string `json:"error"`
	PageTitle    string `json:"page_title"`
	HealthStatus string `json:"health_status"`
	OCRText      string `json:"ocr_text"`
	VLMAnalysis  string `json:"vlm_analysis"`
}

func (a ErrorAnalysis) Health() string { return a.HealthStatus }

func NewErrorAnalysis(reason, ocrText, caption string) ErrorAnalysis {
	return ErrorAnalysis{
		Error:        reason,
		PageTitle:    "Analysis Error",
		HealthStatus: HealthUnknown,
		OCRText:      Truncate(ocrText, SnippetLength),
		VLMAnalysis:  Truncate(caption, SnippetLength),
	}
}

// Truncate keeps at most n characters of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

var (
	healthValues   = []string{HealthHealthy, HealthWarning, HealthCritical, HealthUnknown}
	statusValues   = []string{"good", "warning", "critical", "normal"}
	trendValues    = []string{"increasing", "decreasing", "stable", "unknown"}
	severityValues = []string{"critical", "warning", "info"}
)

// normalize enforces the schema: enum coercion, list caps and empty (never
// nil) slices.
func (r rawAnalysis) normalize() StructuredAnalysis {
	out := StructuredAnalysis{
		PageTitle:       strings.TrimSpace(string(r.PageTitle)),
		PrimaryPurpose:  strings.TrimSpace(string(r.PrimaryPurpose)),
		HealthStatus:    oneOf(string(r.HealthStatus), healthValues, HealthUnknown),
		KeyMetrics:      make([]Metric, 0, min(len(r.KeyMetrics), MaxKeyMetrics)),
		Alerts:          make([]Alert, 0, min(len(r.Alerts), MaxAlerts)),
		Charts:          r.Charts.strings(0),
		CriticalIssues:  r.CriticalIssues.strings(MaxListItems),
		KeyInsights:     r.KeyInsights.strings(MaxListItems),
		Recommendations: r.Recommendations.strings(MaxListItems),
	}
	for _, m := range r.KeyMetrics {
		if len(out.KeyMetrics) == MaxKeyMetrics {
			break
		}
		name, value := strings.TrimSpace(string(m.Name)), strings.TrimSpace(string(m.Value))
		if name == "" && value == "" {
			continue
		}
		out.KeyMetrics = append(out.KeyMetrics, Metric{
			Name:   name,
			Value:  value,
			Status: oneOf(string(m.Status), statusValues, "normal"),
			Trend:  oneOf(string(m.Trend), trendValues, "unknown"),
		})
	}
	for _, a := range r.Alerts {
		if len(out.Alerts) == MaxAlerts {
			break
		}
		msg := strings.TrimSpace(string(a.Message))
		if msg == "" {
			continue
		}
		out.Alerts = append(out.Alerts, Alert{
			Severity: oneOf(string(a.Severity), severityValues, "info"),
			Message:  msg,
		})
	}
	return out
}

func oneOf(v string, allowed []string, fallback string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return fallback
}

// The raw* types accept the looser JSON models tend to produce: numbers where
// strings were asked for, a bare string instead of a list, strings instead of
// metric or alert objects.

type rawAnalysis struct {
	PageTitle       flexText    `json:"page_title"`
	PrimaryPurpose  flexText    `json:"primary_purpose"`
	HealthStatus    flexText    `json:"health_status"`
	KeyMetrics      []rawMetric `json:"key_metrics"`
	Alerts          []rawAlert  `json:"alerts"`
	Charts          flexList    `json:"charts"`
	CriticalIssues  flexList    `json:"critical_issues"`
	KeyInsights     flexList    `json:"key_insights"`
	Recommendations flexList    `json:"recommendations"`
}

type flexText string

func (t *flexText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = flexText(s)
	case data[0] == '{':
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		for _, key := range []string{"title", "name", "message", "text"} {
			if s, ok := obj[key].(string); ok {
				*t = flexText(s)
				return nil
			}
		}
		*t = flexText(compact(data))
	default:
		*t = flexText(compact(data))
	}
	return nil
}

type flexList []flexText

func (l *flexList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []flexText
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var single flexText
	if err := single.UnmarshalJSON(data); err != nil {
		return err
	}
	if single == "" {
		*l = nil
		return nil
	}
	*l = flexList{single}
	return nil
}

func (l flexList) strings(limit int) []string {
	out := make([]string, 0, len(l))
	for _, item := range l {
		if limit > 0 && len(out) == limit {
			break
		}
		if s := strings.TrimSpace(string(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type rawMetric struct {
	Name   flexText `json:"name"`
	Value  flexText `json:"value"`
	Status flexText `json:"status"`
	Trend  flexText `json:"trend"`
}

func (m *rawMetric) UnmarshalJSON(data []byte) error {
	if d := bytes.TrimSpace(data); len(d) > 0 && d[0] != '{' {
		*m = rawMetric{}
		return m.Name.UnmarshalJSON(d)
	}
	type plain rawMetric
	return json.Unmarshal(data, (*plain)(m))
}

type rawAlert struct {
	Severity flexText `json:"severity"`
	Message  flexText `json:"message"`
}

func (a *rawAlert) UnmarshalJSON(data []byte) error {
	if d := bytes.TrimSpace(data); len(d) > 0 && d[0] != '{' {
		*a = rawAlert{}
		return a.Message.UnmarshalJSON(d)
	}
	type plain rawAlert
	return json.Unmarshal(data, (*plain)(a))
}

func compact(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}
