package synthesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyReply   = errors.New("empty reply")
	ErrNoJSONObject = errors.New("no JSON object in reply")
)

// ParseAnalysis turns a model reply into a StructuredAnalysis. It first tries
// the fence-stripped reply as a whole, then the span from the first '{' to the
// last '}'. The span search is not nesting-aware.
func ParseAnalysis(reply string) (StructuredAnalysis, error) {
	text := StripCodeFence(reply)
	if text == "" {
		return StructuredAnalysis{}, ErrEmptyReply
	}

	analysis, err := decodeObject(text)
	if err == nil {
		return analysis, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return StructuredAnalysis{}, ErrNoJSONObject
	}
	analysis, err = decodeObject(text[start : end+1])
	if err != nil {
		return StructuredAnalysis{}, fmt.Errorf("embedded object: %w", err)
	}
	return analysis, nil
}

// StripCodeFence removes a leading ``` fence (with optional language tag) and
// a trailing ``` fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimLeft(s[3:], "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_+-")
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-3]
	}
	return strings.TrimSpace(s)
}

func decodeObject(text string) (StructuredAnalysis, error) {
	if !strings.HasPrefix(text, "{") {
		return StructuredAnalysis{}, ErrNoJSONObject
	}
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return StructuredAnalysis{}, err
	}
	return raw.normalize(), nil
}
