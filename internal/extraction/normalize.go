package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrUnrecognizedShape = errors.New("unrecognized ocr output shape")

// Detection is the shape in-process engines return. A nil Confidence means
// the engine produced no score.
type Detection struct {
	Text       string
	Confidence *float64
	BBox       []float64
}

// Shape names the strategy chosen for a list payload. Typed slices and
// predict dicts are recognized before list inspection.
type Shape string

const (
	ShapeEmpty   Shape = "empty"
	ShapePairs   Shape = "pairs"
	ShapeScored  Shape = "scored"
	ShapeStrings Shape = "strings"
	ShapeRecords Shape = "records"
	ShapePages   Shape = "pages"
)

const maxNestingDepth = 8

// Keys under which backends nest their actual detections.
var wrapperKeys = []string{"res", "result", "results", "data", "ocr_results", "elements", "detections", "pages"}

// Normalize maps a backend-native detection payload into a Result. Element
// order follows detection order. Bounding geometry is flattened: four values
// for an axis-aligned box, 2n values for an n-point polygon.
func Normalize(raw any) (Result, error) {
	elements, err := normalize(raw, 0)
	if err != nil {
		return Result{}, err
	}
	return NewResult(elements), nil
}

func detectListShape(items []any) Shape {
	if len(items) == 0 {
		return ShapeEmpty
	}
	// A list of nils is a run of empty pages, not a list of empty strings.
	if allItems(items, isStringOrNil) && !allItems(items, isNil) {
		return ShapeStrings
	}
	if allItems(items, isRecord) {
		return ShapeRecords
	}
	if allItems(items, isPairEntry) {
		return ShapePairs
	}
	if allItems(items, isScoredText) {
		return ShapeScored
	}
	if allItems(items, func(it any) bool {
		switch it.(type) {
		case nil, []any, map[string]any:
			return true
		}
		return false
	}) {
		return ShapePages
	}
	return ""
}

func normalize(raw any, depth int) ([]Element, error) {
	if depth > maxNestingDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrUnrecognizedShape, maxNestingDepth)
	}

	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []Element:
		return append([]Element(nil), v...), nil
	case []Detection:
		return fromTyped(v), nil
	case map[string]any:
		if _, ok := v["rec_texts"]; ok {
			return fromPredict(v), nil
		}
		if inner, ok := unwrap(v); ok {
			return normalize(inner, depth+1)
		}
		return nil, fmt.Errorf("%w: object without detections", ErrUnrecognizedShape)
	case []any:
		switch detectListShape(v) {
		case ShapeEmpty:
			return nil, nil
		case ShapeStrings:
			return fromStrings(v), nil
		case ShapeRecords:
			return fromRecords(v), nil
		case ShapePairs:
			return fromPairs(v), nil
		case ShapeScored:
			return fromScored(v), nil
		case ShapePages:
			var out []Element
			for _, page := range v {
				els, err := normalize(page, depth+1)
				if err != nil {
					return nil, err
				}
				out = append(out, els...)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrUnrecognizedShape, raw)
}

func fromTyped(dets []Detection) []Element {
	out := make([]Element, 0, len(dets))
	for _, d := range dets {
		conf := 1.0
		if d.Confidence != nil {
			conf = *d.Confidence
		}
		out = append(out, Element{Text: d.Text, Confidence: clamp01(conf), BBox: nonNilBox(d.BBox)})
	}
	return out
}

// fromPredict handles PaddleOCR's predict() result. An absent score array
// means every detection scored 1.0; a short or malformed one is zero-padded.
func fromPredict(m map[string]any) []Element {
	texts, _ := m["rec_texts"].([]any)

	rawScores, hasScores := m["rec_scores"]
	scores, _ := rawScores.([]any)

	var boxes []any
	for _, key := range []string{"rec_boxes", "rec_polys", "dt_polys"} {
		if b, ok := m[key].([]any); ok {
			boxes = b
			break
		}
	}

	out := make([]Element, 0, len(texts))
	for i, t := range texts {
		conf := 1.0
		if hasScores {
			conf = 0
			if i < len(scores) {
				conf, _ = toFloat(scores[i])
			}
		}
		var box []float64
		if i < len(boxes) {
			box = flattenBox(boxes[i])
		}
		out = append(out, Element{Text: toText(t), Confidence: clamp01(conf), BBox: nonNilBox(box)})
	}
	return out
}

func fromStrings(items []any) []Element {
	out := make([]Element, 0, len(items))
	for _, it := range items {
		out = append(out, Element{Text: toText(it), Confidence: 1, BBox: []float64{}})
	}
	return out
}

// fromPairs handles the legacy [bbox, [text, score]] entries and the flat
// [bbox, text, score] form.
func fromPairs(items []any) []Element {
	out := make([]Element, 0, len(items))
	for _, it := range items {
		entry := it.([]any)
		el := Element{Confidence: 1, BBox: nonNilBox(flattenBox(entry[0]))}
		switch rec := entry[1].(type) {
		case string:
			el.Text = rec
			if len(entry) > 2 {
				if conf, ok := toFloat(entry[2]); ok {
					el.Confidence = clamp01(conf)
				}
			}
		case []any:
			if len(rec) > 0 {
				el.Text = toText(rec[0])
			}
			if len(rec) > 1 {
				conf, _ := toFloat(rec[1])
				el.Confidence = clamp01(conf)
			}
		}
		out = append(out, el)
	}
	return out
}

// fromScored handles bare [text, score] entries.
func fromScored(items []any) []Element {
	out := make([]Element, 0, len(items))
	for _, it := range items {
		entry := it.([]any)
		conf, _ := toFloat(entry[1])
		out = append(out, Element{Text: toText(entry[0]), Confidence: clamp01(conf), BBox: []float64{}})
	}
	return out
}

func fromRecords(items []any) []Element {
	out := make([]Element, 0, len(items))
	for _, it := range items {
		rec := it.(map[string]any)
		el := Element{Text: toText(rec["text"]), Confidence: 1, BBox: []float64{}}
		for _, key := range []string{"confidence", "score"} {
			if v, ok := rec[key]; ok {
				conf, _ := toFloat(v)
				el.Confidence = clamp01(conf)
				break
			}
		}
		for _, key := range []string{"bbox", "box", "polygon"} {
			if v, ok := rec[key]; ok {
				el.BBox = nonNilBox(flattenBox(v))
				break
			}
		}
		out = append(out, el)
	}
	return out
}

func unwrap(m map[string]any) (any, bool) {
	for _, key := range wrapperKeys {
		if v, ok := m[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func isRecord(it any) bool {
	m, ok := it.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m["text"]
	return ok
}

func isPairEntry(it any) bool {
	entry, ok := it.([]any)
	if !ok || len(entry) < 2 {
		return false
	}
	if _, ok := entry[0].([]any); !ok {
		return false
	}
	switch rec := entry[1].(type) {
	case string:
		return true
	case []any:
		if len(rec) == 0 {
			return false
		}
		_, ok := rec[0].(string)
		return ok
	}
	return false
}

func isScoredText(it any) bool {
	entry, ok := it.([]any)
	if !ok || len(entry) != 2 {
		return false
	}
	if _, ok := entry[0].(string); !ok {
		return false
	}
	_, ok = toFloat(entry[1])
	return ok
}

func isNil(it any) bool { return it == nil }

func isStringOrNil(it any) bool {
	if it == nil {
		return true
	}
	_, ok := it.(string)
	return ok
}

func allItems(items []any, pred func(any) bool) bool {
	for _, it := range items {
		if !pred(it) {
			return false
		}
	}
	return true
}

func flattenBox(v any) []float64 {
	switch b := v.(type) {
	case []float64:
		return append([]float64(nil), b...)
	case []any:
		out := make([]float64, 0, len(b)*2)
		for _, p := range b {
			if f, ok := toFloat(p); ok {
				out = append(out, f)
				continue
			}
			out = append(out, flattenBox(p)...)
		}
		return out
	}
	return nil
}

func nonNilBox(b []float64) []float64 {
	if b == nil {
		return []float64{}
	}
	return b
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
