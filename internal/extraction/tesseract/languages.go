package tesseract

import "strings"

// PaddleOCR and EasyOCR style codes mapped to tessdata names.
var languageAliases = map[string]string{
	"en":      "eng",
	"ch":      "chi_sim",
	"chinese": "chi_sim",
	"ch_sim":  "chi_sim",
	"ch_tra":  "chi_tra",
	"de":      "deu",
	"german":  "deu",
	"fr":      "fra",
	"french":  "fra",
	"es":      "spa",
	"it":      "ita",
	"pt":      "por",
	"ru":      "rus",
	"ja":      "jpn",
	"japan":   "jpn",
	"ko":      "kor",
	"korean":  "kor",
}

// Languages translates configured OCR language codes to tessdata names.
// Unknown codes are passed through so that native tessdata names keep working.
func Languages(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if alias, ok := languageAliases[code]; ok {
			code = alias
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
