package provider

import (
	"regexp"
	"strings"
)

// PatternVersion identifies DefaultPatterns. Bump it whenever the list changes so
// cached prompts built with older rules can be told apart in logs.
const PatternVersion = "v1"

const redacted = "[REDACTED]"

type RedactionPattern struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// DefaultPatterns are applied in order. Currency and dates run before names so
// that "R$ 1.200,00" is never split by the name rule.
var DefaultPatterns = []RedactionPattern{
	{
		Name:        "currency",
		Pattern:     regexp.MustCompile(`R\$\s?\d[\d.]*(?:,\d{1,2})?`),
		Replacement: "[VALOR]",
	},
	{
		Name:        "date",
		Pattern:     regexp.MustCompile(`\b(?:\d{1,2}/\d{1,2}(?:/\d{2,4})?|\d{4}-\d{2}-\d{2})\b`),
		Replacement: "[DATA]",
	},
	{
		Name:        "full_name",
		Pattern:     regexp.MustCompile(`\p{Lu}\p{Ll}+(?:\s+(?:d[aeo]s?\s+)?\p{Lu}\p{Ll}+)+`),
		Replacement: "[NOME]",
	},
}

var sensitiveKeyParts = []string{"name", "nome", "price", "preco", "preço", "valor"}

// Sanitize redacts personal data from text using DefaultPatterns.
func Sanitize(text string) string {
	return SanitizeWith(DefaultPatterns, text)
}

func SanitizeWith(patterns []RedactionPattern, text string) string {
	for _, p := range patterns {
		text = p.Pattern.ReplaceAllString(text, p.Replacement)
	}
	return text
}

// SanitizeData returns a copy of data with name and price like fields redacted.
// Nested maps are walked.
func SanitizeData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if isSensitiveKey(k) {
			out[k] = redacted
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = SanitizeData(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// SanitizeRequest returns a copy of req that is safe to send to a remote model.
func SanitizeRequest(req *Request) *Request {
	cp := *req
	cp.Message = Sanitize(req.Message)
	if req.Context != nil {
		ctx := *req.Context
		ctx.Data = SanitizeData(req.Context.Data)
		cp.Context = &ctx
	}
	return &cp
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}
