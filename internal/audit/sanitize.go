package audit

import "strings"

// sensitiveTerms flags field names whose values must never be stored or
// logged. Matching is case-insensitive substring, so "currentPassword" and
// "x-api-key" are caught too.
var sensitiveTerms = []string{
	"password",
	"token",
	"secret",
	"authorization",
	"cookie",
	"api_key",
	"apikey",
	"ssn",
	"social_security",
	"credit_card",
	"creditcard",
	"card_number",
	"cvv",
	"private_key",
}

const redacted = "[REDACTED]"

// IsSensitiveField reports whether a field name matches the sensitive-term
// list.
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, term := range sensitiveTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// Sanitize returns a deep copy of value with every sensitive field redacted.
// Runs unconditionally before storage, including in detailed mode.
func Sanitize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			if IsSensitiveField(k) {
				out[k] = redacted
				continue
			}
			out[k] = Sanitize(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = Sanitize(inner)
		}
		return out
	default:
		return value
	}
}

// SanitizeMap is Sanitize specialized for the map payloads events carry.
func SanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Sanitize(m).(map[string]any)
}
