package audit

// Redaction modes.
const (
	RedactionNone   = "none"
	RedactionStrict = "strict"
)

// Redacted replaces sensitive metadata values.
const Redacted = "[REDACTED]"

var sensitiveKeys = []string{"refreshToken", "token", "password", "mfaCode", "secrets"}

// Redact returns a shallow copy of metadata with sensitive keys replaced. In
// strict mode every nested map or slice value is replaced as well. The input
// map is not modified.
func Redact(metadata map[string]any, mode string) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	for _, key := range sensitiveKeys {
		if _, ok := out[key]; ok {
			out[key] = Redacted
		}
	}
	if mode == RedactionStrict {
		for k, v := range out {
			if isComposite(v) {
				out[k] = Redacted
			}
		}
	}
	return out
}

func isComposite(v any) bool {
	switch v.(type) {
	case map[string]any, map[string]string, []any, []string, []map[string]any:
		return true
	}
	return false
}
