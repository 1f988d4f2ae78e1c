// Package auditlog redacts secret-shaped values out of audit entry details
// before they ever reach metadatastore.AuditRepo, so a leaked database
// backup never hands out plaintext API keys or bearer tokens.
package auditlog

import "strings"

const redactedPlaceholder = "[REDACTED]"

var sensitiveFieldSubstrings = []string{
	"password", "token", "secret", "api_key", "apikey", "authorization", "scopes_enc",
}

// Redact returns a copy of details with every key that looks secret-shaped
// replaced by a placeholder. Nested maps are redacted recursively; the
// input is never mutated.
func Redact(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}
	out := make(map[string]interface{}, len(details))
	for key, value := range details {
		switch {
		case isSensitiveField(key):
			out[key] = redactedPlaceholder
		default:
			if nested, ok := value.(map[string]interface{}); ok {
				out[key] = Redact(nested)
				continue
			}
			out[key] = value
		}
	}
	return out
}

func isSensitiveField(key string) bool {
	lower := strings.ToLower(key)
	for _, substr := range sensitiveFieldSubstrings {
		if strings.Contains(lower, substr) {
			return true
		}
	}
	return false
}
