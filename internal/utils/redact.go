// internal/utils/redact.go
package utils

import "strings"

var secretKeyHints = []string{"token", "api_key", "apikey", "secret", "password", "authorization"}

// IsSecretKey reports whether a config or log field name holds a credential.
func IsSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, hint := range secretKeyHints {
		if strings.Contains(k, hint) {
			return true
		}
	}
	return false
}

// MaskSecret hides all but the last four characters. Short values are fully masked.
func MaskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// RedactConfig returns a copy of cfg with secret values masked.
func RedactConfig(cfg map[string]string) map[string]string {
	out := make(map[string]string, len(cfg))
	for k, v := range cfg {
		if IsSecretKey(k) {
			v = MaskSecret(v)
		}
		out[k] = v
	}
	return out
}

// ScrubSecrets removes every occurrence of the given secrets from s.
func ScrubSecrets(s string, secrets ...string) string {
	for _, secret := range secrets {
		if len(secret) >= 4 {
			s = strings.ReplaceAll(s, secret, "[redacted]")
		}
	}
	return s
}
