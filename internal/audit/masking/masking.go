// Package masking scrubs audit metadata before it is persisted.
package masking

import (
	"strings"
)

const (
	redacted  = "[redacted]"
	maskToken = "****"
)

type rule func(string) string

// Keys are matched case-insensitively. Suffix rules catch provider specific
// fields such as stripe_webhook_secret.
var (
	exactRules = map[string]rule{
		"email":                 Email,
		"contact_email":         Email,
		"participant_email":     Email,
		"transaction_id":        Suffix,
		"refund_transaction_id": Suffix,
		"provider_payment_id":   Suffix,
		"authorization":         Redact,
		"password":              Redact,
	}
	suffixRules = []struct {
		suffix string
		apply  rule
	}{
		{"_secret", Redact},
		{"_token", Redact},
		{"_api_key", Redact},
		{"_email", Email},
	}
)

func ruleFor(key string) rule {
	key = strings.ToLower(key)
	if r, ok := exactRules[key]; ok {
		return r
	}
	for _, s := range suffixRules {
		if strings.HasSuffix(key, s.suffix) {
			return s.apply
		}
	}
	return nil
}

// Metadata returns a masked copy of m. Blank keys are dropped and nested maps
// and slices are walked. The input is never modified.
func Metadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for key, value := range m {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = walk(ruleFor(key), value)
	}
	return out
}

func walk(r rule, value any) any {
	switch v := value.(type) {
	case string:
		if r == nil {
			return v
		}
		return r(v)
	case map[string]any:
		if r == nil {
			return Metadata(v)
		}
		nested := make(map[string]any, len(v))
		for key, item := range v {
			nested[key] = walk(r, item)
		}
		return nested
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = walk(r, item)
		}
		return items
	case []string:
		items := make([]string, len(v))
		for i, item := range v {
			items[i], _ = walk(r, item).(string)
		}
		return items
	default:
		return value
	}
}

// Redact replaces any non-empty value.
func Redact(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return redacted
}

// Suffix keeps an identifier's prefix up to the last underscore and its final
// four characters, e.g. "pi_3NabcdWXYZ" becomes "pi_****WXYZ".
func Suffix(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	prefix, rest := "", value
	if i := strings.LastIndexByte(value, '_'); i >= 0 && i < len(value)-1 {
		prefix, rest = value[:i+1], value[i+1:]
	}
	if len(rest) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + rest[len(rest)-4:]
}

// Email keeps the first character of the local part and the domain.
func Email(value string) string {
	value = strings.TrimSpace(value)
	local, domain, ok := strings.Cut(value, "@")
	if !ok || local == "" {
		return Redact(value)
	}
	return local[:1] + maskToken + "@" + domain
}
