package snapshot

import "regexp"

// Redactor scrubs volatile data from a normalized value tree before it is
// encoded for comparison.
type Redactor interface {
	Redact(v any) any
}

// KeyRedactor replaces the value of named keys anywhere in the tree.
type KeyRedactor struct {
	keys        map[string]bool
	replacement string
}

// RedactKeys replaces the values of the named keys with "<redacted>".
func RedactKeys(keys ...string) *KeyRedactor {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return &KeyRedactor{keys: set, replacement: "<redacted>"}
}

// WithReplacement overrides the placeholder value.
func (r *KeyRedactor) WithReplacement(replacement string) *KeyRedactor {
	r.replacement = replacement
	return r
}

// Redact implements Redactor.
func (r *KeyRedactor) Redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if r.keys[k] {
				out[k] = r.replacement
				continue
			}
			out[k] = r.Redact(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = r.Redact(elem)
		}
		return out
	default:
		return v
	}
}

// PatternRedactor rewrites string values matching a pattern.
type PatternRedactor struct {
	pattern     *regexp.Regexp
	replacement string
}

// RedactPattern replaces every match of pattern in string values.
func RedactPattern(pattern *regexp.Regexp, replacement string) *PatternRedactor {
	return &PatternRedactor{pattern: pattern, replacement: replacement}
}

var (
	uuidPattern = regexp.MustCompile(
		`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	timestampPattern = regexp.MustCompile(
		`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})`)
)

// RedactUUIDs replaces UUID substrings in string values with "<uuid>".
func RedactUUIDs() *PatternRedactor {
	return RedactPattern(uuidPattern, "<uuid>")
}

// RedactTimestamps replaces RFC 3339 timestamps in string values with
// "<timestamp>".
func RedactTimestamps() *PatternRedactor {
	return RedactPattern(timestampPattern, "<timestamp>")
}

// Redact implements Redactor.
func (r *PatternRedactor) Redact(v any) any {
	switch val := v.(type) {
	case string:
		return r.pattern.ReplaceAllString(val, r.replacement)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = r.Redact(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = r.Redact(elem)
		}
		return out
	default:
		return v
	}
}
