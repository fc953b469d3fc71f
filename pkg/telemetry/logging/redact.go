package logging

import (
	"log/slog"
	"strings"
)

// redactedValue replaces secret-bearing attribute values.
const redactedValue = "[REDACTED]"

// secretKeys lists attribute keys whose values must never reach a log
// sink. Matching is case-insensitive on the final dotted segment.
var secretKeys = map[string]struct{}{
	"secret":        {},
	"api_key":       {},
	"apikey":        {},
	"authorization": {},
	"credential":    {},
	"token":         {},
	"password":      {},
}

// redactAttr is a slog ReplaceAttr hook that blanks secret values.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	key := a.Key
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	if _, ok := secretKeys[strings.ToLower(key)]; ok {
		a.Value = slog.StringValue(redactedValue)
	}
	return a
}
