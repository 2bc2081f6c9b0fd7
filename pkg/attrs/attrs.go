// Package attrs reads values back out of slog-style key-value attribute
// lists. The lifecycle builds one attribute list per audit log line and the
// structured audit event is extracted from it, so both always agree.
package attrs

// ExtractString returns the value following the given key in an alternating
// [key1, value1, key2, value2, ...] list. Keys or values of other types are
// skipped; a missing key yields "".
func ExtractString(attrs []any, key string) string {
	for i := 0; i+1 < len(attrs); i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := attrs[i+1].(string); ok {
			return v
		}
	}
	return ""
}
