package auditlog

import "unicode/utf8"

// MaxFieldLength is the longest detail value the log channel renders.
const MaxFieldLength = 1024

const ellipsis = "..."

// Truncate shortens s to at most limit runes, replacing the tail with "..." when cut.
// Counting runes keeps multi-byte characters intact.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - len(ellipsis)
	if keep <= 0 {
		return ellipsis[:limit]
	}
	runes := []rune(s)
	return string(runes[:keep]) + ellipsis
}

func truncateField(s string) string {
	return Truncate(s, MaxFieldLength)
}
