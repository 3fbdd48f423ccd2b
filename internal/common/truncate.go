package common

import "unicode/utf8"

// DefaultReasonLimit is the maximum number of characters kept from a failure
// reason when it is recorded in a run report.
const DefaultReasonLimit = 512

// TruncateReason trims reason to at most limit runes. A non-positive limit
// yields an empty string.
func TruncateReason(reason string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(reason) <= limit {
		return reason
	}
	runes := []rune(reason)
	return string(runes[:limit])
}
