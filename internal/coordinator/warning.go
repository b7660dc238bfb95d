package coordinator

import "strings"

// WarningMarker prefixes operator-facing warnings embedded in coordinator replies.
const WarningMarker = "Warning:"

// ExtractWarning returns the text following the first WarningMarker in body,
// up to the next marker, with surrounding whitespace and quotes removed.
func ExtractWarning(body string) (string, bool) {
	parts := strings.Split(body, WarningMarker)
	if len(parts) < 2 {
		return "", false
	}
	msg := strings.Trim(strings.TrimSpace(parts[1]), `"`)
	return msg, true
}
