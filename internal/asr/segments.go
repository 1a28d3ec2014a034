package asr

import "strings"

// Assemble joins recognized segments into one transcript, merging
// continuation segments where a later segment extends an earlier one so
// partial-result overlap does not duplicate text.
func Assemble(segments []string) string {
	merged := make([]string, 0, len(segments))
	for _, segment := range segments {
		merged = appendSegment(merged, segment)
	}
	return strings.Join(merged, " ")
}

func appendSegment(segments []string, transcript string) []string {
	transcript = cleanSegment(transcript)
	if transcript == "" {
		return segments
	}
	if len(segments) == 0 {
		return append(segments, transcript)
	}

	last := segments[len(segments)-1]
	switch {
	case transcript == last:
		return segments
	case strings.HasPrefix(transcript, last):
		segments[len(segments)-1] = transcript
		return segments
	case strings.HasPrefix(last, transcript):
		return segments
	default:
		return append(segments, transcript)
	}
}

// cleanSegment normalizes transcript whitespace.
func cleanSegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return strings.Join(strings.Fields(raw), " ")
}
