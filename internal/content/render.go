package content

import "strings"

// Render re-serializes segments back into message text, re-adding fences around code blocks and
// bold markers around emphasized spans. Links are written as their original URL. For well-formed
// input, Render(Parse(s)) is equivalent to s, up to the explicit "plaintext" language on fences
// that didn't declare one.
func Render(segments []Segment) string {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		switch s.Type {
		case SegmentTypeCode:
			var sb strings.Builder
			sb.WriteString(fence)
			sb.WriteString(s.Language)
			sb.WriteString("\n")
			if s.Code != "" {
				sb.WriteString(s.Code)
				sb.WriteString("\n")
			}
			sb.WriteString(fence)
			lines = append(lines, sb.String())
		default:
			lines = append(lines, renderSpans(s.Spans))
		}
	}
	return strings.Join(lines, "\n")
}

func renderSpans(spans []Span) string {
	var sb strings.Builder
	bold := false
	for _, sp := range spans {
		if sp.Bold != bold {
			sb.WriteString(boldMarker)
			bold = sp.Bold
		}
		if sp.LinkTarget != "" {
			sb.WriteString(sp.LinkTarget)
			continue
		}
		sb.WriteString(sp.Text)
	}
	if bold {
		sb.WriteString(boldMarker)
	}
	return sb.String()
}
