package content

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	boldMarker = "**"
	schemeSep  = "://"
)

// Parse splits text into an ordered sequence of segments. The scan is line based: a line starting
// with a fence marker opens or closes a code block, lines inside a block are kept verbatim, and every
// other line becomes its own text segment with inline bold spans and links resolved.
//
// A code block left open at the end of the input is still emitted. Code indexes count code segments
// only, starting at zero, and are stable for identical input.
func Parse(text string) []Segment {
	if text == "" {
		return nil
	}

	var (
		segments []Segment
		code     []string
		language string
		inFence  bool
		codeIdx  int
	)

	flush := func() {
		segments = append(segments, Segment{
			Type:     SegmentTypeCode,
			Language: language,
			Code:     strings.Join(code, "\n"),
			Index:    codeIdx,
		})
		codeIdx++
		code = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, fence) {
			if inFence {
				flush()
				inFence = false
				continue
			}
			language = fenceLanguage(line)
			inFence = true
			continue
		}

		if inFence {
			code = append(code, line)
			continue
		}

		segments = append(segments, Segment{
			Type:  SegmentTypeText,
			Spans: parseLine(line),
		})
	}

	if inFence {
		flush()
	}

	return segments
}

// fenceLanguage returns the alphanumeric run right after the fence marker.
func fenceLanguage(line string) string {
	rest := line[len(fence):]
	n := 0
	for n < len(rest) {
		r, size := utf8.DecodeRuneInString(rest[n:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		n += size
	}
	if n == 0 {
		return DefaultLanguage
	}
	return rest[:n]
}

type piece struct {
	text string
	url  bool
}

// parseLine resolves the inline constructs of a prose line. URL tokens are cut out first; bold
// markers in the remaining text then toggle emphasis across the whole line, so a link between two
// markers is bold too. A marker without a partner is kept as literal text.
func parseLine(line string) []Span {
	pieces := splitURLs(line)

	markers := 0
	for _, p := range pieces {
		if !p.url {
			markers += strings.Count(p.text, boldMarker)
		}
	}
	paired := markers - markers%2

	var (
		spans []Span
		sb    strings.Builder
		bold  bool
	)
	emit := func() {
		if sb.Len() == 0 {
			return
		}
		spans = append(spans, Span{Text: sb.String(), Bold: bold})
		sb.Reset()
	}

	for _, p := range pieces {
		if p.url {
			emit()
			spans = append(spans, linkSpan(p.text, bold))
			continue
		}

		rest := p.text
		for {
			i := strings.Index(rest, boldMarker)
			if i < 0 || paired == 0 {
				sb.WriteString(rest)
				break
			}
			sb.WriteString(rest[:i])
			emit()
			bold = !bold
			paired--
			rest = rest[i+len(boldMarker):]
		}
	}
	emit()

	return spans
}

// splitURLs cuts line into alternating plain text and URL pieces. A URL is a scheme of letters and
// digits, the "://" separator and a non-empty run of characters up to whitespace, a closing
// parenthesis or a bold marker.
func splitURLs(line string) []piece {
	var pieces []piece
	last, i := 0, 0

	for {
		j := strings.Index(line[i:], schemeSep)
		if j < 0 {
			break
		}
		sep := i + j

		start := sep
		for start > last && isSchemeByte(line[start-1]) {
			start--
		}
		for start < sep && !isASCIILetter(line[start]) {
			start++
		}

		end := sep + len(schemeSep)
		for end < len(line) {
			if strings.HasPrefix(line[end:], boldMarker) {
				break
			}
			r, size := utf8.DecodeRuneInString(line[end:])
			if unicode.IsSpace(r) || r == ')' {
				break
			}
			end += size
		}

		if start == sep || end == sep+len(schemeSep) {
			i = sep + len(schemeSep)
			continue
		}

		if start > last {
			pieces = append(pieces, piece{text: line[last:start]})
		}
		pieces = append(pieces, piece{text: line[start:end], url: true})
		last, i = end, end
	}

	if last < len(line) {
		pieces = append(pieces, piece{text: line[last:]})
	}
	return pieces
}

func linkSpan(raw string, bold bool) Span {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return Span{Text: raw, Bold: bold}
	}
	return Span{
		Text:       strings.TrimPrefix(u.Hostname(), "www."),
		Bold:       bold,
		LinkTarget: raw,
	}
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isSchemeByte(b byte) bool {
	return isASCIILetter(b) || (b >= '0' && b <= '9')
}
