// Package content decomposes raw message text into renderable segments: prose lines with inline
// bold spans and links, and fenced code blocks.
package content

// SegmentType represents the type of a parsed segment.
type SegmentType string

const (
	// SegmentTypeText represents one line of prose.
	SegmentTypeText SegmentType = "text"
	// SegmentTypeCode represents one fenced code block.
	SegmentTypeCode SegmentType = "code"

	// DefaultLanguage is the language of a code block whose fence doesn't declare one.
	DefaultLanguage = "plaintext"
	// RunnableLanguage is the only language the code sandbox accepts.
	RunnableLanguage = "python"

	fence = "```"
)

// Segment is one unit of parsed content with its type.
type Segment struct {
	Type SegmentType

	// Spans would be filled if Type is SegmentTypeText. A blank line yields no spans.
	Spans []Span

	// Language would be filled if Type is SegmentTypeCode.
	Language string
	// Code would be filled if Type is SegmentTypeCode. It holds the interior lines of the block
	// joined by "\n".
	Code string
	// Index would be filled if Type is SegmentTypeCode. It is the zero-based position of the block
	// among the code segments of a single Parse call.
	Index int
	// Output holds the execution result attached by WithOutputs, valid only if HasOutput is true.
	Output    string
	HasOutput bool
}

// Span is a run of inline text sharing the same emphasis and link target.
type Span struct {
	Text string
	Bold bool
	// LinkTarget is the original URL when the span is a link, empty otherwise.
	LinkTarget string
}

// Runnable reports whether s is a code segment the sandbox is able to execute.
func (s Segment) Runnable() bool {
	return s.Type == SegmentTypeCode && s.Language == RunnableLanguage
}

// WithOutputs returns a copy of segments where every code segment whose index has an entry in
// outputs carries that output. The input slice is left untouched.
func WithOutputs(segments []Segment, outputs map[int]string) []Segment {
	res := make([]Segment, len(segments))
	copy(res, segments)
	for i := range res {
		if res[i].Type != SegmentTypeCode {
			continue
		}
		out, ok := outputs[res[i].Index]
		if !ok {
			continue
		}
		res[i].Output = out
		res[i].HasOutput = true
	}
	return res
}
