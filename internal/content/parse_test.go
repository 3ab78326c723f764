package content_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MegaGrindStone/ollama-web-ui/internal/content"
)

func codeSegments(segments []content.Segment) []content.Segment {
	var res []content.Segment
	for _, s := range segments {
		if s.Type == content.SegmentTypeCode {
			res = append(res, s)
		}
	}
	return res
}

func TestParse_BoldSplitting(t *testing.T) {
	segments := content.Parse("a **b** c")

	require.Len(t, segments, 1)
	assert.Equal(t, content.SegmentTypeText, segments[0].Type)
	assert.Equal(t, []content.Span{
		{Text: "a "},
		{Text: "b", Bold: true},
		{Text: " c"},
	}, segments[0].Spans)
}

func TestParse_UnpairedBoldMarkerIsLiteral(t *testing.T) {
	segments := content.Parse("**a** and **b")

	require.Len(t, segments, 1)
	assert.Equal(t, []content.Span{
		{Text: "a", Bold: true},
		{Text: " and **b"},
	}, segments[0].Spans)
}

func TestParse_Links(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []content.Span
	}{
		{
			name:  "domain extraction",
			input: "https://www.example.com/path",
			want:  []content.Span{{Text: "example.com", LinkTarget: "https://www.example.com/path"}},
		},
		{
			name:  "link in prose",
			input: "see http://go.dev/doc for more",
			want: []content.Span{
				{Text: "see "},
				{Text: "go.dev", LinkTarget: "http://go.dev/doc"},
				{Text: " for more"},
			},
		},
		{
			name:  "closing paren ends the url",
			input: "(https://example.org/a)",
			want: []content.Span{
				{Text: "("},
				{Text: "example.org", LinkTarget: "https://example.org/a"},
				{Text: ")"},
			},
		},
		{
			name:  "bold link",
			input: "**https://example.org**",
			want:  []content.Span{{Text: "example.org", Bold: true, LinkTarget: "https://example.org"}},
		},
		{
			name:  "unparsable url falls back to raw text",
			input: "http://%zz/x",
			want:  []content.Span{{Text: "http://%zz/x"}},
		},
		{
			name:  "separator without scheme",
			input: "odd ://thing",
			want:  []content.Span{{Text: "odd ://thing"}},
		},
		{
			name:  "bold markers inside url are kept",
			input: "https://example.org/a**b**c",
			want: []content.Span{
				{Text: "example.org", LinkTarget: "https://example.org/a"},
				{Text: "b", Bold: true},
				{Text: "c"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := content.Parse(tt.input)
			require.Len(t, segments, 1)
			assert.Equal(t, tt.want, segments[0].Spans)
		})
	}
}

func TestParse_CodeBlocks(t *testing.T) {
	input := "intro\n" +
		"```go\n" +
		"func main() {\n" +
		"\n" +
		"\tprintln(1)\n" +
		"}\n" +
		"```\n" +
		"middle\n" +
		"```\n" +
		"plain\n" +
		"```\n" +
		"```python\n" +
		"print(2)\n" +
		"```"

	segments := content.Parse(input)
	codes := codeSegments(segments)

	require.Len(t, codes, 3)
	assert.Equal(t, content.Segment{
		Type:     content.SegmentTypeCode,
		Language: "go",
		Code:     "func main() {\n\n\tprintln(1)\n}",
		Index:    0,
	}, codes[0])
	assert.Equal(t, "plaintext", codes[1].Language)
	assert.Equal(t, "plain", codes[1].Code)
	assert.Equal(t, 1, codes[1].Index)
	assert.Equal(t, "python", codes[2].Language)
	assert.Equal(t, 2, codes[2].Index)

	require.Len(t, segments, 5)
	assert.Equal(t, content.SegmentTypeText, segments[0].Type)
	assert.Equal(t, content.SegmentTypeText, segments[2].Type)
}

func TestParse_UnterminatedFence(t *testing.T) {
	segments := content.Parse("```python\nprint(1)")

	require.Len(t, segments, 1)
	assert.Equal(t, content.Segment{
		Type:     content.SegmentTypeCode,
		Language: "python",
		Code:     "print(1)",
	}, segments[0])
}

func TestParse_FenceLanguage(t *testing.T) {
	tests := []struct {
		fenceLine string
		want      string
	}{
		{"```python", "python"},
		{"```", "plaintext"},
		{"``` python", "plaintext"},
		{"```c++", "c"},
		{"```js {highlight}", "js"},
	}

	for _, tt := range tests {
		t.Run(tt.fenceLine, func(t *testing.T) {
			segments := content.Parse(tt.fenceLine + "\nx\n```")
			require.Len(t, segments, 1)
			assert.Equal(t, tt.want, segments[0].Language)
		})
	}
}

func TestParse_LinesStaySeparate(t *testing.T) {
	segments := content.Parse("one\n\ntwo\n")

	require.Len(t, segments, 4)
	assert.Equal(t, []content.Span{{Text: "one"}}, segments[0].Spans)
	assert.Empty(t, segments[1].Spans)
	assert.Equal(t, []content.Span{{Text: "two"}}, segments[2].Spans)
	assert.Empty(t, segments[3].Spans)
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, content.Parse(""))
}

func TestParse_Deterministic(t *testing.T) {
	input := "**x** https://a.b\n```sh\nls\n```\n```\nmore"
	assert.Equal(t, content.Parse(input), content.Parse(input))
}

func TestRender_RoundTrip(t *testing.T) {
	inputs := []string{
		"a **b** c",
		"hello\n\nworld",
		"see https://www.example.com/path now",
		"**bold https://x.org/y tail** rest",
		"text\n```python\nprint(1)\n\n  indented\n```\nafter",
		"```go\nfmt.Println()\n```",
		"odd **marker",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, input, content.Render(content.Parse(input)))
		})
	}
}

func TestRender_DefaultLanguageIsExplicit(t *testing.T) {
	got := content.Render(content.Parse("```\nx\n```"))
	assert.Equal(t, "```plaintext\nx\n```", got)
	assert.Equal(t, content.Parse("```\nx\n```"), content.Parse(got))
}

func TestWithOutputs(t *testing.T) {
	segments := content.Parse("```python\nprint(1)\n```\ntext\n```python\nprint(2)\n```")

	got := content.WithOutputs(segments, map[int]string{1: "2\n", 7: "ignored"})

	require.Len(t, got, 3)
	assert.False(t, got[0].HasOutput)
	assert.True(t, got[2].HasOutput)
	assert.Equal(t, "2\n", got[2].Output)
	assert.False(t, segments[2].HasOutput, "input segments must not be mutated")
}

func TestSegmentRunnable(t *testing.T) {
	segments := content.Parse("```python\nx\n```\n```go\ny\n```\nprose")

	require.Len(t, segments, 3)
	assert.True(t, segments[0].Runnable())
	assert.False(t, segments[1].Runnable())
	assert.False(t, segments[2].Runnable())
}
