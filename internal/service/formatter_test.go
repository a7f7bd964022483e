package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeancestry/codeancestry/internal/domain"
)

func TestFormatAnswerStructuredResponse(t *testing.T) {
	raw := "## Summary\n1. First point\n2. Second point\n\n**Key Insight**: reuse the cache"

	doc := FormatAnswer(raw)

	require.Len(t, doc.Blocks, 3)

	heading := doc.Blocks[0]
	assert.Equal(t, domain.BlockHeading, heading.Type)
	assert.Equal(t, 2, heading.Level)
	assert.Equal(t, "Summary", domain.PlainText(heading.Spans))

	list := doc.Blocks[1]
	assert.Equal(t, domain.BlockOrderedList, list.Type)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "First point", domain.PlainText(list.Items[0]))
	assert.Equal(t, "Second point", domain.PlainText(list.Items[1]))

	insight := doc.Blocks[2]
	assert.Equal(t, domain.BlockKeyInsight, insight.Type)
	assert.Equal(t, "reuse the cache", domain.PlainText(insight.Spans))
}

func TestFormatAnswerKeyInsightOnNextLine(t *testing.T) {
	raw := "Some analysis.\n\n**Key Insight**:\n**reuse the cache**"

	doc := FormatAnswer(raw)

	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, domain.BlockParagraph, doc.Blocks[0].Type)
	insight := doc.Blocks[1]
	assert.Equal(t, domain.BlockKeyInsight, insight.Type)
	assert.Equal(t, "reuse the cache", domain.PlainText(insight.Spans))
}

func TestFormatAnswerParagraphLinesJoined(t *testing.T) {
	raw := "The cache was added\nto cut latency."

	doc := FormatAnswer(raw)

	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, domain.BlockParagraph, doc.Blocks[0].Type)
	assert.Equal(t, "The cache was added to cut latency.", domain.PlainText(doc.Blocks[0].Spans))
}

func TestFormatAnswerUnorderedList(t *testing.T) {
	raw := "- alpha\n• beta"

	doc := FormatAnswer(raw)

	require.Len(t, doc.Blocks, 1)
	list := doc.Blocks[0]
	assert.Equal(t, domain.BlockUnorderedList, list.Type)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "alpha", domain.PlainText(list.Items[0]))
	assert.Equal(t, "beta", domain.PlainText(list.Items[1]))
}

func TestFormatAnswerInlineSpans(t *testing.T) {
	doc := FormatAnswer("uses **bold** and `code` inline")

	require.Len(t, doc.Blocks, 1)
	spans := doc.Blocks[0].Spans
	require.Len(t, spans, 5)
	assert.Equal(t, domain.SpanText, spans[0].Kind)
	assert.Equal(t, "uses ", spans[0].Text)
	assert.Equal(t, domain.SpanBold, spans[1].Kind)
	assert.Equal(t, "bold", spans[1].Text)
	assert.Equal(t, domain.SpanCode, spans[3].Kind)
	assert.Equal(t, "code", spans[3].Text)
}

func TestFormatAnswerUnmatchedMarkersStayLiteral(t *testing.T) {
	doc := FormatAnswer("a **dangling marker and `real code`")

	require.Len(t, doc.Blocks, 1)
	spans := doc.Blocks[0].Spans
	require.Len(t, spans, 2)
	assert.Equal(t, domain.SpanText, spans[0].Kind)
	assert.Equal(t, "a **dangling marker and ", spans[0].Text)
	assert.Equal(t, domain.SpanCode, spans[1].Kind)
	assert.Equal(t, "real code", spans[1].Text)
}

func TestFormatAnswerHeadingLevels(t *testing.T) {
	doc := FormatAnswer("# Title\n## Section\n### Detail")

	require.Len(t, doc.Blocks, 3)
	assert.Equal(t, 1, doc.Blocks[0].Level)
	assert.Equal(t, 2, doc.Blocks[1].Level)
	assert.Equal(t, 2, doc.Blocks[2].Level, "deeper headings cap at level 2")
	assert.Equal(t, "Detail", domain.PlainText(doc.Blocks[2].Spans), "no literal hashes leak into heading text")
}

func TestFormatAnswerEmptyInput(t *testing.T) {
	doc := FormatAnswer("")

	assert.Empty(t, doc.Blocks)
}
