package service

import (
	"regexp"
	"strings"

	"github.com/codeancestry/codeancestry/internal/domain"
)

// FormatAnswer parses the LLM's semi-structured text into a renderable
// Document. It is pure and total: malformed input never fails, the worst
// case is a single paragraph block holding the whole response.
func FormatAnswer(raw string) domain.Document {
	p := &answerParser{}
	for _, line := range strings.Split(raw, "\n") {
		p.feed(line)
	}
	p.flush()
	return domain.Document{Blocks: p.blocks}
}

// keyInsightMarker is matched case-sensitively, optionally bold-wrapped,
// optionally followed by a colon and inline content.
var (
	keyInsightRe  = regexp.MustCompile(`(?:\*\*)?Key Insight(?:\*\*)?:?\s*`)
	orderedItemRe = regexp.MustCompile(`^(\d+)\.\s+(.*)$`)
)

type groupKind int

const (
	groupNone groupKind = iota
	groupOrdered
	groupUnordered
	groupParagraph
)

// answerParser walks lines with an accumulator that is flushed whenever the
// block type changes or a blank line appears.
type answerParser struct {
	blocks []domain.Block

	group       groupKind
	items       [][]domain.Span // pending list items
	paragraph   []string        // pending paragraph lines
	wantInsight bool            // next non-empty line is the key insight
}

func (p *answerParser) feed(line string) {
	trimmed := strings.TrimSpace(line)

	if trimmed == "" {
		p.flush()
		return
	}

	// A pending key-insight marker captures the next non-empty line whole.
	if p.wantInsight {
		p.wantInsight = false
		p.flush()
		p.blocks = append(p.blocks, domain.Block{
			Type:  domain.BlockKeyInsight,
			Spans: parseSpans(stripInsightPrefix(trimmed)),
		})
		return
	}

	if idx := keyInsightRe.FindStringIndex(trimmed); idx != nil {
		p.flush()
		rest := strings.TrimSpace(trimmed[idx[1]:])
		if rest == "" {
			p.wantInsight = true
			return
		}
		p.blocks = append(p.blocks, domain.Block{
			Type:  domain.BlockKeyInsight,
			Spans: parseSpans(rest),
		})
		return
	}

	if strings.HasPrefix(trimmed, "#") {
		p.flush()
		hashes := 0
		for hashes < len(trimmed) && trimmed[hashes] == '#' {
			hashes++
		}
		// Deeper LLM headings degrade to level 2 rather than keeping
		// literal hashes in the text.
		level := hashes
		if level > 2 {
			level = 2
		}
		text := strings.TrimSpace(trimmed[hashes:])
		p.blocks = append(p.blocks, domain.Block{Type: domain.BlockHeading, Level: level, Spans: parseSpans(text)})
		return
	}

	if m := orderedItemRe.FindStringSubmatch(trimmed); m != nil {
		p.setGroup(groupOrdered)
		p.items = append(p.items, parseSpans(m[2]))
		return
	}

	if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "• ") {
		item := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(trimmed, "- "), "• "))
		p.setGroup(groupUnordered)
		p.items = append(p.items, parseSpans(item))
		return
	}

	p.setGroup(groupParagraph)
	p.paragraph = append(p.paragraph, trimmed)
}

// setGroup flushes the accumulator when the running block type changes.
func (p *answerParser) setGroup(kind groupKind) {
	if p.group != kind {
		p.flush()
		p.group = kind
	}
}

func (p *answerParser) flush() {
	switch p.group {
	case groupOrdered:
		p.blocks = append(p.blocks, domain.Block{Type: domain.BlockOrderedList, Items: p.items})
	case groupUnordered:
		p.blocks = append(p.blocks, domain.Block{Type: domain.BlockUnorderedList, Items: p.items})
	case groupParagraph:
		p.blocks = append(p.blocks, domain.Block{
			Type:  domain.BlockParagraph,
			Spans: parseSpans(strings.Join(p.paragraph, " ")),
		})
	}
	p.group = groupNone
	p.items = nil
	p.paragraph = nil
}

// stripInsightPrefix removes a leading bold marker from a captured insight
// line ("**reuse the cache**" and "reuse the cache" are the same insight).
func stripInsightPrefix(s string) string {
	if strings.HasPrefix(s, "**") && strings.HasSuffix(s, "**") && len(s) > 4 {
		return s[2 : len(s)-2]
	}
	return s
}

// spanRe finds complete, non-nesting inline markers. Unmatched ** or `
// never match and therefore stay in the surrounding literal text.
var spanRe = regexp.MustCompile("\\*\\*[^*]+\\*\\*|`[^`]+`")

// parseSpans splits a text line into literal, bold and code spans.
// First match wins left to right; markers without a closing partner are
// rendered as literal text.
func parseSpans(text string) []domain.Span {
	if text == "" {
		return nil
	}

	var spans []domain.Span
	last := 0
	for _, loc := range spanRe.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			spans = append(spans, domain.Span{Kind: domain.SpanText, Text: text[last:loc[0]]})
		}
		match := text[loc[0]:loc[1]]
		if strings.HasPrefix(match, "**") {
			spans = append(spans, domain.Span{Kind: domain.SpanBold, Text: match[2 : len(match)-2]})
		} else {
			spans = append(spans, domain.Span{Kind: domain.SpanCode, Text: match[1 : len(match)-1]})
		}
		last = loc[1]
	}
	if last < len(text) {
		spans = append(spans, domain.Span{Kind: domain.SpanText, Text: text[last:]})
	}
	return spans
}
