package domain

import "time"

// Block types in a formatted answer document.
const (
	BlockHeading       = "heading"
	BlockParagraph     = "paragraph"
	BlockOrderedList   = "ordered_list"
	BlockUnorderedList = "unordered_list"
	BlockKeyInsight    = "key_insight"
)

// Span kinds for inline emphasis.
const (
	SpanText = "text"
	SpanBold = "bold"
	SpanCode = "code"
)

// Span is an inline run of text with optional emphasis.
type Span struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Block is one typed element of a Document.
type Block struct {
	Type  string   `json:"type"`
	Level int      `json:"level,omitempty"` // headings only
	Spans []Span   `json:"spans,omitempty"` // heading, paragraph, key_insight
	Items [][]Span `json:"items,omitempty"` // lists
}

// Document is the renderable tree parsed from the LLM's answer text.
type Document struct {
	Blocks []Block `json:"blocks"`
}

// PlainText concatenates the literal text of spans, ignoring emphasis.
func PlainText(spans []Span) string {
	var b []byte
	for _, s := range spans {
		b = append(b, s.Text...)
	}
	return string(b)
}

// Citation references a retrieved commit included in the prompt context.
// Index is the 1-based position used by the LLM to attribute claims.
type Citation struct {
	Index      int       `json:"index"`
	CommitID   string    `json:"commit_id"`
	SHA        string    `json:"sha"`
	Message    string    `json:"message"`
	AISummary  string    `json:"ai_summary,omitempty"`
	AuthorName string    `json:"author_name"`
	CommitDate time.Time `json:"commit_date"`
	HTMLURL    string    `json:"html_url,omitempty"`
	Similarity float64   `json:"similarity"`
}

// ContextBlock is the bounded prompt context assembled from retrieved commits.
// Citations follow retrieval rank order and match the [N] labels in Text.
type ContextBlock struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

// Answer is the pipeline's final result. Grounded is false when no embedded
// commits matched the query — a valid "nothing to search" state, not an error.
type Answer struct {
	Text      string     `json:"answer_text"`
	Document  Document   `json:"answer"`
	Sources   []Citation `json:"sources"`
	Grounded  bool       `json:"grounded"`
	QueryType string     `json:"query_type"`
	Model     string     `json:"model"`
}
