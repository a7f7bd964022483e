package domain

import "time"

// Query kinds produced by the classifier.
const (
	QueryKindSemantic = "semantic" // similarity ranking only
	QueryKindTemporal = "temporal" // date/author/limit filters only, no ranking
	QueryKindHybrid   = "hybrid"   // filters plus similarity ranking
)

// DateRange is a half-open [Start, End) window on commit dates.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Filters narrow the candidate commit set before similarity scoring.
type Filters struct {
	DateRange *DateRange `json:"date_range,omitempty"`
	Author    string     `json:"author,omitempty"`
	// Limit caps a purely temporal query ("last 5 commits"). Zero means no cap.
	Limit int `json:"limit,omitempty"`
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.DateRange == nil && f.Author == "" && f.Limit == 0
}

// Classification is the classifier's verdict for a question. SemanticQuery
// holds the residual free text once filter phrases are stripped; for purely
// temporal queries it is empty.
type Classification struct {
	Kind          string  `json:"kind"`
	Filters       Filters `json:"filters"`
	SemanticQuery string  `json:"semantic_query,omitempty"`
}
