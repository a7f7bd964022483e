package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/codeancestry/codeancestry/internal/domain"
)

// Classifier decides whether a question needs temporal/author filtering,
// semantic ranking, or both. It is a soft heuristic: wrong classification
// degrades retrieval quality but never correctness, and Classify never fails —
// anything it cannot make sense of degrades to a plain semantic query.
type Classifier struct {
	now func() time.Time
}

// NewClassifier creates a classifier using the wall clock for relative dates.
func NewClassifier() *Classifier {
	return &Classifier{now: time.Now}
}

// NewClassifierWithClock creates a classifier with an injected clock, so
// relative phrases like "last week" resolve deterministically in tests.
func NewClassifierWithClock(now func() time.Time) *Classifier {
	return &Classifier{now: now}
}

var (
	limitRe         = regexp.MustCompile(`\b(?:last|past|latest|recent)\s+(\d+)\s+commits?\b`)
	lastCommitRe    = regexp.MustCompile(`\b(?:last|latest|most recent)\s+commit\b`)
	recentCommitsRe = regexp.MustCompile(`\b(?:recent|latest)\s+commits\b`)

	yearRe      = regexp.MustCompile(`\b(?:in|during|from)?\s*((?:19|20)\d{2})\b`)
	monthYearRe = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+((?:19|20)\d{2})\b`)
	inMonthRe   = regexp.MustCompile(`\b(?:in|during)\s+(january|february|march|april|may|june|july|august|september|october|november|december)\b`)

	relativeNRe = regexp.MustCompile(`\b(?:last|past)\s+(\d+)\s+(day|week|month|year)s?\b`)
	relativeRe  = regexp.MustCompile(`\b(?:last|past)\s+(week|month|year)\b`)
	yesterdayRe = regexp.MustCompile(`\byesterday\b`)
	todayRe     = regexp.MustCompile(`\btoday\b`)

	byAuthorRe   = regexp.MustCompile(`\bby\s+([A-Za-z][A-Za-z0-9._-]+)(?:\s+([A-Z][A-Za-z0-9._-]+))?`)
	possessiveRe = regexp.MustCompile(`\b([A-Z][A-Za-z]+)'s\b`)
)

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// Words that carry no semantic weight once filters are stripped. A residual
// made only of these means the user just wants the filtered commits, not a
// similarity search ("what was done in the last 2 commits" is temporal).
var fillerWords = map[string]bool{
	"a": true, "an": true, "the": true, "in": true, "on": true, "at": true,
	"of": true, "to": true, "for": true, "and": true, "or": true, "from": true,
	"during": true, "by": true, "me": true, "us": true, "we": true, "i": true,
	"you": true, "it": true, "was": true, "were": true, "is": true, "are": true,
	"did": true, "do": true, "does": true, "done": true, "have": true,
	"has": true, "had": true, "been": true, "be": true, "made": true,
	"what": true, "which": true, "who": true, "whose": true, "happened": true,
	"happen": true, "show": true, "list": true, "give": true, "tell": true,
	"about": true, "all": true, "any": true, "commit": true, "commits": true,
	"committed": true, "recent": true, "recently": true, "latest": true,
	"there": true, "this": true, "that": true, "these": true, "those": true,
}

// Words the author patterns must never capture as a name.
var notAuthors = map[string]bool{
	"the": true, "a": true, "an": true, "my": true, "our": true, "this": true,
	"that": true, "last": true, "these": true, "those": true, "all": true,
	"step": true, "far": true, "then": true, "now": true, "code": true,
	"commits": true, "commit": true, "history": true, "repo": true,
	"repository": true, "year": true, "month": true, "week": true, "day": true,
}

// Classify inspects a natural-language question and extracts filter hints.
// It never returns an error: unparseable input yields a semantic
// classification with no filters.
func (c *Classifier) Classify(question string) domain.Classification {
	q := strings.TrimSpace(question)
	if q == "" {
		return domain.Classification{Kind: domain.QueryKindSemantic}
	}

	now := c.now()
	lower := strings.ToLower(q)
	residual := lower
	var filters domain.Filters

	strip := func(re *regexp.Regexp) {
		residual = re.ReplaceAllString(residual, " ")
	}

	// Commit-count limits ("last 5 commits", "the latest commit").
	if m := limitRe.FindStringSubmatch(residual); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			filters.Limit = n
		}
		strip(limitRe)
	} else if lastCommitRe.MatchString(residual) {
		filters.Limit = 1
		strip(lastCommitRe)
	} else if recentCommitsRe.MatchString(residual) {
		filters.Limit = 10
		strip(recentCommitsRe)
	}

	// Calendar windows: "march 2023" beats a bare "2023" beats "in march".
	if m := monthYearRe.FindStringSubmatch(residual); m != nil {
		year, _ := strconv.Atoi(m[2])
		start := time.Date(year, months[m[1]], 1, 0, 0, 0, 0, time.UTC)
		filters.DateRange = &domain.DateRange{Start: start, End: start.AddDate(0, 1, 0)}
		strip(monthYearRe)
	} else if m := yearRe.FindStringSubmatch(residual); m != nil {
		year, _ := strconv.Atoi(m[1])
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		filters.DateRange = &domain.DateRange{Start: start, End: start.AddDate(1, 0, 0)}
		strip(yearRe)
	} else if m := inMonthRe.FindStringSubmatch(residual); m != nil {
		month := months[m[1]]
		start := time.Date(now.Year(), month, 1, 0, 0, 0, 0, time.UTC)
		if start.After(now) {
			start = start.AddDate(-1, 0, 0)
		}
		filters.DateRange = &domain.DateRange{Start: start, End: start.AddDate(0, 1, 0)}
		strip(inMonthRe)
	}

	// Relative windows, only when no calendar window matched.
	if filters.DateRange == nil {
		if m := relativeNRe.FindStringSubmatch(residual); m != nil {
			n, _ := strconv.Atoi(m[1])
			filters.DateRange = &domain.DateRange{Start: subtractUnits(now, m[2], n), End: now}
			strip(relativeNRe)
		} else if m := relativeRe.FindStringSubmatch(residual); m != nil {
			filters.DateRange = &domain.DateRange{Start: subtractUnits(now, m[1], 1), End: now}
			strip(relativeRe)
		} else if yesterdayRe.MatchString(residual) {
			midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			filters.DateRange = &domain.DateRange{Start: midnight.AddDate(0, 0, -1), End: midnight}
			strip(yesterdayRe)
		} else if todayRe.MatchString(residual) {
			midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			filters.DateRange = &domain.DateRange{Start: midnight, End: midnight.AddDate(0, 0, 1)}
			strip(todayRe)
		}
	}

	// Author mentions: "commits by John", "John's changes". Matched against
	// the original casing so capitalized names are recognizable.
	if m := possessiveRe.FindStringSubmatch(q); m != nil && !notAuthors[strings.ToLower(m[1])] {
		filters.Author = m[1]
		residual = strings.Replace(residual, strings.ToLower(m[0]), " ", 1)
	} else if m := byAuthorRe.FindStringSubmatch(q); m != nil && !notAuthors[strings.ToLower(m[1])] {
		filters.Author = m[1]
		if m[2] != "" {
			filters.Author += " " + m[2]
		}
		residual = strings.Replace(residual, strings.ToLower(m[0]), " ", 1)
	}

	semanticQuery := residualQuery(residual)

	switch {
	case filters.Empty():
		return domain.Classification{Kind: domain.QueryKindSemantic, SemanticQuery: q}
	case semanticQuery == "":
		return domain.Classification{Kind: domain.QueryKindTemporal, Filters: filters}
	default:
		return domain.Classification{Kind: domain.QueryKindHybrid, Filters: filters, SemanticQuery: semanticQuery}
	}
}

func subtractUnits(now time.Time, unit string, n int) time.Time {
	switch unit {
	case "day":
		return now.AddDate(0, 0, -n)
	case "week":
		return now.AddDate(0, 0, -7*n)
	case "month":
		return now.AddDate(0, -n, 0)
	default: // year
		return now.AddDate(-n, 0, 0)
	}
}

// residualQuery strips punctuation and filler words; what remains is the
// semantic part of the question, or "" when nothing meaningful is left.
func residualQuery(residual string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '?', '!', '.', ',', ';', ':', '"', '\'':
			return ' '
		}
		return r
	}, residual)

	var kept []string
	for _, w := range strings.Fields(cleaned) {
		if !fillerWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
