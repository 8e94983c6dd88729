// Package verify corroborates a claimed result against several
// differently-phrased web searches and reports how well the sources
// agree.
//
// A Verifier performs exactly one corroboration pass per call. How many
// passes a claim needs is decided by the model, guided by the tier
// table rendered into the system prompt (see [Guidelines]).
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nugget/verity/internal/search"
)

const (
	maxQueries   = 4
	maxKeyTerms  = 5
	excerptRunes = 200
	numbersShown = 3
	// consistentMax is the largest number of distinct numeric tokens
	// across sources still reported as consistent.
	consistentMax = 3
)

// Searcher runs one query through the search fallback chain.
type Searcher interface {
	Lookup(ctx context.Context, query string) search.Outcome
}

// Verifier runs verification passes.
type Verifier struct {
	searcher Searcher
	logger   *slog.Logger
}

// New creates a verifier backed by searcher.
func New(searcher Searcher, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		searcher: searcher,
		logger:   logger.With("component", "verify"),
	}
}

// Query is one verification search.
type Query struct {
	Text        string
	SourceIndex int
}

// SourceResult is what one verification search returned.
type SourceResult struct {
	Query   Query
	Raw     string
	Numbers []string
	// Valid reports whether the search produced usable content.
	Valid bool
}

// Report is the outcome of one verification pass.
type Report struct {
	Description string
	Sources     []SourceResult
}

// Verify runs one pass and renders the report.
func (v *Verifier) Verify(ctx context.Context, description string) string {
	return v.Run(ctx, description).String()
}

// Run issues the verification queries in order and collects their
// results. Search failures are recorded on the source, never returned.
func (v *Verifier) Run(ctx context.Context, description string) *Report {
	queries := Queries(description)
	r := &Report{Description: description, Sources: make([]SourceResult, 0, len(queries))}

	for _, q := range queries {
		out := v.searcher.Lookup(ctx, q.Text)
		src := SourceResult{Query: q, Raw: out.Text, Valid: out.Found}
		if src.Valid {
			src.Numbers = ExtractNumbers(out.Text)
		}
		v.logger.Debug("verification source",
			"source", q.SourceIndex,
			"query", q.Text,
			"valid", src.Valid,
			"numbers", len(src.Numbers),
		)
		r.Sources = append(r.Sources, src)
	}
	return r
}

// ValidSources counts the sources that returned usable content.
func (r *Report) ValidSources() int {
	n := 0
	for _, s := range r.Sources {
		if s.Valid {
			n++
		}
	}
	return n
}

// AllNumbers returns the distinct numeric tokens across valid sources
// in first-seen order.
func (r *Report) AllNumbers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range r.Sources {
		if !s.Valid {
			continue
		}
		for _, n := range s.Numbers {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

// Consistent reports whether the valid sources agree numerically. It
// is only meaningful with at least two valid sources that mention
// numbers.
func (r *Report) Consistent() bool {
	return len(r.AllNumbers()) <= consistentMax
}

// String renders the plain-text report handed back to the model.
func (r *Report) String() string {
	var b strings.Builder
	b.WriteString("MULTI-SOURCE VERIFICATION REPORT\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Original Query: %s\n\n", r.Description)

	for _, s := range r.Sources {
		fmt.Fprintf(&b, "Source %d: %s\n", s.Query.SourceIndex, s.Query.Text)
		b.WriteString(strings.Repeat("-", 30) + "\n")
		if s.Valid {
			if len(s.Numbers) > 0 {
				shown := s.Numbers
				if len(shown) > numbersShown {
					shown = shown[:numbersShown]
				}
				fmt.Fprintf(&b, "Key numbers found: %s\n", strings.Join(shown, ", "))
			}
			fmt.Fprintf(&b, "Excerpt: %s\n", excerpt(s.Raw, excerptRunes))
		} else {
			fmt.Fprintf(&b, "No usable results: %s\n", s.Raw)
		}
		b.WriteString("\n")
	}

	b.WriteString("VERIFICATION ANALYSIS:\n")
	b.WriteString(strings.Repeat("-", 30) + "\n")
	valid := r.ValidSources()
	switch {
	case valid >= 2:
		if nums := r.AllNumbers(); len(nums) > 0 {
			fmt.Fprintf(&b, "Numbers found across sources: %s\n", strings.Join(nums, ", "))
			if r.Consistent() {
				b.WriteString("Results show some consistency across sources\n")
			} else {
				b.WriteString("Results show significant variation - this is normal for complex specifications\n")
			}
		}
		fmt.Fprintf(&b, "Successfully verified with %d sources\n", valid)
	case valid == 1:
		b.WriteString("Only one source provided results - consider additional verification\n")
	default:
		b.WriteString("No sources provided valid results - manual verification strongly recommended\n")
	}

	b.WriteString("\nRECOMMENDATION:\n")
	if valid > 0 {
		b.WriteString("Compare your result with the findings above. If there's significant discrepancy,\n")
		b.WriteString("note the range of values found rather than seeking additional sources.\n")
		b.WriteString("For most questions, this level of verification is sufficient to proceed with confidence.")
	} else {
		b.WriteString("Verification was inconclusive. State the result with appropriate uncertainty\n")
		b.WriteString("and suggest the user confirm it with an authoritative source.")
	}
	return b.String()
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

var numberPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ExtractNumbers returns the numeric tokens in s in order of
// appearance, duplicates included. Thousands separators are kept and
// a trailing comma is dropped.
func ExtractNumbers(s string) []string {
	matches := numberPattern.FindAllString(s, -1)
	for i, m := range matches {
		matches[i] = strings.TrimRight(m, ",")
	}
	return matches
}

var (
	stopWords = regexp.MustCompile(`\b(verify|check|validate|result|seems|appears|power|of|the|in|terms|based|on|its|output)\b`)

	specTerms      = []string{"engine", "power", "horsepower", "thrust", "conversion"}
	aviationTerms  = []string{"ge90", "boeing", "aircraft", "engine"}
	procedureTerms = []string{"calculation", "formula", "conversion"}
)

// KeyTerms strips verification filler words from description and
// keeps up to five remaining words longer than two characters.
func KeyTerms(description string) string {
	cleaned := stopWords.ReplaceAllString(strings.ToLower(description), "")
	var keep []string
	for _, w := range strings.Fields(cleaned) {
		w = strings.Trim(w, ".,()[]")
		if utf8.RuneCountInString(w) > 2 {
			keep = append(keep, w)
			if len(keep) == maxKeyTerms {
				break
			}
		}
	}
	return strings.Join(keep, " ")
}

// Queries derives the verification searches for description: a direct
// check, a specification lookup, a multi-source comparison and an
// authoritative-source lookup, each phrased for the claim's domain.
func Queries(description string) []Query {
	lower := strings.ToLower(description)
	terms := KeyTerms(description)

	texts := []string{"verify check validate " + description}

	if mentionsAny(lower, specTerms) {
		texts = append(texts, terms+" technical specifications datasheet")
	} else {
		texts = append(texts, terms+" technical specifications")
	}

	texts = append(texts, terms+" multiple sources comparison")

	switch {
	case mentionsAny(lower, aviationTerms):
		texts = append(texts, terms+" official manufacturer specifications")
	case mentionsAny(lower, procedureTerms):
		texts = append(texts, terms+" standard formula method")
	default:
		texts = append(texts, terms+" authoritative source")
	}

	if len(texts) > maxQueries {
		texts = texts[:maxQueries]
	}
	out := make([]Query, len(texts))
	for i, t := range texts {
		out[i] = Query{Text: t, SourceIndex: i + 1}
	}
	return out
}

func mentionsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
