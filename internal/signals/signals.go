// Package signals detects textual features shared by the classifier and
// the chunker: currency amounts, date tokens and tabular lines.
package signals

import (
	"regexp"
	"sort"
	"strings"
)

const currencyCodes = `USD|EUR|GBP|CHF|JPY|CAD|AUD|INR`

var (
	currencyPattern = regexp.MustCompile(
		`[$€£¥₹]\s?\d+(?:,\d{3})*(?:\.\d+)?` +
			`|\b(?:` + currencyCodes + `)\s?\d+(?:,\d{3})*(?:\.\d+)?` +
			`|\b\d+(?:,\d{3})*\.\d{2}\s?(?:` + currencyCodes + `)\b`)

	monthNames = `jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec`

	datePattern = regexp.MustCompile(`(?i)` +
		`\b\d{4}-\d{2}-\d{2}\b` +
		`|\b\d{1,2}[/.]\d{1,2}[/.]\d{2,4}\b` +
		`|\b(?:` + monthNames + `)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b` +
		`|\b\d{1,2}(?:st|nd|rd|th)?\s+(?:` + monthNames + `)[a-z]*\.?,?\s+\d{4}\b`)

	columnGap = regexp.MustCompile(`\t| {2,}`)
	digit     = regexp.MustCompile(`\d`)
)

// Span is a half-open byte range [Start, End).
type Span struct {
	Start int
	End   int
}

// Contains reports whether offset falls strictly inside the span, so a
// boundary placed there would split the token.
func (s Span) Contains(offset int) bool {
	return offset > s.Start && offset < s.End
}

// CurrencySpans returns the byte ranges of currency amounts in text,
// in order of appearance.
func CurrencySpans(text string) []Span {
	locs := currencyPattern.FindAllStringIndex(text, -1)
	spans := make([]Span, len(locs))
	for i, loc := range locs {
		spans[i] = Span{Start: loc[0], End: loc[1]}
	}
	return spans
}

// CountCurrency returns the number of currency amounts in text.
func CountCurrency(text string) int {
	return len(currencyPattern.FindAllStringIndex(text, -1))
}

// CountDates returns the number of date tokens in text.
func CountDates(text string) int {
	return len(datePattern.FindAllStringIndex(text, -1))
}

// TabularRatio returns the share of non-blank lines that look like table
// rows: at least two column gaps (tabs, pipes or runs of spaces) and a digit.
func TabularRatio(text string) float64 {
	var lines, tabular int
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines++
		if isTabular(line) {
			tabular++
		}
	}
	if lines == 0 {
		return 0
	}
	return float64(tabular) / float64(lines)
}

func isTabular(line string) bool {
	if !digit.MatchString(line) {
		return false
	}
	if strings.Count(line, "|") >= 2 {
		return true
	}
	return len(columnGap.FindAllStringIndex(strings.TrimSpace(line), -1)) >= 2
}

// SpanAt returns the span in sorted spans that strictly contains offset.
func SpanAt(spans []Span, offset int) (Span, bool) {
	i := sort.Search(len(spans), func(i int) bool {
		return spans[i].End > offset
	})
	if i < len(spans) && spans[i].Contains(offset) {
		return spans[i], true
	}
	return Span{}, false
}
