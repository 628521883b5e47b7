package classifier

import (
	"math"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/logger"
	"github.com/custodia-labs/vellum/internal/signals"
)

// charsPerPage estimates page count for units without page information.
const charsPerPage = 3000

// minDensityPages keeps densities of very short texts bounded.
const minDensityPages = 0.2

// genericConfidence is reported when no document rule fires.
const genericConfidence = 0.4

// Classifier implements driven.Classifier.
type Classifier struct {
	settings domain.ClassifierSettings
	rules    *EmailRules
}

var _ driven.Classifier = (*Classifier)(nil)

// New creates a classifier. A nil rules value uses the embedded defaults.
func New(settings domain.ClassifierSettings, rules *EmailRules) *Classifier {
	if rules == nil {
		rules = DefaultEmailRules()
	}
	return &Classifier{settings: settings, rules: rules}
}

// Classify assigns a category to the unit.
func (c *Classifier) Classify(unit domain.SourceUnit) domain.Classification {
	var result domain.Classification
	switch unit.Kind {
	case domain.KindEmail:
		result = c.classifyEmail(unit)
	default:
		result = c.classifyDocument(unit)
	}

	if result.Uncertain(c.settings.LowConfidence) {
		logger.Warn("classification uncertain: unit=%s category=%s confidence=%.2f",
			unit.ID, result.Category, result.Confidence)
	} else {
		logger.Debug("classified unit=%s as %s (%.2f)", unit.ID, result.Category, result.Confidence)
	}
	return result
}

// classifyDocument scores the financial and long_form rules and picks the
// higher one. Equal scores resolve to generic.
func (c *Classifier) classifyDocument(unit domain.SourceUnit) domain.Classification {
	s := c.settings
	pages := pageCount(unit)
	currency := signals.CountCurrency(unit.Text)
	dates := signals.CountDates(unit.Text)
	tabular := signals.TabularRatio(unit.Text)

	// The financial rule reads length-normalised densities so a short
	// statement is not diluted by sparse pages. The long_form rule reads
	// plain per-page counts.
	dp := densityPages(unit.Text, pages)
	currencyDensity := float64(currency) / dp
	dateDensity := float64(dates) / dp
	currencyPerPage := float64(currency) / float64(pages)

	features := map[string]float64{
		"currency_count":    float64(currency),
		"currency_per_page": currencyPerPage,
		"currency_density":  currencyDensity,
		"date_count":        float64(dates),
		"date_per_page":     float64(dates) / float64(pages),
		"date_density":      dateDensity,
		"tabular_ratio":     tabular,
		"page_count":        float64(pages),
	}

	var financial, longForm float64
	if s.FinancialCurrencyPerPage > 0 {
		strong := currencyDensity >= s.FinancialCurrencyPerPage
		supported := currencyDensity >= s.FinancialCurrencyPerPage/2 &&
			(dateDensity >= s.FinancialDatePerPage || tabular >= s.TabularRatio)
		if strong || supported {
			financial = 0.6 + 0.4*math.Min(1, currencyDensity/(2*s.FinancialCurrencyPerPage))
		}
	}
	if s.LongFormMinPages > 0 && pages >= s.LongFormMinPages && currencyPerPage < s.LongFormMaxCurrencyPerPage {
		minPages := float64(s.LongFormMinPages)
		longForm = 0.6 + 0.4*math.Min(1, (float64(pages)-minPages)/minPages)
	}

	switch {
	case financial > longForm:
		return domain.Classification{Category: domain.CategoryFinancial, Confidence: financial, Signals: features}
	case longForm > financial:
		return domain.Classification{Category: domain.CategoryLongForm, Confidence: longForm, Signals: features}
	default:
		return domain.Classification{Category: domain.FallbackCategory(unit.Kind), Confidence: genericConfidence, Signals: features}
	}
}

func pageCount(unit domain.SourceUnit) int {
	if n := unit.PageCount(); n > 0 {
		return n
	}
	n := (len(unit.Text) + charsPerPage - 1) / charsPerPage
	if n < 1 {
		n = 1
	}
	return n
}

// densityPages is the page-equivalent length used for densities: the
// text length in pages, bounded below by minDensityPages and above by
// the real page count. Sparse pages therefore do not dilute a short
// statement.
func densityPages(text string, pages int) float64 {
	p := math.Max(float64(len(text))/charsPerPage, minDensityPages)
	return math.Min(p, float64(pages))
}
