package classifier

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

func newTestClassifier() *Classifier {
	return New(domain.DefaultClassifierSettings(), nil)
}

func pdfUnit(pages ...string) domain.SourceUnit {
	return domain.NewDocumentUnit("doc-1", "alice", "test.pdf", pages, time.Now())
}

func TestClassify_InvoiceIsFinancial(t *testing.T) {
	c := newTestClassifier()

	got := c.Classify(pdfUnit("INVOICE #221, $452.10, 2024-03-02"))

	assert.Equal(t, domain.CategoryFinancial, got.Category)
	assert.GreaterOrEqual(t, got.Confidence, 0.7)
}

func TestClassify_CurrencyDenseTwoPagesIsFinancial(t *testing.T) {
	c := newTestClassifier()

	var pages []string
	for p := 0; p < 2; p++ {
		var b strings.Builder
		for i := 0; i < 20; i++ {
			fmt.Fprintf(&b, "Line item %d consulting services rendered $%d.50\n", i, 100+i)
		}
		pages = append(pages, b.String())
	}

	got := c.Classify(pdfUnit(pages...))

	require.Equal(t, domain.CategoryFinancial, got.Category)
	assert.GreaterOrEqual(t, got.Confidence, 0.7)
	assert.Equal(t, 40.0, got.Signals["currency_count"])
	assert.Equal(t, 2.0, got.Signals["page_count"])
}

func TestClassify_LongFormReport(t *testing.T) {
	c := newTestClassifier()

	prose := strings.Repeat("The committee reviewed the findings of the annual survey in detail. ", 45)
	pages := make([]string, 12)
	for i := range pages {
		pages[i] = prose
	}

	got := c.Classify(pdfUnit(pages...))

	assert.Equal(t, domain.CategoryLongForm, got.Category)
	assert.InDelta(t, 0.68, got.Confidence, 0.001)
}

func TestClassify_ShortPagesWithFewAmountsIsLongForm(t *testing.T) {
	c := newTestClassifier()

	pages := make([]string, 12)
	for i := range pages {
		pages[i] = strings.Repeat("Chapter notes on regional history and its archives. ", 6)
	}
	pages[3] += "Admission was $5.00 at the time."
	pages[9] += "The restoration cost $1,200.00 in total."

	got := c.Classify(pdfUnit(pages...))

	require.Equal(t, domain.CategoryLongForm, got.Category)
	assert.InDelta(t, 2.0/12, got.Signals["currency_per_page"], 0.001)
	assert.Greater(t, got.Signals["currency_density"], 1.0)
}

func TestClassify_ShortProseIsGenericWithLowConfidence(t *testing.T) {
	c := newTestClassifier()

	got := c.Classify(pdfUnit("Notes from the garden club: bring gloves and seeds next week."))

	assert.Equal(t, domain.CategoryGeneric, got.Category)
	assert.True(t, got.Uncertain(0.5))
}

func TestClassify_SupportedFinancialRule(t *testing.T) {
	c := newTestClassifier()

	// Below the strong threshold but backed by dates.
	var b strings.Builder
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&b, "Payment on 2024-01-%02d of $%d.00 received, reference number %d, posted 2024-02-%02d. ", i+1, 10*i+5, 1000+i, i+1)
	}
	b.WriteString(strings.Repeat("Account terms and conditions apply to every transfer. ", 50))

	got := c.Classify(pdfUnit(b.String()))

	assert.Equal(t, domain.CategoryFinancial, got.Category)
	assert.Less(t, got.Signals["currency_per_page"], 5.0)
	assert.GreaterOrEqual(t, got.Signals["date_per_page"], 3.0)
}

func TestClassify_Deterministic(t *testing.T) {
	c := newTestClassifier()
	u := pdfUnit("Total $10.00 and $20.00 on 2024-03-02")

	assert.Equal(t, c.Classify(u), c.Classify(u))
}

func emailUnit(sender, subject, body string, headers map[string]string) domain.SourceUnit {
	return domain.SourceUnit{
		ID:      "msg-1",
		OwnerID: "alice",
		Kind:    domain.KindEmail,
		Text:    body,
		Hints: domain.Hints{
			Sender:  sender,
			Subject: subject,
			Headers: headers,
		},
	}
}

func TestClassify_Email(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		name     string
		unit     domain.SourceUnit
		category domain.Category
		minConf  float64
	}{
		{
			name:     "receipt",
			unit:     emailUnit("Shop <receipts@shop.example>", "Your order receipt", "Total charged: $23.99", nil),
			category: domain.CategoryTransactional,
			minConf:  0.85,
		},
		{
			name: "newsletter",
			unit: emailUnit("news@brand.example", "Big sale this weekend", "Everything 20% off. Unsubscribe here.",
				map[string]string{"List-Unsubscribe": "<mailto:unsub@brand.example>"}),
			category: domain.CategoryPromotional,
			minConf:  0.7,
		},
		{
			name:     "work",
			unit:     emailUnit("Dana <dana@acme-corp.com>", "Project meeting agenda", "Please review before Thursday.", nil),
			category: domain.CategoryBusiness,
			minConf:  0.8,
		},
		{
			name:     "friend",
			unit:     emailUnit("sam@gmail.com", "Dinner on Saturday?", "Are you free? I owe you $20 anyway.", nil),
			category: domain.CategoryPersonal,
			minConf:  0.6,
		},
		{
			name: "bulk precedence",
			unit: emailUnit("digest@forum.example", "Weekly digest", "New posts in your groups.",
				map[string]string{"Precedence": "Bulk"}),
			category: domain.CategoryPromotional,
			minConf:  0.65,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.unit)
			assert.Equal(t, tt.category, got.Category)
			assert.GreaterOrEqual(t, got.Confidence, tt.minConf)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestClassify_EmailAmbiguousFallsBackToPersonal(t *testing.T) {
	c := newTestClassifier()

	got := c.Classify(emailUnit("someone@unknown.org", "hi", "hello there", nil))

	assert.Equal(t, domain.CategoryPersonal, got.Category)
	assert.Less(t, got.Confidence, 0.5)
}

func TestClassify_CategoryAlwaysMatchesKind(t *testing.T) {
	c := newTestClassifier()

	for _, u := range []domain.SourceUnit{
		pdfUnit("$1.00 $2.00 $3.00 $4.00 $5.00"),
		emailUnit("a@b.c", "", "$1.00", nil),
	} {
		got := c.Classify(u)
		assert.True(t, got.Category.ValidFor(u.Kind), "%s for %s", got.Category, u.Kind)
	}
}

func TestSplitSender(t *testing.T) {
	local, dom := splitSender("Billing Team <Billing@Example.COM>")
	assert.Equal(t, "billing", local)
	assert.Equal(t, "example.com", dom)

	local, dom = splitSender("not an address")
	assert.Equal(t, "not an address", local)
	assert.Empty(t, dom)
}
