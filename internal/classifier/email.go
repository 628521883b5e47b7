package classifier

import (
	"math"
	"net/mail"
	"strings"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/signals"
)

// emailFeatures are the signals extracted from one message.
type emailFeatures struct {
	monetary         int
	txSender         bool
	txKeywords       int
	bulkHeaders      int
	promoKeywords    int
	businessKeywords int
	freemail         bool
}

func (f emailFeatures) asMap() map[string]float64 {
	b := func(v bool) float64 {
		if v {
			return 1
		}
		return 0
	}
	return map[string]float64{
		"monetary_count":         float64(f.monetary),
		"transactional_sender":   b(f.txSender),
		"transactional_keywords": float64(f.txKeywords),
		"bulk_headers":           float64(f.bulkHeaders),
		"promotional_keywords":   float64(f.promoKeywords),
		"business_keywords":      float64(f.businessKeywords),
		"freemail_sender":        b(f.freemail),
	}
}

// classifyEmail applies the rules in precedence order: transactional,
// promotional, business. Personal is the fallback.
func (c *Classifier) classifyEmail(unit domain.SourceUnit) domain.Classification {
	f := c.emailFeatures(unit)
	features := f.asMap()

	if f.monetary > 0 || f.txKeywords >= 2 {
		if f.txSender || f.txKeywords > 0 {
			conf := 0.6 + 0.1*math.Min(float64(f.monetary), 2) + 0.05*math.Min(float64(f.txKeywords), 2)
			if f.txSender {
				conf += 0.1
			}
			return domain.Classification{Category: domain.CategoryTransactional, Confidence: math.Min(conf, 1), Signals: features}
		}
	}

	if f.bulkHeaders > 0 || f.promoKeywords >= 2 {
		conf := 0.55 + 0.15*math.Min(float64(f.bulkHeaders), 2) + 0.05*math.Min(float64(f.promoKeywords), 3)
		return domain.Classification{Category: domain.CategoryPromotional, Confidence: math.Min(conf, 1), Signals: features}
	}

	if !f.freemail && f.businessKeywords > 0 {
		conf := 0.55 + 0.1*math.Min(float64(f.businessKeywords), 3)
		return domain.Classification{Category: domain.CategoryBusiness, Confidence: math.Min(conf, 0.9), Signals: features}
	}

	conf := genericConfidence
	if f.freemail {
		conf = 0.6
	}
	return domain.Classification{Category: domain.FallbackCategory(unit.Kind), Confidence: conf, Signals: features}
}

func (c *Classifier) emailFeatures(unit domain.SourceUnit) emailFeatures {
	text := unit.Hints.Subject + "\n" + unit.Text
	lowered := strings.ToLower(text)
	local, domainPart := splitSender(unit.Hints.Sender)

	f := emailFeatures{
		monetary:         signals.CountCurrency(text),
		txKeywords:       countKeywords(lowered, c.rules.Transactional.Keywords),
		promoKeywords:    countKeywords(lowered, c.rules.Promotional.Keywords),
		businessKeywords: countKeywords(lowered, c.rules.Business.Keywords),
	}
	for _, p := range c.rules.Transactional.SenderPatterns {
		if strings.Contains(local, p) {
			f.txSender = true
			break
		}
	}
	for _, d := range c.rules.FreemailDomains {
		if domainPart == d {
			f.freemail = true
			break
		}
	}

	headers := make(map[string]string, len(unit.Hints.Headers))
	for k, v := range unit.Hints.Headers {
		headers[strings.ToLower(k)] = strings.ToLower(strings.TrimSpace(v))
	}
	for _, h := range c.rules.Promotional.BulkHeaders {
		if _, ok := headers[h]; ok {
			f.bulkHeaders++
		}
	}
	if prec, ok := headers["precedence"]; ok {
		for _, p := range c.rules.Promotional.BulkPrecedence {
			if prec == p {
				f.bulkHeaders++
				break
			}
		}
	}
	return f
}

// splitSender returns the lower-cased local part and domain of a From value.
func splitSender(sender string) (string, string) {
	addr := sender
	if parsed, err := mail.ParseAddress(sender); err == nil {
		addr = parsed.Address
	}
	addr = strings.ToLower(strings.TrimSpace(addr))
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return addr, ""
	}
	return addr[:at], addr[at+1:]
}
