package classifier

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// EmailRules holds the keyword and sender lists used for email classification.
type EmailRules struct {
	Transactional struct {
		SenderPatterns []string `yaml:"sender_patterns"`
		Keywords       []string `yaml:"keywords"`
	} `yaml:"transactional"`

	Promotional struct {
		BulkHeaders    []string `yaml:"bulk_headers"`
		BulkPrecedence []string `yaml:"bulk_precedence"`
		Keywords       []string `yaml:"keywords"`
	} `yaml:"promotional"`

	Business struct {
		Keywords []string `yaml:"keywords"`
	} `yaml:"business"`

	FreemailDomains []string `yaml:"freemail_domains"`
}

// DefaultEmailRules returns the rules embedded in the binary.
func DefaultEmailRules() *EmailRules {
	rules, err := ParseEmailRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("classifier: embedded rules are invalid: %v", err))
	}
	return rules
}

// ParseEmailRules decodes a YAML rule document. Entries are lower-cased.
func ParseEmailRules(data []byte) (*EmailRules, error) {
	var rules EmailRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing classifier rules: %w", err)
	}
	rules.normalise()
	return &rules, nil
}

// LoadEmailRules reads rules from path. An empty path or a missing file
// yields the embedded defaults.
func LoadEmailRules(path string) (*EmailRules, error) {
	if path == "" {
		return DefaultEmailRules(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultEmailRules(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading classifier rules: %w", err)
	}
	return ParseEmailRules(data)
}

// DefaultRulesFile returns the embedded rule document, for writing a
// starter file users can edit.
func DefaultRulesFile() []byte {
	out := make([]byte, len(defaultRulesYAML))
	copy(out, defaultRulesYAML)
	return out
}

func (r *EmailRules) normalise() {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	r.Transactional.SenderPatterns = lower(r.Transactional.SenderPatterns)
	r.Transactional.Keywords = lower(r.Transactional.Keywords)
	r.Promotional.BulkHeaders = lower(r.Promotional.BulkHeaders)
	r.Promotional.BulkPrecedence = lower(r.Promotional.BulkPrecedence)
	r.Promotional.Keywords = lower(r.Promotional.Keywords)
	r.Business.Keywords = lower(r.Business.Keywords)
	r.FreemailDomains = lower(r.FreemailDomains)
}

// countKeywords returns how many distinct keywords occur in lowered text.
func countKeywords(lowered string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			n++
		}
	}
	return n
}
