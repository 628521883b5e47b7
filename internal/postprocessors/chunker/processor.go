// Package chunker splits classified units into overlapping chunks using a
// per-category policy table.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/signals"
)

// DefaultMinContentLength is the minimum number of non-space bytes a unit
// needs to produce any chunk.
const DefaultMinContentLength = 20

// Processor splits unit text into chunks.
// It implements the driven.Chunker interface.
type Processor struct {
	policies   map[domain.Category]domain.ChunkPolicy
	fallback   domain.ChunkPolicy
	minContent int
}

var _ driven.Chunker = (*Processor)(nil)

// Option configures the chunker processor.
type Option func(*Processor)

// WithPolicy overrides the policy of one category. Invalid policies are ignored.
func WithPolicy(category domain.Category, policy domain.ChunkPolicy) Option {
	return func(p *Processor) {
		if policy.Valid() {
			p.policies[category] = policy
		}
	}
}

// WithPolicies overrides several category policies.
func WithPolicies(policies map[domain.Category]domain.ChunkPolicy) Option {
	return func(p *Processor) {
		for cat, policy := range policies {
			WithPolicy(cat, policy)(p)
		}
	}
}

// WithMinContentLength sets the minimum non-space length of a unit.
func WithMinContentLength(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.minContent = n
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		policies:   domain.DefaultChunkPolicies(),
		fallback:   domain.DefaultChunkPolicies()[domain.CategoryGeneric],
		minContent: DefaultMinContentLength,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// PolicyFor returns the policy used for a category.
func (p *Processor) PolicyFor(category domain.Category) domain.ChunkPolicy {
	if policy, ok := p.policies[category]; ok {
		return policy
	}
	return p.fallback
}

// Chunk splits the unit text. Units with less than the minimum content
// produce no chunks.
func (p *Processor) Chunk(unit domain.SourceUnit, cls domain.Classification) []domain.Chunk {
	if nonSpaceLen(unit.Text) < p.minContent {
		return nil
	}

	policy := p.PolicyFor(cls.Category)
	spans := split(unit.Text, policy, signals.CurrencySpans(unit.Text))

	chunks := make([]domain.Chunk, 0, len(spans))
	for seq, s := range spans {
		page := unit.PageAt(s.Start)
		chunks = append(chunks, domain.Chunk{
			ID:              domain.ChunkID(unit.ID, seq),
			SourceID:        unit.ID,
			OwnerID:         unit.OwnerID,
			Kind:            unit.Kind,
			Category:        cls.Category,
			Sequence:        seq,
			Start:           s.Start,
			End:             s.End,
			Text:            unit.Text[s.Start:s.End],
			Page:            page,
			Reference:       reference(unit, page),
			SourceArrivedAt: unit.ArrivedAt,
		})
	}
	return chunks
}

// split computes chunk boundaries. Every span is at most policy.Size bytes
// (plus a currency token in degenerate text) and at least policy.MinSize
// bytes, except when the whole text is shorter. A merged tail may exceed
// the size by less than the floor. Adjacent spans never overlap by more
// than policy.Overlap.
func split(text string, policy domain.ChunkPolicy, tokens []signals.Span) []signals.Span {
	n := len(text)
	var out []signals.Span

	start := 0
	for start < n {
		end := start + policy.Size
		if end >= n {
			end = n
		} else {
			end = breakPoint(text, start, end)
			end = avoidToken(tokens, start, end, policy)
			end = alignBack(text, end)
			if end <= start {
				end = alignForward(text, start+1)
			}
		}

		out = append(out, signals.Span{Start: start, End: end})
		if end >= n {
			break
		}

		next := end - policy.Overlap
		if tok, ok := signals.SpanAt(tokens, next); ok {
			next = tok.End
		}
		next = alignForward(text, next)
		if next <= start || next > end {
			next = end
		}
		start = next
	}

	return mergeTail(out, policy)
}

// breakPoint searches back from target, down to half the span, for a
// paragraph break, a line break, a sentence end or a space.
func breakPoint(text string, start, target int) int {
	lo := start + (target-start)/2
	window := text[lo:target]

	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return lo + i + 2
	}
	if i := strings.LastIndex(window, "\n"); i >= 0 {
		return lo + i + 1
	}
	best := -1
	for _, sep := range []string{". ", "! ", "? "} {
		if i := strings.LastIndex(window, sep); i > best {
			best = i
		}
	}
	if best >= 0 {
		return lo + best + 2
	}
	if i := strings.LastIndexAny(window, " \t"); i >= 0 {
		return lo + i + 1
	}
	return target
}

// avoidToken moves a boundary that falls inside a currency token to the
// token start, or past the token end when the start would leave the chunk
// below its floor. The second case never grows a chunk beyond its size
// by more than the token length.
func avoidToken(tokens []signals.Span, start, end int, policy domain.ChunkPolicy) int {
	tok, ok := signals.SpanAt(tokens, end)
	if !ok {
		return end
	}
	if tok.Start-start >= policy.MinSize && tok.Start > start {
		return tok.Start
	}
	return tok.End
}

// mergeTail folds a final span shorter than the floor into its predecessor.
func mergeTail(spans []signals.Span, policy domain.ChunkPolicy) []signals.Span {
	if len(spans) < 2 {
		return spans
	}
	last := spans[len(spans)-1]
	if last.End-last.Start >= policy.MinSize {
		return spans
	}
	spans[len(spans)-2].End = last.End
	return spans[:len(spans)-1]
}

// alignBack moves an offset back to the start of a UTF-8 sequence.
func alignBack(text string, i int) int {
	if i >= len(text) {
		return len(text)
	}
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// alignForward moves an offset forward to the start of a UTF-8 sequence.
func alignForward(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}

func nonSpaceLen(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n += utf8.RuneLen(r)
		}
	}
	return n
}

func reference(unit domain.SourceUnit, page int) string {
	switch {
	case unit.Kind == domain.KindEmail:
		subject := unit.Hints.Subject
		if subject == "" {
			subject = unit.Title
		}
		if unit.ArrivedAt.IsZero() {
			return subject
		}
		return fmt.Sprintf("%s, %s", subject, unit.ArrivedAt.Format("2006-01-02"))
	case page > 0:
		return fmt.Sprintf("%s p.%d", unit.Title, page)
	default:
		return unit.Title
	}
}
