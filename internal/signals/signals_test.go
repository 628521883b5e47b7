package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrencySpans(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"dollar", "Total due: $452.10 by Friday", []string{"$452.10"}},
		{"thousands", "Paid $1,250.00, then €30", []string{"$1,250.00", "€30"}},
		{"code prefix", "Amount USD 99.95", []string{"USD 99.95"}},
		{"code suffix", "Fee 12.50 EUR applies", []string{"12.50 EUR"}},
		{"none", "The meeting is at 10.30 in room 4", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := CurrencySpans(tt.text)
			var got []string
			for _, s := range spans {
				got = append(got, tt.text[s.Start:s.End])
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), CountCurrency(tt.text))
		})
	}
}

func TestCountDates(t *testing.T) {
	text := "Issued 2024-03-02, due 03/15/2024. Shipped March 5, 2024 and 7 Apr 2024."
	assert.Equal(t, 4, CountDates(text))
	assert.Equal(t, 0, CountDates("no dates here, only 42 and 3.14"))
}

func TestTabularRatio(t *testing.T) {
	table := "Item    Qty    Price\nWidget  2      $4.00\nGadget  1      $9.50\nThanks for your order"
	ratio := TabularRatio(table)
	assert.InDelta(t, 0.5, ratio, 0.001)

	assert.Equal(t, 0.0, TabularRatio(""))
	assert.Equal(t, 1.0, TabularRatio("| a | 1 |"))
}

func TestSpanAt(t *testing.T) {
	spans := []Span{{Start: 5, End: 12}, {Start: 20, End: 26}}

	s, ok := SpanAt(spans, 8)
	assert.True(t, ok)
	assert.Equal(t, Span{Start: 5, End: 12}, s)

	_, ok = SpanAt(spans, 5)
	assert.False(t, ok, "token start is a valid boundary")

	_, ok = SpanAt(spans, 12)
	assert.False(t, ok, "token end is a valid boundary")

	_, ok = SpanAt(spans, 15)
	assert.False(t, ok)

	s, ok = SpanAt(spans, 25)
	assert.True(t, ok)
	assert.Equal(t, 20, s.Start)
}
