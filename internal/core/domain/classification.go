package domain

// Classification is the category decision for a unit.
// It is recomputed only when the unit is re-ingested.
type Classification struct {
	// Category is the assigned content class.
	Category Category

	// Confidence is in [0, 1].
	Confidence float64

	// Signals holds the feature values the decision was based on.
	Signals map[string]float64
}

// Uncertain reports whether the confidence is below the given threshold.
func (c Classification) Uncertain(threshold float64) bool {
	return c.Confidence < threshold
}
