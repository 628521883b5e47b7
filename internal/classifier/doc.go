// Package classifier assigns a category and confidence to source units.
//
// Documents are classified from currency density, date density, tabular
// layout and page count. Emails are classified from sender, headers and
// keyword lists loaded from a YAML rule file. Classification never fails:
// ambiguous input yields the kind's fallback category with low confidence.
package classifier
