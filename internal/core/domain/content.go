package domain

// ContentKind identifies the origin format of a source unit.
type ContentKind string

// Supported content kinds.
const (
	// KindPDF is an uploaded PDF document.
	KindPDF ContentKind = "pdf"

	// KindEmail is a message synced from a mail account.
	KindEmail ContentKind = "email"
)

// AllKinds returns every supported content kind in display order.
func AllKinds() []ContentKind {
	return []ContentKind{KindPDF, KindEmail}
}

// IsValid returns true if the content kind is recognised.
func (k ContentKind) IsValid() bool {
	return k == KindPDF || k == KindEmail
}

// String returns the string representation.
func (k ContentKind) String() string {
	return string(k)
}

// Category is the content class assigned to a unit by the classifier.
// The set is closed: every category belongs to exactly one ContentKind.
type Category string

// Document categories.
const (
	// CategoryFinancial covers invoices, statements and receipts.
	CategoryFinancial Category = "financial"

	// CategoryLongForm covers reports, manuals and other long prose.
	CategoryLongForm Category = "long_form"

	// CategoryGeneric is the fallback for documents.
	CategoryGeneric Category = "generic"
)

// Email categories.
const (
	// CategoryTransactional covers receipts, order and payment notices.
	CategoryTransactional Category = "transactional"

	// CategoryBusiness covers work correspondence.
	CategoryBusiness Category = "business"

	// CategoryPromotional covers newsletters and marketing.
	CategoryPromotional Category = "promotional"

	// CategoryPersonal is the fallback for email.
	CategoryPersonal Category = "personal"
)

var categoriesByKind = map[ContentKind][]Category{
	KindPDF:   {CategoryFinancial, CategoryLongForm, CategoryGeneric},
	KindEmail: {CategoryTransactional, CategoryBusiness, CategoryPromotional, CategoryPersonal},
}

// CategoriesFor returns the categories a unit of the given kind may receive.
func CategoriesFor(kind ContentKind) []Category {
	cats := categoriesByKind[kind]
	out := make([]Category, len(cats))
	copy(out, cats)
	return out
}

// FallbackCategory returns the category used when classification is ambiguous.
func FallbackCategory(kind ContentKind) Category {
	if kind == KindEmail {
		return CategoryPersonal
	}
	return CategoryGeneric
}

// Kind returns the content kind a category belongs to.
// Returns an empty kind for an unknown category.
func (c Category) Kind() ContentKind {
	for kind, cats := range categoriesByKind {
		for _, cat := range cats {
			if cat == c {
				return kind
			}
		}
	}
	return ""
}

// IsValid returns true if the category is recognised.
func (c Category) IsValid() bool {
	return c.Kind() != ""
}

// ValidFor returns true if the category belongs to the given kind.
func (c Category) ValidFor(kind ContentKind) bool {
	return c.Kind() == kind
}

// String returns the string representation.
func (c Category) String() string {
	return string(c)
}

// AllCategories returns every category across all kinds.
func AllCategories() []Category {
	var out []Category
	for _, kind := range AllKinds() {
		out = append(out, categoriesByKind[kind]...)
	}
	return out
}
