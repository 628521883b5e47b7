package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// Namespace is an isolated partition of the vector index.
// Searches run within namespaces; one namespace never holds chunks of
// more than one owner.
type Namespace struct {
	// OwnerID is the owner of every chunk in the namespace.
	OwnerID string

	// Kind is the content kind of every chunk in the namespace.
	Kind ContentKind

	// Category is the category of every chunk in the namespace.
	Category Category

	// EmbedderVersion pins the embedding model. Vectors from different
	// models are never compared.
	EmbedderVersion string
}

// Key returns a stable string form. Components are path-escaped so
// owner IDs containing slashes cannot collide.
func (n Namespace) Key() string {
	return strings.Join([]string{
		url.PathEscape(n.OwnerID),
		url.PathEscape(string(n.Kind)),
		url.PathEscape(string(n.Category)),
		url.PathEscape(n.EmbedderVersion),
	}, "/")
}

// String returns the key.
func (n Namespace) String() string {
	return n.Key()
}

// ParseNamespace reverses Key.
func ParseNamespace(key string) (Namespace, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 {
		return Namespace{}, fmt.Errorf("%w: namespace key %q", ErrInvalidInput, key)
	}
	var decoded [4]string
	for i, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil {
			return Namespace{}, fmt.Errorf("%w: namespace key %q: %v", ErrInvalidInput, key, err)
		}
		decoded[i] = v
	}
	ns := Namespace{
		OwnerID:         decoded[0],
		Kind:            ContentKind(decoded[1]),
		Category:        Category(decoded[2]),
		EmbedderVersion: decoded[3],
	}
	return ns, ns.Validate()
}

// Validate checks the namespace components are consistent.
func (n Namespace) Validate() error {
	switch {
	case n.OwnerID == "":
		return fmt.Errorf("%w: namespace owner is required", ErrInvalidInput)
	case !n.Kind.IsValid():
		return fmt.Errorf("%w: namespace kind %q", ErrInvalidInput, n.Kind)
	case !n.Category.ValidFor(n.Kind):
		return fmt.Errorf("%w: category %q is not a %s category", ErrInvalidInput, n.Category, n.Kind)
	case n.EmbedderVersion == "":
		return fmt.Errorf("%w: namespace embedder version is required", ErrInvalidInput)
	}
	return nil
}

// Admits checks that a chunk may be stored in the namespace.
func (n Namespace) Admits(c Chunk) error {
	if c.OwnerID != n.OwnerID {
		return fmt.Errorf("%w: chunk %s belongs to %q, namespace to %q", ErrOwnerMismatch, c.ID, c.OwnerID, n.OwnerID)
	}
	if c.Kind != n.Kind || c.Category != n.Category {
		return fmt.Errorf("%w: chunk %s is %s/%s, namespace is %s/%s",
			ErrInvalidInput, c.ID, c.Kind, c.Category, n.Kind, n.Category)
	}
	return nil
}

// NamespaceFor returns the namespace a classified unit is stored in.
func NamespaceFor(u SourceUnit, category Category, embedderVersion string) Namespace {
	return Namespace{
		OwnerID:         u.OwnerID,
		Kind:            u.Kind,
		Category:        category,
		EmbedderVersion: embedderVersion,
	}
}
