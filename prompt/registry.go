// Package prompt maps record kinds to the instruction text sent to the
// vision model alongside each screenshot.
package prompt

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when neither the requested kind nor the default
// kind has a registered template.
var ErrNotFound = errors.New("prompt: no template registered")

// Registry holds instruction templates keyed by record kind. Safe for
// concurrent use.
type Registry struct {
	mu          sync.RWMutex
	templates   map[string]string
	defaultKind string
}

// NewRegistry creates a Registry seeded with the built-in templates.
// defaultKind is the fallback when a requested kind has no template.
func NewRegistry(defaultKind string) *Registry {
	r := &Registry{
		templates:   make(map[string]string, len(builtinTemplates)),
		defaultKind: defaultKind,
	}
	for kind, tpl := range builtinTemplates {
		r.templates[kind] = tpl
	}
	return r
}

// Register adds or replaces the template for a kind.
func (r *Registry) Register(kind, template string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[kind] = template
}

// Resolve returns the instruction template for the kind, falling back to
// the default kind. It returns the kind whose template was actually used,
// so the caller can validate against the matching schema.
func (r *Registry) Resolve(kind string) (template, usedKind string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tpl, ok := r.templates[kind]; ok {
		return tpl, kind, nil
	}
	if tpl, ok := r.templates[r.defaultKind]; ok {
		return tpl, r.defaultKind, nil
	}
	return "", "", fmt.Errorf("%w for kind %q (default %q)", ErrNotFound, kind, r.defaultKind)
}

// builtinTemplates are the stock instruction templates. Each asks for one
// JSON object and nothing else; the extraction stage still tolerates
// surrounding prose.
var builtinTemplates = map[string]string{
	"product": `Analyze this product page screenshot and extract the following information in valid JSON format:
{
    "product_name": "Full product name",
    "price": "Current price with currency",
    "rating": "Average rating (if available, otherwise null)",
    "num_reviews": "Number of reviews (if available, otherwise null)",
    "description": "Short product description",
    "key_features": ["List of key features"],
    "availability": "In stock or not",
    "seller": "Seller name (if available, otherwise null)"
}
Make sure to return ONLY valid JSON with no additional text.`,

	"article": `Analyze this article page screenshot and extract the following information in valid JSON format:
{
    "title": "Article title",
    "author": "Author name (if available, otherwise null)",
    "date_published": "Publication date (if available, otherwise null)",
    "summary": "A brief summary of the article (2-3 sentences)",
    "main_topics": ["List of main topics covered"],
    "source": "Name of the publication or website"
}
Make sure to return ONLY valid JSON with no additional text.`,

	"real_estate": `Analyze this property listing screenshot and extract the following information in valid JSON format:
{
    "address": "Full property address",
    "price": "Listing price with currency",
    "bedrooms": "Number of bedrooms (if available, otherwise null)",
    "bathrooms": "Number of bathrooms (if available, otherwise null)",
    "area_sqft": "Floor area in square feet (if available, otherwise null)",
    "property_type": "House, apartment, condo, etc.",
    "features": ["List of notable features"],
    "agent": "Listing agent or agency (if available, otherwise null)"
}
Make sure to return ONLY valid JSON with no additional text.`,
}
