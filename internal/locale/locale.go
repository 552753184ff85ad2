// Package locale holds the per-language tables shared by the prompt builder,
// the response synthesizer and the HTTP error surface. The tables are loaded
// once from an embedded YAML file and never mutated afterwards.
package locale

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"page-assist/internal/apperr"
)

// Fallback is the code used when a caller does not name a locale.
const Fallback = "en"

// GenericSite is the fallback-table key used for pages of no known type.
const GenericSite = "generic"

//go:embed locales.yaml
var embedded []byte

// Locale is one language's table.
type Locale struct {
	Code     string              `yaml:"-"`
	Language string              `yaml:"language"`
	Header   string              `yaml:"header"`
	Headers  []string            `yaml:"headers"`
	Errors   map[string]string   `yaml:"errors"`
	Suggest  map[string][]string `yaml:"fallback"`
}

// Catalog is the full, immutable set of locales.
type Catalog struct {
	order   []string
	locales map[string]*Locale
}

type catalogFile struct {
	Order   []string           `yaml:"order"`
	Locales map[string]*Locale `yaml:"locales"`
}

// Parse builds a Catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse locale tables: %w", err)
	}
	if len(f.Order) == 0 {
		return nil, fmt.Errorf("parse locale tables: empty order")
	}
	for _, code := range f.Order {
		l, ok := f.Locales[code]
		if !ok {
			return nil, fmt.Errorf("parse locale tables: %q listed in order but not defined", code)
		}
		if len(l.Headers) == 0 {
			return nil, fmt.Errorf("parse locale tables: %q has no suggestion headers", code)
		}
		l.Code = code
	}
	if _, ok := f.Locales[Fallback]; !ok {
		return nil, fmt.Errorf("parse locale tables: fallback locale %q missing", Fallback)
	}
	return &Catalog{order: f.Order, locales: f.Locales}, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embedded)
		if err != nil {
			panic(err) // embedded data is validated by tests
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Codes lists supported locale codes in header-priority order.
func (c *Catalog) Codes() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Normalize folds a language tag ("fr-CA", "pt_BR", "EN") to a supported
// code. Empty means Fallback; anything unsupported is InvalidInput.
func (c *Catalog) Normalize(tag string) (string, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return Fallback, nil
	}
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	if _, ok := c.locales[tag]; !ok {
		return "", apperr.New(apperr.InvalidInput, "locale", "unsupported locale "+tag)
	}
	return tag, nil
}

// Get returns the locale for code, or the fallback locale.
func (c *Catalog) Get(code string) *Locale {
	if l, ok := c.locales[code]; ok {
		return l
	}
	return c.locales[Fallback]
}

// Suggestions returns the static suggestion set for a site type in a locale,
// falling back to the locale's generic set and then to the fallback locale.
func (c *Catalog) Suggestions(siteType, code string) []string {
	for _, l := range []*Locale{c.Get(code), c.locales[Fallback]} {
		if s := l.Suggest[siteType]; len(s) > 0 {
			return s
		}
		if s := l.Suggest[GenericSite]; len(s) > 0 {
			return s
		}
	}
	return nil
}

// Message returns the user-facing text for an error kind in a locale.
func (c *Catalog) Message(code string, kind apperr.Kind) string {
	for _, l := range []*Locale{c.Get(code), c.locales[Fallback]} {
		if m := l.Errors[string(kind)]; m != "" {
			return m
		}
	}
	return c.locales[Fallback].Errors[string(apperr.Internal)]
}
