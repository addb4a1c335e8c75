// Package catalog lists the business units and languages a job can be
// submitted for.
package catalog

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Option is one selectable value with its display label.
type Option struct {
	Value string `toml:"value"`
	Label string `toml:"label"`
}

// Catalog is the set of selectable options for the submission form.
type Catalog struct {
	Businesses []Option `toml:"business"`
	Languages  []Option `toml:"language"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		Businesses: []Option{
			{Value: "绝区零", Label: "绝区零"},
		},
		Languages: []Option{
			{Value: "all", Label: "All Languages"},
			{Value: "English(en-us)", Label: "English (en-us)"},
			{Value: "简体中文(zh-cn)", Label: "简体中文 (zh-cn)"},
			{Value: "俄罗斯语(ru-ru)", Label: "Русский (ru-ru)"},
			{Value: "日本語(ja-jp)", Label: "日本語 (ja-jp)"},
			{Value: "法语(fr-fr)", Label: "Français (fr-fr)"},
		},
	}
}

// Load reads a TOML catalog from path. An empty path yields Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a TOML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding toml: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Businesses) == 0 {
		return fmt.Errorf("at least one business is required")
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("at least one language is required")
	}
	if err := checkOptions("business", c.Businesses); err != nil {
		return err
	}
	return checkOptions("language", c.Languages)
}

func checkOptions(kind string, opts []Option) error {
	seen := make(map[string]bool, len(opts))
	for i, o := range opts {
		if o.Value == "" {
			return fmt.Errorf("%s #%d: value is required", kind, i+1)
		}
		if seen[o.Value] {
			return fmt.Errorf("%s %q listed twice", kind, o.Value)
		}
		seen[o.Value] = true
	}
	return nil
}

// HasBusiness reports whether v is a selectable business.
func (c *Catalog) HasBusiness(v string) bool { return contains(c.Businesses, v) }

// HasLanguage reports whether v is a selectable language.
func (c *Catalog) HasLanguage(v string) bool { return contains(c.Languages, v) }

// LanguageLabel returns the display label for v, or v itself.
func (c *Catalog) LanguageLabel(v string) string {
	for _, o := range c.Languages {
		if o.Value == v && o.Label != "" {
			return o.Label
		}
	}
	return v
}

func contains(opts []Option, v string) bool {
	for _, o := range opts {
		if o.Value == v {
			return true
		}
	}
	return false
}
