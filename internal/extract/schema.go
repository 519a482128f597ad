// Package extract maps rendered table rows to records according to a Schema.
package extract

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	urlutil "github.com/law-makers/marketscrape/internal/utils/url"
)

// Parser names a cell conversion rule
type Parser string

const (
	ParseText      Parser = "text"       // trimmed text
	ParseLower     Parser = "lower"      // trimmed text, lower-cased
	ParseFirstText Parser = "first-text" // first direct text node
	ParseAttr      Parser = "attr"       // raw attribute value
	ParseSlug      Parser = "slug"       // last path segment of an href
	ParseCurrency  Parser = "currency"   // display text + numeric side channel
	ParsePercent   Parser = "percent"    // JSON side-channel payload
	ParseMagnitude Parser = "magnitude"  // "$1.2m" style text
	ParseRank      Parser = "rank"       // number or raw text
	ParseInt       Parser = "int"        // leading integer or null
	ParseTimestamp Parser = "timestamp"  // run timestamp
)

// FieldRule describes how one record field is read from a row.
//
// The cell is addressed by index into the row's cells, or the whole row when
// Row is set. Selector narrows within that scope (first match); Attr reads an
// attribute instead of text. Fallback is searched on the whole row when the
// primary rule yields nothing.
type FieldRule struct {
	Name             string `yaml:"name"`
	Parser           Parser `yaml:"parser"`
	Cell             int    `yaml:"cell"`
	Row              bool   `yaml:"row,omitempty"`
	Selector         string `yaml:"selector,omitempty"`
	Attr             string `yaml:"attr,omitempty"`
	JSONKey          string `yaml:"json_key,omitempty"`
	FallbackSelector string `yaml:"fallback_selector,omitempty"`
	FallbackAttr     string `yaml:"fallback_attr,omitempty"`
}

// Schema is the field-extraction configuration for one kind of listing
type Schema struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// PageParam is the query parameter carrying the page number
	PageParam string `yaml:"page_param,omitempty"`
	// Container must exist before rows are read
	Container string `yaml:"container"`
	// Rows is relative to the container
	Rows string `yaml:"rows"`
	// RowStyle keeps only rows whose style attribute contains it
	RowStyle string `yaml:"row_style,omitempty"`
	Cells    string `yaml:"cells"`
	MinCells int    `yaml:"min_cells,omitempty"`
	// Key is the identity field used for deduplication
	Key       string `yaml:"key"`
	RankField string `yaml:"rank_field,omitempty"`
	// ImageField holds the image URL downloaded with --fetch-images
	ImageField string `yaml:"image_field,omitempty"`
	// Output is the file name prefix, the schema name when empty
	Output string      `yaml:"output,omitempty"`
	Fields []FieldRule `yaml:"fields"`
}

// FieldNames returns the record field set in declaration order
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field returns the rule for name
func (s *Schema) Field(name string) (FieldRule, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldRule{}, false
}

// OutputPrefix is the prefix of the files a run writes
func (s *Schema) OutputPrefix() string {
	if s.Output != "" {
		return s.Output
	}
	return s.Name
}

// RowSelector is the full selector matching rows inside the page
func (s *Schema) RowSelector() string {
	return s.Container + " " + s.Rows
}

// PageURL addresses one page of a paginated listing
func (s *Schema) PageURL(page int) string {
	return urlutil.PageURL(s.URL, s.PageParam, page)
}

// Validate checks the schema is usable
func (s *Schema) Validate() error {
	if s.URL != "" {
		if err := urlutil.ValidateURL(s.URL); err != nil {
			return err
		}
	}
	if s.Container == "" {
		return errors.New("schema container selector is required")
	}
	if s.Rows == "" {
		return errors.New("schema rows selector is required")
	}
	if s.Cells == "" {
		return errors.New("schema cells selector is required")
	}
	if len(s.Fields) == 0 {
		return errors.New("schema has no fields")
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return errors.New("schema field without a name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true

		switch f.Parser {
		case ParseText, ParseLower, ParseFirstText, ParseSlug, ParseCurrency,
			ParseMagnitude, ParseRank, ParseInt, ParseTimestamp:
		case ParseAttr:
			if f.Attr == "" {
				return fmt.Errorf("field %q: attr parser needs an attribute", f.Name)
			}
		case ParsePercent:
			if f.Attr == "" || f.JSONKey == "" {
				return fmt.Errorf("field %q: percent parser needs attr and json_key", f.Name)
			}
		default:
			return fmt.Errorf("field %q: unknown parser %q", f.Name, f.Parser)
		}
		if f.Cell < 0 {
			return fmt.Errorf("field %q: negative cell index", f.Name)
		}
	}

	for _, ref := range [][2]string{{"key", s.Key}, {"rank", s.RankField}, {"image", s.ImageField}} {
		if ref[1] == "" {
			continue
		}
		if _, ok := s.Field(ref[1]); !ok {
			return fmt.Errorf("%s field %q is not declared", ref[0], ref[1])
		}
	}
	return nil
}

// LoadSchema reads and validates a YAML schema file
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", path, err)
	}
	return &s, nil
}

// YAML renders the schema, e.g. as a starting point for a custom schema file
func (s *Schema) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}
