package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/marketscrape/internal/parse"
	"github.com/law-makers/marketscrape/pkg/models"
)

// Assembler builds records from rendered rows following a Schema
type Assembler struct {
	schema *Schema
	fields []string
	// deferred keeps magnitude fields as display text until Finalize
	deferred bool
}

// NewAssembler creates an assembler for s
func NewAssembler(s *Schema) *Assembler {
	return &Assembler{
		schema: s,
		fields: s.FieldNames(),
	}
}

// Deferred returns a copy that leaves magnitude fields as display text
func (a *Assembler) Deferred() *Assembler {
	c := *a
	c.deferred = true
	return &c
}

// Schema returns the schema the assembler follows
func (a *Assembler) Schema() *Schema {
	return a.schema
}

// Rows parses the outer HTML of a rendered container and assembles every row
// that passes the schema's row filters
func (a *Assembler) Rows(containerHTML, timestamp string) ([]*models.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(containerHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse container HTML: %w", err)
	}

	root := doc.Find(a.schema.Container).First()
	if root.Length() == 0 {
		root = doc.Selection
	}

	var records []*models.Record
	root.Find(a.schema.Rows).Each(func(i int, row *goquery.Selection) {
		if a.schema.RowStyle != "" {
			style, _ := row.Attr("style")
			if !strings.Contains(style, a.schema.RowStyle) {
				return
			}
		}
		if a.schema.MinCells > 0 && row.Find(a.schema.Cells).Length() < a.schema.MinCells {
			return
		}
		records = append(records, a.Assemble(row, timestamp))
	})

	return records, nil
}

// Assemble maps one row to a record. Fields are read independently; a field
// that cannot be read stays null.
func (a *Assembler) Assemble(row *goquery.Selection, timestamp string) *models.Record {
	rec := models.NewRecord(a.fields)
	if row == nil || row.Length() == 0 {
		return rec
	}

	cells := row.Find(a.schema.Cells)
	for _, rule := range a.schema.Fields {
		rec.Set(rule.Name, a.field(row, cells, rule, timestamp))
	}
	return rec
}

// Finalize converts deferred magnitude text into numbers
func (a *Assembler) Finalize(rec *models.Record) {
	for _, rule := range a.schema.Fields {
		if rule.Parser != ParseMagnitude {
			continue
		}
		if s, ok := rec.Get(rule.Name).(string); ok {
			rec.Set(rule.Name, parse.Magnitude(s))
		}
	}
}

func (a *Assembler) field(row, cells *goquery.Selection, rule FieldRule, timestamp string) (v any) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Str("field", rule.Name).Interface("panic", r).Msg("Field extraction failed")
			v = nil
		}
	}()

	if rule.Parser == ParseTimestamp {
		return parse.Text(timestamp)
	}

	scope := row
	if !rule.Row {
		if rule.Cell >= cells.Length() {
			scope = nil
		} else {
			scope = cells.Eq(rule.Cell)
		}
	}

	v = a.read(scoped(scope, rule.Selector), rule)
	if v == nil && rule.FallbackSelector != "" {
		fb := scoped(row, rule.FallbackSelector)
		if rule.FallbackAttr != "" {
			v = parse.Text(attr(fb, rule.FallbackAttr))
		} else {
			v = parse.Text(text(fb))
		}
	}
	return v
}

func (a *Assembler) read(target *goquery.Selection, rule FieldRule) any {
	if target == nil {
		return nil
	}

	source := func() string {
		if rule.Attr != "" {
			return attr(target, rule.Attr)
		}
		return text(target)
	}

	switch rule.Parser {
	case ParseText:
		return parse.Text(source())
	case ParseLower:
		return parse.Lower(source())
	case ParseFirstText:
		return parse.Text(firstText(target))
	case ParseAttr:
		return parse.Text(attr(target, rule.Attr))
	case ParseSlug:
		return parse.Slug(source())
	case ParseCurrency:
		return parse.Currency(text(target), attr(target, rule.Attr))
	case ParsePercent:
		return parse.Percent(text(target), attr(target, rule.Attr), rule.JSONKey)
	case ParseMagnitude:
		if a.deferred {
			return parse.Text(source())
		}
		return parse.Magnitude(source())
	case ParseRank:
		return parse.Rank(source())
	case ParseInt:
		return parse.Int(source())
	default:
		return nil
	}
}
