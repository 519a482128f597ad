package extract

import (
	"fmt"
	"sort"
)

// Listing is the paginated coin table (one <tr> per coin)
func Listing() *Schema {
	return &Schema{
		Name:       "listing",
		URL:        "https://www.coingecko.com",
		PageParam:  "page",
		Container:  "table.gecko-homepage-coin-table",
		Rows:       "tbody tr",
		Cells:      "td",
		Key:        "id",
		RankField:  "market_cap_rank",
		ImageField: "image",
		Output:     "coingecko",
		Fields: []FieldRule{
			{Name: "id", Parser: ParseSlug, Cell: 2, Selector: "a", Attr: "href",
				FallbackSelector: "i[data-coin-id]", FallbackAttr: "data-coin-id"},
			{Name: "symbol", Parser: ParseLower, Cell: 2, Selector: "a div div div"},
			{Name: "name", Parser: ParseFirstText, Cell: 2, Selector: "a div div"},
			{Name: "image", Parser: ParseAttr, Cell: 2, Selector: "img", Attr: "src"},
			{Name: "current_price", Parser: ParseCurrency, Cell: 4, Selector: "span", Attr: "data-price-usd"},
			{Name: "market_cap", Parser: ParseCurrency, Cell: 10, Selector: "span", Attr: "data-price-usd"},
			{Name: "market_cap_rank", Parser: ParseRank, Cell: 1},
			{Name: "fully_diluted_variation", Parser: ParseCurrency, Cell: 11, Selector: "span", Attr: "data-price-usd"},
			{Name: "total_volume", Parser: ParseCurrency, Cell: 9, Selector: "span", Attr: "data-price-usd"},
			{Name: "price_change_percentage_24h", Parser: ParsePercent, Cell: 6, Selector: "span", Attr: "data-json", JSONKey: "usd"},
			{Name: "last_updated", Parser: ParseTimestamp, Row: true},
		},
	}
}

// Protocols is the virtualized protocol table (absolutely positioned rows)
func Protocols() *Schema {
	s := &Schema{
		Name:       "protocols",
		URL:        "https://defillama.com/protocols/prediction-market",
		Container:  "#table-wrapper",
		Rows:       `div[style*="position: absolute"]`,
		RowStyle:   "translateY",
		Cells:      `div[data-chainpage="true"]`,
		MinCells:   2,
		Key:        "name",
		RankField:  "rank",
		ImageField: "logo",
		Output:     "defillama-prediction-markets",
		Fields: []FieldRule{
			{Name: "rank", Parser: ParseInt, Cell: 0, Selector: "span.shrink-0"},
			{Name: "name", Parser: ParseText, Cell: 0, Selector: "a.text-sm"},
			{Name: "logo", Parser: ParseAttr, Cell: 0, Selector: "img", Attr: "src"},
			{Name: "chains", Parser: ParseText, Cell: 0, Selector: `span[class*="text-[0.7rem]"]`},
		},
	}

	columns := []string{
		"tvl", "volume_7d", "fees_7d", "revenue_7d", "mcap_tvl",
		"volume_30d", "fees_30d", "revenue_30d", "volume_24h", "fees_24h", "revenue_24h",
	}
	for i, name := range columns {
		s.Fields = append(s.Fields, FieldRule{Name: name, Parser: ParseMagnitude, Cell: i + 1})
	}
	return s
}

var presets = map[string]func() *Schema{
	"listing":   Listing,
	"protocols": Protocols,
}

// Preset returns a built-in schema by name
func Preset(name string) (*Schema, error) {
	fn, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q (available: %v)", name, PresetNames())
	}
	return fn(), nil
}

// PresetNames lists the built-in schemas
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
