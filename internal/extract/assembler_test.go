package extract

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/law-makers/marketscrape/pkg/models"
)

const ts = "2026-01-02T03:04:05Z"

const listingHTML = `<table class="gecko-homepage-coin-table"><tbody>
<tr>
  <td></td>
  <td> 1 </td>
  <td><a href="/en/coins/bitcoin"><img src="https://img.example/btc.png"><div><div>Bitcoin <div>BTC</div></div></div></a></td>
  <td></td>
  <td><span data-price-usd="67123.45">$67,123</span></td>
  <td></td>
  <td><span data-json='{"usd":2.5}'>2.5%</span></td>
  <td></td>
  <td></td>
  <td><span data-price-usd="30000000000">$30B</span></td>
  <td><span data-price-usd="1300000000000">$1.3T</span></td>
  <td><span>$1.4T</span></td>
</tr>
<tr>
  <td></td>
  <td>2</td>
  <td><i data-coin-id="solana"></i></td>
</tr>
</tbody></table>`

func TestAssembler_ListingRow(t *testing.T) {
	a := NewAssembler(Listing())

	records, err := a.Rows(listingHTML, ts)
	require.NoError(t, err)
	require.Len(t, records, 2)

	want := map[string]any{
		"id":                          "bitcoin",
		"symbol":                      "btc",
		"name":                        "Bitcoin",
		"image":                       "https://img.example/btc.png",
		"current_price":               67123.45,
		"market_cap":                  1.3e12,
		"market_cap_rank":             1.0,
		"fully_diluted_variation":     "$1.4T",
		"total_volume":                3e10,
		"price_change_percentage_24h": 2.5,
		"last_updated":                ts,
	}
	if diff := cmp.Diff(want, records[0].Map()); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembler_MissingCellsYieldNulls(t *testing.T) {
	a := NewAssembler(Listing())

	records, err := a.Rows(listingHTML, ts)
	require.NoError(t, err)

	rec := records[1]
	assert.Equal(t, Listing().FieldNames(), rec.Fields())
	assert.Equal(t, "solana", rec.Get("id"), "identity should come from the fallback attribute")
	assert.Equal(t, 2.0, rec.Get("market_cap_rank"))
	for _, f := range []string{"symbol", "name", "image", "current_price", "market_cap", "total_volume"} {
		assert.Nil(t, rec.Get(f), f)
	}
	assert.Equal(t, ts, rec.Get("last_updated"))
}

func TestAssembler_EmptyRow(t *testing.T) {
	a := NewAssembler(Listing())
	rec := a.Assemble(nil, ts)
	for _, f := range rec.Fields() {
		assert.Nil(t, rec.Get(f), f)
	}
}

const protocolsHTML = `<div id="table-wrapper">
  <div style="position: absolute; top: 0">header</div>
  <div style="position: absolute; transform: translateY(0px)">
    <div data-chainpage="true"><span class="shrink-0">1</span><img src="https://img.example/poly.png"><a class="text-sm">Polymarket</a><span class="text-[0.7rem]">Polygon</span></div>
    <div data-chainpage="true">$1.2m</div>
    <div data-chainpage="true">$300k</div>
  </div>
  <div style="position: absolute; transform: translateY(48px)">
    <div data-chainpage="true">only one cell</div>
  </div>
</div>`

func TestAssembler_VirtualizedRows(t *testing.T) {
	a := NewAssembler(Protocols())

	records, err := a.Rows(protocolsHTML, ts)
	require.NoError(t, err)
	require.Len(t, records, 1, "header row and short rows are skipped")

	rec := records[0]
	assert.Equal(t, 1.0, rec.Get("rank"))
	assert.Equal(t, "Polymarket", rec.Get("name"))
	assert.Equal(t, "https://img.example/poly.png", rec.Get("logo"))
	assert.Equal(t, "Polygon", rec.Get("chains"))
	assert.Equal(t, 1.2e6, rec.Get("tvl"))
	assert.Equal(t, 3e5, rec.Get("volume_7d"))
	assert.Nil(t, rec.Get("fees_7d"))
	assert.Nil(t, rec.Get("revenue_24h"))
}

func TestAssembler_DeferredMagnitudes(t *testing.T) {
	a := NewAssembler(Protocols()).Deferred()

	records, err := a.Rows(protocolsHTML, ts)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "$1.2m", rec.Get("tvl"))
	assert.Equal(t, 1.0, rec.Get("rank"), "non-magnitude fields are parsed immediately")

	a.Finalize(rec)
	assert.Equal(t, 1.2e6, rec.Get("tvl"))
	assert.Equal(t, 3e5, rec.Get("volume_7d"))
	assert.Nil(t, rec.Get("fees_7d"))
}

func TestSortByRank(t *testing.T) {
	fields := []string{"name", "rank"}
	mk := func(name string, rank any) *models.Record {
		r := models.NewRecord(fields)
		r.Set("name", name)
		r.Set("rank", rank)
		return r
	}

	records := []*models.Record{
		mk("c", 3), mk("none", nil), mk("a", 1), mk("dash", "—"), mk("b", 2),
	}
	SortByRank(records, "rank")

	var got []string
	for _, r := range records {
		got = append(got, r.Get("name").(string))
	}
	assert.Equal(t, []string{"a", "b", "c", "dash", "none"}, got)
}

func BenchmarkAssembler_Rows(b *testing.B) {
	start := strings.Index(listingHTML, "<tr>")
	end := strings.Index(listingHTML, "</tr>") + len("</tr>")
	row := listingHTML[start:end]
	html := `<table class="gecko-homepage-coin-table"><tbody>` + strings.Repeat(row, 100) + `</tbody></table>`

	a := NewAssembler(Listing())
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		records, err := a.Rows(html, ts)
		if err != nil || len(records) != 100 {
			b.Fatalf("rows=%d err=%v", len(records), err)
		}
	}
}
