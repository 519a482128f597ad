package extract

import (
	"sort"

	"github.com/law-makers/marketscrape/pkg/models"
)

// SortByRank orders records by a rank field ascending. Numeric ranks come
// first, then non-numeric text, then missing ranks. Ties keep their order.
func SortByRank(records []*models.Record, field string) {
	if field == "" {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		ci, vi := rankClass(records[i], field)
		cj, vj := rankClass(records[j], field)
		if ci != cj {
			return ci < cj
		}
		return ci == 0 && vi < vj
	})
}

func rankClass(r *models.Record, field string) (int, float64) {
	if n, ok := r.Number(field); ok {
		return 0, n
	}
	if r.Get(field) == nil {
		return 2, 0
	}
	return 1, 0
}
