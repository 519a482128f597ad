package engine

import "github.com/law-makers/marketscrape/pkg/models"

// Accumulator merges snapshots of a virtualized list by identity key.
// A later record with the same key replaces the earlier one; records keep the
// position at which their key was first seen.
type Accumulator struct {
	key   string
	order []string
	byKey map[string]*models.Record
}

// NewAccumulator creates an accumulator keyed on the named field
func NewAccumulator(key string) *Accumulator {
	return &Accumulator{
		key:   key,
		byKey: make(map[string]*models.Record),
	}
}

// Merge adds records and returns how many keys were new. Records without a
// key are dropped.
func (a *Accumulator) Merge(records []*models.Record) int {
	added := 0
	for _, rec := range records {
		k := rec.Key(a.key)
		if k == "" {
			continue
		}
		if _, ok := a.byKey[k]; !ok {
			a.order = append(a.order, k)
			added++
		}
		a.byKey[k] = rec
	}
	return added
}

// Len is the number of distinct keys
func (a *Accumulator) Len() int {
	return len(a.order)
}

// Records returns the accumulated records in first-seen order
func (a *Accumulator) Records() []*models.Record {
	out := make([]*models.Record, 0, len(a.order))
	for _, k := range a.order {
		out = append(out, a.byKey[k])
	}
	return out
}
