package engine

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/law-makers/marketscrape/internal/extract"
)

func TestSplitPages(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		n          int
		want       []PageRange
	}{
		{"even", 1, 6, 3, []PageRange{{1, 2}, {3, 4}, {5, 6}}},
		{"remainder goes first", 1, 7, 3, []PageRange{{1, 3}, {4, 5}, {6, 7}}},
		{"more shards than pages", 5, 6, 4, []PageRange{{5, 5}, {6, 6}}},
		{"single", 1, 100, 1, []PageRange{{1, 100}}},
		{"zero shards", 1, 3, 0, []PageRange{{1, 3}}},
		{"empty range", 5, 4, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, SplitPages(tt.start, tt.end, tt.n)); diff != "" {
				t.Errorf("SplitPages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func withShardLimit(t *testing.T, n int) {
	t.Helper()
	orig := shardLimit
	shardLimit = func() int { return n }
	t.Cleanup(func() { shardLimit = orig })
}

func TestRunShards_PreservesPageOrder(t *testing.T) {
	withShardLimit(t, 8)
	site := newSite()
	for page := 1; page <= 6; page++ {
		site.pages[page] = pageOf(page)
	}

	opts := fastPageOptions()
	opts.MaxPage = 6
	sl := &recordingSleeper{}
	res, err := RunShards(context.Background(), site, extract.NewAssembler(testSchema()), opts, 3,
		func(p *Paginator) { p.WithSleeper(sl.Sleep) })

	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 6, res.Pages)
	assert.Equal(t, 3, res.Sessions)
	assert.Equal(t, []string{
		"p1-a", "p1-b", "p2-a", "p2-b", "p3-a", "p3-b",
		"p4-a", "p4-b", "p5-a", "p5-b", "p6-a", "p6-b",
	}, names(res.Records))
	assert.Equal(t, site.opens, site.closes)
}

func TestRunShards_AbortedShardMarksRun(t *testing.T) {
	withShardLimit(t, 8)
	site := newSite()
	for page := 1; page <= 4; page++ {
		site.pages[page] = pageOf(page)
	}
	site.failures[4] = -1

	opts := fastPageOptions()
	opts.MaxPage = 4
	opts.PageRetries = 0
	sl := &recordingSleeper{}
	res, err := RunShards(context.Background(), site, extract.NewAssembler(testSchema()), opts, 2,
		func(p *Paginator) { p.WithSleeper(sl.Sleep) })

	require.NoError(t, err)
	assert.Equal(t, StateAborted, res.State)
	assert.Error(t, res.Err)
	assert.Equal(t, []string{"p1-a", "p1-b", "p2-a", "p2-b", "p3-a", "p3-b"}, names(res.Records))
}

func TestRunShards_CapsAtMachineLimit(t *testing.T) {
	withShardLimit(t, 2)
	site := newSite()
	for page := 1; page <= 8; page++ {
		site.pages[page] = pageOf(page)
	}

	opts := fastPageOptions()
	opts.MaxPage = 8
	sl := &recordingSleeper{}
	res, err := RunShards(context.Background(), site, extract.NewAssembler(testSchema()), opts, 6,
		func(p *Paginator) { p.WithSleeper(sl.Sleep) })

	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 2, res.Sessions)
	assert.Equal(t, 2, site.opens)
	assert.LessOrEqual(t, site.maxLive, 2)
	assert.Len(t, res.Records, 16)
}

func TestShardLimit(t *testing.T) {
	n := ShardLimit()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 8)
}
