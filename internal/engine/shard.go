package engine

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/law-makers/marketscrape/internal/extract"
)

// PageRange is an inclusive range of pages
type PageRange struct {
	Start int
	End   int
}

// SplitPages divides [start, end] into at most n contiguous, disjoint ranges
// of near-equal size, in page order
func SplitPages(start, end, n int) []PageRange {
	total := end - start + 1
	if total <= 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > total {
		n = total
	}

	ranges := make([]PageRange, 0, n)
	size, rem := total/n, total%n
	cursor := start
	for i := 0; i < n; i++ {
		span := size
		if i < rem {
			span++
		}
		ranges = append(ranges, PageRange{Start: cursor, End: cursor + span - 1})
		cursor += span
	}
	return ranges
}

// shardLimit is replaced in tests
var shardLimit = ShardLimit

// ShardLimit caps the number of concurrent browser sessions based on CPU and
// memory
func ShardLimit() int {
	numCPU := runtime.NumCPU()
	limit := numCPU

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	availMB := (m.Sys - m.Alloc) / 1024 / 1024

	// Assume ~300MB per Chrome instance
	maxByMemory := int(availMB / 300)

	if limit > 8 {
		limit = 8
	}
	if maxByMemory > 0 && maxByMemory < limit {
		return maxByMemory
	}
	if limit < 1 {
		return 1
	}
	return limit
}

// RunShards runs one paginator per page range concurrently, each with its own
// session. Records are concatenated in shard order so page order holds. The
// run is Done only when every shard is Done. configure, when set, is applied
// to every shard's paginator (metrics, progress).
func RunShards(ctx context.Context, opener Opener, asm *extract.Assembler, opts PageOptions, shards int, configure func(*Paginator)) (*Result, error) {
	if limit := shardLimit(); shards > limit {
		log.Warn().Int("requested", shards).Int("limit", limit).Msg("Too many shards for this machine, capping")
		shards = limit
	}
	ranges := SplitPages(opts.StartPage, opts.MaxPage, shards)
	if len(ranges) <= 1 {
		p := NewPaginator(opener, asm, opts)
		if configure != nil {
			configure(p)
		}
		return p.Run(ctx)
	}

	log.Info().Int("shards", len(ranges)).Msg("Running sharded pagination")

	start := time.Now()
	results := make([]*Result, len(ranges))
	errs := make([]error, len(ranges))

	var wg sync.WaitGroup
	for i, r := range ranges {
		wg.Add(1)
		go func(i int, r PageRange) {
			defer wg.Done()

			o := opts
			o.StartPage, o.MaxPage = r.Start, r.End
			p := NewPaginator(opener, asm, o)
			if configure != nil {
				configure(p)
			}
			results[i], errs[i] = p.Run(ctx)
		}(i, r)
	}
	wg.Wait()

	merged := &Result{State: StateDone, Elapsed: time.Since(start)}
	for i, res := range results {
		merged.Records = append(merged.Records, res.Records...)
		merged.Pages += res.Pages
		merged.Sessions += res.Sessions
		merged.LastPage = res.LastPage
		if res.Failures > merged.Failures {
			merged.Failures = res.Failures
		}
		if res.State == StateAborted {
			merged.State = StateAborted
			if merged.Err == nil {
				merged.Err = res.Err
			}
		}
		log.Debug().
			Int("shard", i).
			Int("start", ranges[i].Start).
			Int("end", ranges[i].End).
			Str("state", res.State.String()).
			Int("rows", len(res.Records)).
			Msg("Shard finished")
	}

	return merged, errors.Join(errs...)
}
