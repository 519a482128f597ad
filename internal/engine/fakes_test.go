package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/law-makers/marketscrape/internal/extract"
)

var errNav = errors.New("net::ERR_CONNECTION_RESET")

func testSchema() *extract.Schema {
	return &extract.Schema{
		Name:      "test",
		URL:       "https://example.com/list",
		PageParam: "page",
		Container: "#t",
		Rows:      "tr",
		Cells:     "td",
		Key:       "name",
		RankField: "rank",
		Fields: []extract.FieldRule{
			{Name: "rank", Parser: extract.ParseRank, Cell: 0},
			{Name: "name", Parser: extract.ParseText, Cell: 1},
			{Name: "volume", Parser: extract.ParseMagnitude, Cell: 2},
		},
	}
}

// table renders rows of (rank, name, volume) cells inside the test container
func table(rows ...[3]string) string {
	var b strings.Builder
	b.WriteString(`<table id="t"><tbody>`)
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>", r[0], r[1], r[2])
	}
	b.WriteString(`</tbody></table>`)
	return b.String()
}

// pageOf renders two rows for a page
func pageOf(page int) string {
	return table(
		[3]string{strconv.Itoa(page*10 + 1), fmt.Sprintf("p%d-a", page), "$1k"},
		[3]string{strconv.Itoa(page*10 + 2), fmt.Sprintf("p%d-b", page), "$2k"},
	)
}

// fakeSite is a scripted website shared by every session a fakeOpener opens
type fakeSite struct {
	mu sync.Mutex

	// pages maps page number to container HTML; a missing page has no container
	pages map[int]string
	// failures is the number of remaining navigation failures per page; -1 fails forever
	failures map[int]int
	// navErr replaces errNav for failing navigations when set
	navErr error

	// frames are successive snapshots of a virtualized list
	frames   []string
	snapshot int
	// advanceErrAt fails the n-th Advance call overall (1-based), 0 never
	advanceErrAt int
	advances     int

	openErr     error
	opens       int
	closes      int
	live        int
	maxLive     int
	navigations []int
}

func newSite() *fakeSite {
	return &fakeSite{
		pages:    make(map[int]string),
		failures: make(map[int]int),
	}
}

func (s *fakeSite) Open(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opens++
	s.live++
	if s.live > s.maxLive {
		s.maxLive = s.live
	}
	return &fakeSession{site: s}, nil
}

func (s *fakeSite) navigated(page int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, p := range s.navigations {
		if p == page {
			out = append(out, p)
		}
	}
	return out
}

type fakeSession struct {
	site   *fakeSite
	closed bool
}

func (f *fakeSession) NewView(ctx context.Context) (View, error) {
	return &fakeView{site: f.site}, nil
}

func (f *fakeSession) Close() error {
	f.site.mu.Lock()
	defer f.site.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.site.closes++
	f.site.live--
	return nil
}

type fakeView struct {
	site *fakeSite
	page int
}

func (v *fakeView) Navigate(ctx context.Context, rawURL string) error {
	page := 0
	if u, err := url.Parse(rawURL); err == nil {
		page, _ = strconv.Atoi(u.Query().Get("page"))
	}
	v.page = page

	s := v.site
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigations = append(s.navigations, page)
	fail := errNav
	if s.navErr != nil {
		fail = s.navErr
	}
	switch n := s.failures[page]; {
	case n < 0:
		return fail
	case n > 0:
		s.failures[page] = n - 1
		return fail
	}
	return nil
}

func (v *fakeView) Exists(ctx context.Context, selector string) (bool, error) {
	v.site.mu.Lock()
	defer v.site.mu.Unlock()
	_, ok := v.site.pages[v.page]
	return ok, nil
}

func (v *fakeView) WaitVisible(ctx context.Context, selector string) error {
	return nil
}

func (v *fakeView) OuterHTML(ctx context.Context, selector string) (string, error) {
	s := v.site
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) > 0 {
		i := s.snapshot
		if i >= len(s.frames) {
			i = len(s.frames) - 1
		}
		s.snapshot++
		return s.frames[i], nil
	}
	return s.pages[v.page], nil
}

func (v *fakeView) Click(ctx context.Context, selector string) error {
	return nil
}

func (v *fakeView) Advance(ctx context.Context) error {
	s := v.site
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advances++
	if s.advanceErrAt > 0 && s.advances == s.advanceErrAt {
		return errors.New("target closed")
	}
	return nil
}

// recordingSleeper returns instantly and remembers every requested wait
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.waits {
		if w == d {
			n++
		}
	}
	return n
}

// fastPageOptions uses distinct durations so waits can be told apart
func fastPageOptions() PageOptions {
	return PageOptions{
		StartPage:        1,
		MaxPage:          100,
		RecycleInterval:  10,
		PageRetries:      2,
		FailureThreshold: 3,
		RetryCooldown:    5 * time.Second,
		FailureCooldown:  10 * time.Second,
		SettleDelay:      3 * time.Second,
		DelayMin:         2000 * time.Millisecond,
		DelayMax:         2999 * time.Millisecond,
	}
}
