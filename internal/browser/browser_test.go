package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/law-makers/marketscrape/internal/engine"
	"github.com/law-makers/marketscrape/internal/extract"
	"github.com/law-makers/marketscrape/internal/proxy"
)

func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Chrome test in short mode")
	}
	if FindChrome("") == "" {
		t.Skip("Chrome not installed")
	}
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Options{})
	if m.opts.Width != 1400 || m.opts.Height != 900 {
		t.Errorf("viewport = %dx%d", m.opts.Width, m.opts.Height)
	}
	if m.opts.NavTimeout != 60*time.Second || m.opts.OpTimeout != 30*time.Second {
		t.Errorf("timeouts = %s/%s", m.opts.NavTimeout, m.opts.OpTimeout)
	}
}

func TestAllocatorOptions_Proxy(t *testing.T) {
	m := NewManager(Options{Headless: true, Proxies: proxy.NewPool([]string{"http://127.0.0.1:3128"})})
	without := len(m.allocatorOptions(""))
	with := len(m.allocatorOptions("http://127.0.0.1:3128"))
	if with != without+1 {
		t.Errorf("proxy should add one allocator option: %d vs %d", with, without)
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	closes := 0
	s := &Session{
		browserCancel: func() { closes++ },
		allocCancel:   func() {},
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if closes != 1 {
		t.Errorf("browser cancelled %d times, want 1", closes)
	}

	if _, err := s.NewView(context.Background()); !errors.Is(err, engine.ErrSessionClosed) {
		t.Errorf("NewView after Close: %v", err)
	}
}

func listingServer(pages int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "text/html")
		if page < 1 || page > pages {
			fmt.Fprint(w, `<html><body><p>nothing here</p></body></html>`)
			return
		}
		fmt.Fprintf(w, `<html><body><table id="t"><tbody>
<tr><td>%d</td><td>coin-%d</td><td>$%dk</td></tr>
</tbody></table>
</body></html>`, page, page, page)
	}))
}

func testSchema(url string) *extract.Schema {
	return &extract.Schema{
		Name:      "test",
		URL:       url,
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

func TestView_ReadsRenderedTable(t *testing.T) {
	requireChrome(t)

	srv := listingServer(1)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	m := NewManager(Options{Headless: true, OpTimeout: 10 * time.Second, Headers: map[string]string{"X-Test": "1"}})
	sess, err := m.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	view, err := sess.NewView(ctx)
	if err != nil {
		t.Fatalf("NewView failed: %v", err)
	}

	if err := view.Navigate(ctx, srv.URL+"?page=1"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	ok, err := view.Exists(ctx, "#t")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	missing, err := view.Exists(ctx, "#nope")
	if err != nil || missing {
		t.Fatalf("Exists(#nope) = %v, %v", missing, err)
	}
	if err := view.WaitVisible(ctx, "#t tr"); err != nil {
		t.Fatalf("WaitVisible failed: %v", err)
	}
	html, err := view.OuterHTML(ctx, "#t")
	if err != nil {
		t.Fatalf("OuterHTML failed: %v", err)
	}

	rows, err := extract.NewAssembler(testSchema(srv.URL)).Rows(html, "")
	if err != nil || len(rows) != 1 {
		t.Fatalf("rows = %d, %v", len(rows), err)
	}
	if got := rows[0].Get("volume"); got != 1000.0 {
		t.Errorf("volume = %v", got)
	}
}

func TestPaginator_WithChrome(t *testing.T) {
	requireChrome(t)

	srv := listingServer(3)
	defer srv.Close()

	opts := engine.PageOptions{
		StartPage:        1,
		MaxPage:          10,
		RecycleInterval:  2,
		PageRetries:      1,
		FailureThreshold: 2,
		SettleDelay:      100 * time.Millisecond,
	}
	m := NewManager(Options{Headless: true, OpTimeout: 10 * time.Second})
	p := engine.NewPaginator(m, extract.NewAssembler(testSchema(srv.URL)), opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.State != engine.StateDone || len(res.Records) != 3 {
		t.Fatalf("state=%s rows=%d err=%v", res.State, len(res.Records), res.Err)
	}
	if res.Sessions != 2 {
		t.Errorf("sessions = %d, want 2", res.Sessions)
	}
}
