package assets

import (
	"context"
	"net/http"
	"sync/atomic"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/law-makers/marketscrape/internal/metrics"
	"github.com/law-makers/marketscrape/pkg/models"
)

func record(name, logo string) *models.Record {
	r := models.NewRecord([]string{"name", "logo"})
	r.Set("name", name)
	if logo != "" {
		r.Set("logo", logo)
	}
	return r
}

func TestJobs(t *testing.T) {
	records := []*models.Record{
		record("Polymarket", "/icons/poly.png"),
		record("Azuro", "https://cdn.example.com/azuro.webp"),
		record("Dup", "https://cdn.example.com/azuro.webp"),
		record("Inline", "data:image/png;base64,AAAA"),
		record("None", ""),
	}

	jobs := Jobs(records, "name", "logo", "https://defillama.com/protocols")
	if len(jobs) != 2 {
		t.Fatalf("jobs = %+v", jobs)
	}
	if jobs[0].URL != "https://defillama.com/icons/poly.png" || jobs[0].Key != "Polymarket" {
		t.Errorf("job 0 = %+v", jobs[0])
	}
	if jobs[1].Key != "Azuro" {
		t.Errorf("job 1 = %+v", jobs[1])
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		key, url, ctype, want string
	}{
		{"bitcoin", "https://x.test/coins/images/1/small/bitcoin.PNG?1696501400", "", "bitcoin.png"},
		{"eth", "https://x.test/img", "image/webp; charset=binary", "eth.webp"},
		{"../../etc/passwd", "https://x.test/a.svg", "", "____etc_passwd.svg"},
		{"odd", "https://x.test/img", "text/html", "odd"},
	}
	for _, tt := range tests {
		got := FileName(tt.key, tt.url, tt.ctype)
		if strings.ContainsAny(got, `/\`) {
			t.Errorf("FileName(%q) = %q contains a separator", tt.key, got)
			continue
		}
		if got != tt.want {
			t.Errorf("FileName(%q, %q) = %q, want %q", tt.key, tt.url, got, tt.want)
		}
	}
}

func TestFetchAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		time.Sleep(5 * time.Millisecond)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png:" + r.URL.Path))
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "images")
	m := metrics.New()
	f := New(Options{Dir: dir, Concurrency: 2, UserAgent: "Test/1.0", Metrics: m})

	jobs := []Job{
		{Key: "a", URL: server.URL + "/a.png"},
		{Key: "b", URL: server.URL + "/b"},
		{Key: "c", URL: server.URL + "/missing.png"},
	}
	results := f.FetchAll(context.Background(), jobs)
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })

	for _, r := range results[:2] {
		if r.Err != nil {
			t.Fatalf("%s failed: %v", r.Key, r.Err)
		}
		data, err := os.ReadFile(r.FilePath)
		if err != nil {
			t.Fatal(err)
		}
		if r.Size != int64(len(data)) || !strings.HasPrefix(string(data), "png:") {
			t.Errorf("%s: size=%d data=%q", r.Key, r.Size, data)
		}
	}
	if filepath.Base(results[1].FilePath) != "b.png" {
		t.Errorf("content type extension not applied: %s", results[1].FilePath)
	}
	if results[2].Err == nil {
		t.Error("404 should fail")
	}

	if got := testutil.ToFloat64(m.AssetsFetched.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok downloads = %v", got)
	}
	if got := testutil.ToFloat64(m.AssetsFetched.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed downloads = %v", got)
	}
}

func TestFetchAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Options{Dir: t.TempDir()})
	results := f.FetchAll(ctx, []Job{{Key: "a", URL: "http://127.0.0.1:1/a.png"}})
	if len(results) != 0 {
		t.Errorf("cancelled run fetched %d", len(results))
	}
}

func TestDownload_RetriesThrottledResponses(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone.png":
			calls.Add(1)
			http.NotFound(w, r)
		default:
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("png"))
		}
	}))
	defer server.Close()

	var waits []time.Duration
	f := New(Options{
		Dir:     t.TempDir(),
		Backoff: 100 * time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return ctx.Err()
		},
	})

	res := f.Download(context.Background(), Job{Key: "logo", URL: server.URL + "/logo.png"})
	if res.Err != nil {
		t.Fatalf("download failed: %v", res.Err)
	}
	if res.Size != 3 || calls.Load() != 3 {
		t.Errorf("size=%d calls=%d", res.Size, calls.Load())
	}
	if len(waits) != 2 || waits[0] != 100*time.Millisecond || waits[1] != 200*time.Millisecond {
		t.Errorf("waits = %v, want exponential backoff", waits)
	}

	calls.Store(0)
	res = f.Download(context.Background(), Job{Key: "gone", URL: server.URL + "/gone.png"})
	if res.Err == nil || calls.Load() != 1 {
		t.Errorf("404 should fail without retry: err=%v calls=%d", res.Err, calls.Load())
	}
}
