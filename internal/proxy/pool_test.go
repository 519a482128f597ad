package proxy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPool_Rotation(t *testing.T) {
	pool := NewPool([]string{"p1", "p2", "p3"})

	for _, want := range []string{"p1", "p2", "p3", "p1"} {
		if p := pool.Next(); p != want {
			t.Errorf("Expected %s, got %s", want, p)
		}
	}

	pool.MarkFailed("p2")

	// Should skip p2
	for _, want := range []string{"p3", "p1", "p3"} {
		if p := pool.Next(); p != want {
			t.Errorf("Expected %s, got %s", want, p)
		}
	}

	pool.MarkHealthy("p2")

	for _, want := range []string{"p1", "p2"} {
		if p := pool.Next(); p != want {
			t.Errorf("Expected %s, got %s", want, p)
		}
	}
}

func TestPool_CooldownExpires(t *testing.T) {
	now := time.Now()
	pool := NewPool([]string{"p1", "p2"})
	pool.now = func() time.Time { return now }

	pool.MarkFailed("p1")
	if p := pool.Next(); p != "p2" {
		t.Fatalf("Expected p2, got %s", p)
	}

	now = now.Add(DefaultCooldown)
	if p := pool.Next(); p != "p1" {
		t.Errorf("Expected p1 after cooldown, got %s", p)
	}
}

func TestPool_AllFailed(t *testing.T) {
	pool := NewPool([]string{"p1", "p2"})
	pool.MarkFailed("p1")
	pool.MarkFailed("p2")

	if p := pool.Next(); p == "" {
		t.Error("expected a proxy even when all are cooling down")
	}
}

func TestPool_Empty(t *testing.T) {
	var nilPool *Pool
	if nilPool.Next() != "" || nilPool.Len() != 0 {
		t.Error("nil pool should be empty")
	}
	if NewPool(nil).Next() != "" {
		t.Error("empty pool should return no proxy")
	}
}

func TestParseList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "# office\nhttp://10.0.0.1:8080\n\nsocks5://10.0.0.2:1080\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ParseList([]string{"http://a:1, http://b:2", "@" + path})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"http://a:1", "http://b:2", "http://10.0.0.1:8080", "socks5://10.0.0.2:1080"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] got %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := ParseList([]string{"@/does/not/exist"}); err == nil {
		t.Error("expected error for missing file")
	}
}
