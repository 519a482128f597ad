package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestHostLimiter_NilNeverBlocks(t *testing.T) {
	var hl *HostLimiter
	if err := hl.Wait(context.Background(), "https://example.com"); err != nil {
		t.Fatal(err)
	}
	if NewHostLimiter(0, 1) != nil {
		t.Error("zero rate should disable limiting")
	}
}

func TestHostLimiter_PerHostBuckets(t *testing.T) {
	hl := NewHostLimiter(0.001, 1)

	if err := hl.Wait(context.Background(), "https://a.example.com/x"); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := hl.Wait(ctx, "https://a.example.com/y"); err == nil {
		t.Error("second request to the same host should wait past the deadline")
	}
	if err := hl.Wait(ctx, "https://b.example.com/"); err != nil {
		t.Errorf("other hosts have their own bucket: %v", err)
	}
}
