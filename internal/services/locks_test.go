package services

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestStripedLocks_StableAndSpread(t *testing.T) {
	var l stripedLocks
	if l.For("session:abc") != l.For("session:abc") {
		t.Fatalf("same key must map to the same mutex")
	}

	seen := map[int]bool{}
	for i := 0; i < 5000; i++ {
		idx := stripe(fmt.Sprintf("session:%d", i))
		if idx < 0 || idx >= lockStripes {
			t.Fatalf("stripe index %d out of range", idx)
		}
		if l.For(fmt.Sprintf("session:%d", i)) != &l.mu[idx] {
			t.Fatalf("For disagrees with stripe for key %d", i)
		}
		seen[idx] = true
	}
	if len(seen) < lockStripes/2 {
		t.Fatalf("keys collapse onto %d stripes", len(seen))
	}
}

func TestMemoryHistory_ExpiredKeysLeaveNothingBehind(t *testing.T) {
	h := NewMemoryHistory(20, 10*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 5000; i++ {
		if err := h.Append(ctx, fmt.Sprintf("session:%d", i), exchange(i)...); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if got, _ := h.Get(ctx, fmt.Sprintf("unknown:%d", i)); got != nil {
			t.Fatalf("unknown key returned %v", got)
		}
	}
	time.Sleep(30 * time.Millisecond)
	h.entries.DeleteExpired()

	if n := h.entries.ItemCount(); n != 0 {
		t.Fatalf("cache items after expiry = %d", n)
	}
	// Locking state is the fixed stripe table regardless of keys seen.
	if n := len(h.locks.mu); n != lockStripes {
		t.Fatalf("lock table size = %d", n)
	}

	// Expired keys start over.
	if err := h.Append(ctx, "session:1", exchange(99)...); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got, _ := h.Get(ctx, "session:1"); len(got) != 2 || got[0].Content != "q99" {
		t.Fatalf("history after expiry = %+v", got)
	}
}
