package lock

import (
	"context"
	"testing"
	"time"
)

func TestAcquireExcludesOtherOwnerWhileLive(t *testing.T) {
	s := NewMemoryService()
	ctx := context.Background()

	ok, err := s.Acquire(ctx, "ingest:tenant_x", "job-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed: ok=%v err=%v", ok, err)
	}

	ok, err = s.Acquire(ctx, "ingest:tenant_x", "job-2", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected second acquire to fail while first lock is live")
	}
}

func TestExpiredLockIsReclaimable(t *testing.T) {
	s := NewMemoryService()
	fixedNow := time.Now()
	s.now = func() time.Time { return fixedNow }
	ctx := context.Background()

	ok, _ := s.Acquire(ctx, "ingest:tenant_x", "job-1", time.Second)
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}

	s.now = func() time.Time { return fixedNow.Add(2 * time.Second) }
	ok, err := s.Acquire(ctx, "ingest:tenant_x", "job-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected expired lock to be reclaimable: ok=%v err=%v", ok, err)
	}
}

func TestReleaseRequiresMatchingOwner(t *testing.T) {
	s := NewMemoryService()
	ctx := context.Background()
	_, _ = s.Acquire(ctx, "ingest:tenant_x", "job-1", time.Minute)

	ok, err := s.Release(ctx, "ingest:tenant_x", "job-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected release by non-owner to fail")
	}

	ok, err = s.Release(ctx, "ingest:tenant_x", "job-1")
	if err != nil || !ok {
		t.Fatalf("expected release by owner to succeed: ok=%v err=%v", ok, err)
	}

	ok, _ = s.Acquire(ctx, "ingest:tenant_x", "job-2", time.Minute)
	if !ok {
		t.Fatalf("expected lock to be acquirable after release")
	}
}

func TestRefreshExtendsExpiryForLiveOwnerOnly(t *testing.T) {
	s := NewMemoryService()
	ctx := context.Background()
	_, _ = s.Acquire(ctx, "ingest:tenant_x", "job-1", time.Second)

	if ok, err := s.Refresh(ctx, "ingest:tenant_x", "job-2", time.Minute); err != nil || ok {
		t.Fatalf("expected refresh by non-owner to fail: ok=%v err=%v", ok, err)
	}

	if ok, err := s.Refresh(ctx, "ingest:tenant_x", "job-1", time.Minute); err != nil || !ok {
		t.Fatalf("expected refresh by owner to succeed: ok=%v err=%v", ok, err)
	}

	rec, err := s.Status(ctx, "ingest:tenant_x")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if rec.ExpiresAt.Before(time.Now().Add(30 * time.Second)) {
		t.Fatalf("expected refresh to extend expiry, got %v", rec.ExpiresAt)
	}
}

func TestStatusNotFoundIsDistinguishableFromHeldLock(t *testing.T) {
	s := NewMemoryService()
	if _, err := s.Status(context.Background(), "ingest:unknown"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentAcquireHasExactlyOneWinner(t *testing.T) {
	s := NewMemoryService()
	ctx := context.Background()

	const n = 20
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		owner := time.Now()
		go func(o time.Time) {
			ok, _ := s.Acquire(ctx, "ingest:tenant_concurrent", o.String(), time.Minute)
			results <- ok
		}(owner)
	}

	wins := 0
	for i := 0; i < n; i++ {
		if <-results {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner among %d concurrent acquires, got %d", n, wins)
	}
}
