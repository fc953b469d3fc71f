package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFixedPoolExactlyOneWins(t *testing.T) {
	e := NewEngine()
	spec := Spec{Capacity: 1, RefillPerSecond: 0}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- e.Acquire(context.Background(), "k", spec, 1)
		}()
	}
	wg.Wait()
	close(results)

	var okCount, throttledCount int
	for err := range results {
		if err == nil {
			okCount++
			continue
		}
		var te *ThrottledError
		if !errors.As(err, &te) {
			t.Fatalf("unexpected error type: %v", err)
		}
		if te.RetryAfter <= 0 {
			t.Errorf("RetryAfter = %v, want > 0", te.RetryAfter)
		}
		throttledCount++
	}
	if okCount != 1 || throttledCount != 1 {
		t.Errorf("ok=%d throttled=%d, want 1/1", okCount, throttledCount)
	}
}

func TestFixedPoolNeverRefills(t *testing.T) {
	e := NewEngine()
	spec := Spec{Capacity: 2, RefillPerSecond: 0}

	for i := 0; i < 2; i++ {
		if err := e.Acquire(context.Background(), "pool", spec, 1); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if err := e.Acquire(context.Background(), "pool", spec, 1); err == nil {
		t.Error("fixed pool refilled")
	}
}

func TestRefillAllowsLaterAcquire(t *testing.T) {
	e := NewEngine()
	spec := Spec{Capacity: 1, RefillPerSecond: 50}

	if err := e.Acquire(context.Background(), "k", spec, 1); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	// Immediately after, the bucket is empty.
	if err := e.Acquire(context.Background(), "k", spec, 1); err == nil {
		t.Fatal("second immediate acquire should throttle without a deadline")
	}
	// 50 tokens/sec refills one token in 20ms.
	time.Sleep(40 * time.Millisecond)
	if err := e.Acquire(context.Background(), "k", spec, 1); err != nil {
		t.Errorf("acquire after refill: %v", err)
	}
}

func TestAcquireWaitsWithinDeadline(t *testing.T) {
	e := NewEngine()
	spec := Spec{Capacity: 1, RefillPerSecond: 20} // one token per 50ms

	if err := e.Acquire(context.Background(), "k", spec, 1); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := e.Acquire(ctx, "k", spec, 1); err != nil {
		t.Fatalf("acquire within deadline: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("acquire returned after %v, expected a refill wait", elapsed)
	}
}

func TestAcquireRefusesWaitBeyondDeadline(t *testing.T) {
	e := NewEngine()
	spec := Spec{Capacity: 1, RefillPerSecond: 0.1} // one token per 10s

	if err := e.Acquire(context.Background(), "k", spec, 1); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := e.Acquire(ctx, "k", spec, 1)
	var te *ThrottledError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want ThrottledError", err)
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("throttle decision took %v, should be immediate", elapsed)
	}
	if te.RetryAfter < 5*time.Second {
		t.Errorf("RetryAfter = %v, want ~10s", te.RetryAfter)
	}
}

func TestAdmissionBound(t *testing.T) {
	// Law: successful acquires over [t, t+d] <= capacity + refill*d + 1.
	e := NewEngine()
	const capacity = 5
	const refill = 100.0
	spec := Spec{Capacity: capacity, RefillPerSecond: refill}

	const window = 200 * time.Millisecond
	deadline := time.Now().Add(window)
	admitted := 0
	for time.Now().Before(deadline) {
		if err := e.Acquire(context.Background(), "law", spec, 1); err == nil {
			admitted++
		}
	}

	bound := capacity + int(refill*window.Seconds()) + 1
	if admitted > bound {
		t.Errorf("admitted %d acquires, bound is %d", admitted, bound)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	e := NewEngine()
	spec := Spec{Capacity: 1, RefillPerSecond: 0}

	if err := e.Acquire(context.Background(), "a", spec, 1); err != nil {
		t.Fatal(err)
	}
	if err := e.Acquire(context.Background(), "b", spec, 1); err != nil {
		t.Errorf("key b should have its own bucket: %v", err)
	}
}

func TestSweepCollectsIdleBuckets(t *testing.T) {
	e := NewEngine()
	spec := Spec{Capacity: 1, RefillPerSecond: 0}
	_ = e.Acquire(context.Background(), "idle", spec, 1)

	if got := e.Buckets(); got != 1 {
		t.Fatalf("Buckets = %d, want 1", got)
	}

	// Fresh bucket: not collectable yet.
	if collected := e.Sweep(); collected != 0 {
		t.Errorf("Sweep collected %d fresh buckets", collected)
	}

	// Age the bucket artificially past its idle limit.
	b := e.bucket("idle", spec)
	b.mu.Lock()
	b.lastUsed = time.Now().Add(-time.Hour)
	b.mu.Unlock()

	if collected := e.Sweep(); collected != 1 {
		t.Errorf("Sweep collected %d, want 1", collected)
	}
	if got := e.Buckets(); got != 0 {
		t.Errorf("Buckets after sweep = %d, want 0", got)
	}
}

func TestExpandKey(t *testing.T) {
	vars := KeyVars{
		CallerID:   "svc-a",
		RouteID:    "r1",
		UpstreamID: "u1",
		Header: func(name string) string {
			if name == "X-Tenant" {
				return "acme"
			}
			return ""
		},
	}

	tests := []struct {
		name     string
		template string
		want     string
		wantErr  bool
	}{
		{"empty defaults to route scope", "", "u1/r1", false},
		{"caller and route", "{caller_id}:{route_id}", "svc-a:r1", false},
		{"upstream only", "up/{upstream_id}", "up/u1", false},
		{"custom header", "{upstream_id}/{header:X-Tenant}", "u1/acme", false},
		{"literal text preserved", "global", "global", false},
		{"unknown placeholder", "{nope}", "", true},
		{"unterminated", "{caller_id", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandKey(tt.template, vars)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExpandKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandKeyHeaderUnavailable(t *testing.T) {
	_, err := ExpandKey("{header:X-Tenant}", KeyVars{})
	if err == nil {
		t.Error("header placeholder without resolver should fail")
	}
}
