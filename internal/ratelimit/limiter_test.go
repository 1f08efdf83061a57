// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: August 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// TestLimiterBurst verifies that a fresh limiter admits its full burst
// capacity without blocking, then makes the next caller wait for refill.
func TestLimiterBurst(t *testing.T) {
	l := New(3, 100, "test", "unit")

	start := time.Now()
	for i := 0; i < 3; i++ {
		l.Acquire()
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("burst admissions took %v, want immediate", elapsed)
	}

	start = time.Now()
	l.Acquire()
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("post-burst admission took %v, want a refill wait", elapsed)
	}
}

// TestLimiterFIFO verifies arrival-order admission under contention:
// waiters staggered into the queue come out in the order they arrived.
func TestLimiterFIFO(t *testing.T) {
	l := New(1, 50, "test", "unit")
	l.Acquire() // drain the burst token

	const n = 5
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			l.Acquire()
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}(i)
		// Stagger arrivals so queue order is deterministic.
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	for i, id := range order {
		if id != i {
			t.Fatalf("admission order = %v, want sequential", order)
		}
	}
}

// TestNotifyRetryAfter verifies vendor pushback semantics: the bucket
// drains, admission honors the deadline, and overlapping pushbacks keep the
// maximum deadline rather than summing.
func TestNotifyRetryAfter(t *testing.T) {
	t.Run("DrainsAndDelays", func(t *testing.T) {
		l := New(5, 1000, "test", "unit")
		l.NotifyRetryAfter(60 * time.Millisecond)

		start := time.Now()
		l.Acquire()
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Errorf("admission after pushback took %v, want >= ~60ms", elapsed)
		}
	})

	t.Run("OverlappingKeepsMax", func(t *testing.T) {
		l := New(5, 1000, "test", "unit")
		l.NotifyRetryAfter(80 * time.Millisecond)
		l.NotifyRetryAfter(20 * time.Millisecond)

		l.mu.Lock()
		deadline := l.notBefore
		l.mu.Unlock()

		want := time.Now().Add(60 * time.Millisecond)
		if deadline.Before(want) {
			t.Errorf("deadline shrank: %v, want at least %v", deadline, want)
		}
		if deadline.After(time.Now().Add(110 * time.Millisecond)) {
			t.Errorf("deadlines summed: %v", deadline)
		}
	})

	t.Run("NonPositiveIgnored", func(t *testing.T) {
		l := New(1, 1000, "test", "unit")
		l.NotifyRetryAfter(0)
		start := time.Now()
		l.Acquire()
		if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
			t.Errorf("zero pushback delayed admission by %v", elapsed)
		}
	})
}

// TestAcquireContext verifies cooperative cancellation: an expired context
// unblocks the waiter with the context error and does not wedge the queue.
func TestAcquireContext(t *testing.T) {
	l := New(1, 0.5, "test", "unit")
	l.Acquire() // next token is ~2s away

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.AcquireContext(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("AcquireContext = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("cancellation took %v, want prompt", elapsed)
	}

	// A cancelled head must not block the next waiter forever.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel2()
	if err := l.AcquireContext(ctx2); err != nil {
		t.Fatalf("follow-up acquire after cancellation: %v", err)
	}
}

// TestWaitTotals verifies the backpressure counters move only for waits.
func TestWaitTotals(t *testing.T) {
	l := New(1, 100, "test", "unit")

	l.Acquire() // burst, no wait
	if count, _ := l.WaitTotals(); count != 0 {
		t.Fatalf("waits after burst = %d, want 0", count)
	}

	l.Acquire() // must wait for refill
	count, total := l.WaitTotals()
	if count != 1 {
		t.Errorf("waits = %d, want 1", count)
	}
	if total <= 0 {
		t.Errorf("wait duration = %v, want > 0", total)
	}
}

// TestNewClampsParams verifies degenerate constructor inputs are clamped.
func TestNewClampsParams(t *testing.T) {
	l := New(0, -1, "test", "unit")
	if l.capacity < 1 || l.refillRate <= 0 {
		t.Errorf("clamping failed: capacity=%v refill=%v", l.capacity, l.refillRate)
	}
}
