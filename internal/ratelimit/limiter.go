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

// Package ratelimit provides the per-vendor token-bucket admission gate.
//
// One Limiter instance is shared by every worker talking to the same vendor.
// Admission is FIFO: under contention, callers are admitted in arrival
// order. The bucket refills lazily on access rather than on a ticker, so an
// idle limiter costs nothing. Vendor pushback (HTTP 429 Retry-After) drains
// the bucket and imposes a global not-before deadline; overlapping pushbacks
// extend to the maximum deadline, never sum.
package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Limiter is a token-bucket gate with FIFO admission.
type Limiter struct {
	mu sync.Mutex

	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	last       time.Time // last lazy-refill instant
	notBefore  time.Time // pushback deadline; no admission before it

	// queue holds *waiter in arrival order. Only the head may take a token;
	// everyone else parks until promoted.
	queue *list.List

	provider string
	mode     string

	waits        int64
	waitDuration time.Duration

	now func() time.Time // test hook
}

type waiter struct {
	ready chan struct{} // poked when the waiter becomes head or conditions change
}

// New creates a limiter with the given burst capacity and steady refill
// rate. The {provider, mode} label pair feeds the wait metrics.
func New(capacity float64, refillPerSec float64, provider, mode string) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	if refillPerSec <= 0 {
		refillPerSec = 1
	}
	now := time.Now()
	return &Limiter{
		capacity:   capacity,
		refillRate: refillPerSec,
		tokens:     capacity,
		last:       now,
		queue:      list.New(),
		provider:   provider,
		mode:       mode,
		now:        time.Now,
	}
}

// Acquire blocks until one token is admitted. It is the parallel-thread
// entry point; semantics match AcquireContext with a background context.
func (l *Limiter) Acquire() {
	_ = l.AcquireContext(context.Background())
}

// AcquireContext suspends cooperatively until one token is admitted or the
// context ends. It returns the context error when the caller's deadline
// expires or it is cancelled while waiting; admission itself never fails.
func (l *Limiter) AcquireContext(ctx context.Context) error {
	l.mu.Lock()
	w := &waiter{ready: make(chan struct{}, 1)}
	el := l.queue.PushBack(w)

	var waited bool
	start := l.now()
	for {
		if l.queue.Front() == el {
			l.refillLocked()
			now := l.now()
			if !now.Before(l.notBefore) && l.tokens >= 1 {
				l.tokens--
				l.queue.Remove(el)
				l.pokeHeadLocked()
				if waited {
					l.waits++
					d := now.Sub(start)
					l.waitDuration += d
					observeWait(l.provider, l.mode, d)
				}
				l.mu.Unlock()
				return nil
			}
			// Head but no token yet: sleep until the earliest instant a
			// token can exist, then re-check.
			wake := l.nextReadyLocked(now)
			l.mu.Unlock()
			waited = true

			t := time.NewTimer(wake.Sub(now))
			select {
			case <-ctx.Done():
				t.Stop()
				l.abandon(el)
				return ctx.Err()
			case <-t.C:
			case <-w.ready:
				t.Stop()
			}
			l.mu.Lock()
			continue
		}

		// Not head: park until promoted.
		l.mu.Unlock()
		waited = true
		select {
		case <-ctx.Done():
			l.abandon(el)
			return ctx.Err()
		case <-w.ready:
		}
		l.mu.Lock()
	}
}

// NotifyRetryAfter reacts to explicit vendor pushback: the bucket drains and
// every caller, current and new, waits at least d before the next admission.
// Concurrent pushbacks keep the furthest deadline.
func (l *Limiter) NotifyRetryAfter(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	l.refillLocked()
	l.tokens = 0
	deadline := l.now().Add(d)
	if deadline.After(l.notBefore) {
		l.notBefore = deadline
	}
	l.pokeHeadLocked()
	l.mu.Unlock()
}

// WaitTotals snapshots how many acquisitions had to wait and the summed wait
// time. The coordinator reads this to drive backpressure.
func (l *Limiter) WaitTotals() (count int64, total time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waits, l.waitDuration
}

// Provider returns the vendor label the limiter was built with.
func (l *Limiter) Provider() string { return l.provider }

// refillLocked applies the lazy refill. Caller holds mu.
func (l *Limiter) refillLocked() {
	now := l.now()
	elapsed := now.Sub(l.last).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now
}

// nextReadyLocked computes the earliest instant at which the head could be
// admitted: after the pushback deadline and after enough refill for one
// token. Caller holds mu.
func (l *Limiter) nextReadyLocked(now time.Time) time.Time {
	wake := now
	if l.tokens < 1 {
		deficit := 1 - l.tokens
		wake = now.Add(time.Duration(deficit / l.refillRate * float64(time.Second)))
	}
	if l.notBefore.After(wake) {
		wake = l.notBefore
	}
	if !wake.After(now) {
		// Guard against a zero sleep spinning the head.
		wake = now.Add(time.Millisecond)
	}
	return wake
}

// pokeHeadLocked nudges the current head so it re-evaluates admission.
// Caller holds mu.
func (l *Limiter) pokeHeadLocked() {
	if front := l.queue.Front(); front != nil {
		w := front.Value.(*waiter)
		select {
		case w.ready <- struct{}{}:
		default:
		}
	}
}

// abandon removes a cancelled waiter and promotes the next one.
func (l *Limiter) abandon(el *list.Element) {
	l.mu.Lock()
	l.queue.Remove(el)
	l.pokeHeadLocked()
	l.mu.Unlock()
}
