// Package ratelimit provides a sliding-window rate limiter for calls to the
// external analysis provider.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter grants at most limit acquisitions within any trailing window.
//
// A sliding window is used instead of a fixed one because a fixed window can
// admit up to twice the limit across a window boundary, and the provider
// enforces a hard per-minute ceiling. Grants are issued to waiters in arrival
// order so early callers are not starved when the window frees capacity.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	grants []time.Time
	queue  []chan struct{}
	now    func() time.Time
}

// New creates a Limiter allowing limit grants per window. A limit below one
// is clamped to one.
func New(limit int, window time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Acquire blocks until issuing one more grant would not exceed the limit
// within the trailing window, then consumes a grant. It returns an error only
// when ctx is done; delay is the limiter's sole backpressure mechanism.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w := make(chan struct{}, 1)
	l.mu.Lock()
	l.queue = append(l.queue, w)

	for {
		now := l.now()
		l.pruneLocked(now)

		if l.queue[0] == w {
			if len(l.grants) < l.limit {
				l.grants = append(l.grants, now)
				l.queue = l.queue[1:]
				l.signalHeadLocked()
				l.mu.Unlock()
				return nil
			}

			// Head of the line with no capacity: sleep until the oldest
			// grant slides out of the window.
			wait := l.grants[0].Add(l.window).Sub(now)
			l.mu.Unlock()
			if err := l.sleep(ctx, wait); err != nil {
				l.remove(w)
				return err
			}
		} else {
			l.mu.Unlock()
			select {
			case <-ctx.Done():
				l.remove(w)
				return ctx.Err()
			case <-w:
			}
		}
		l.mu.Lock()
	}
}

func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pruneLocked drops grants older than the trailing window.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.grants) && !l.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.grants = append(l.grants[:0], l.grants[i:]...)
	}
}

// signalHeadLocked nudges the head of the queue so it can re-evaluate: either
// take a free grant or set its own timer for when the window frees capacity.
func (l *Limiter) signalHeadLocked() {
	if len(l.queue) > 0 {
		select {
		case l.queue[0] <- struct{}{}:
		default:
		}
	}
}

// remove drops a cancelled waiter and wakes the head, which may have changed.
func (l *Limiter) remove(w chan struct{}) {
	l.mu.Lock()
	for i, q := range l.queue {
		if q == w {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			break
		}
	}
	l.signalHeadLocked()
	l.mu.Unlock()
}
