package httpapi

import (
	"sync"
	"time"
)

// window counts login attempts from one client address.
type window struct {
	attempts int
	resetAt  time.Time
}

// fixedWindowLimiter allows max attempts per key in each window. Expired
// windows are swept periodically so idle clients do not accumulate.
type fixedWindowLimiter struct {
	mu      sync.Mutex
	span    time.Duration
	max     int
	now     func() time.Time
	windows map[string]*window

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newFixedWindowLimiter(max int, span time.Duration) *fixedWindowLimiter {
	l := &fixedWindowLimiter{
		span:    span,
		max:     max,
		now:     time.Now,
		windows: make(map[string]*window),
		stopCh:  make(chan struct{}),
	}
	go l.sweepLoop(5 * time.Minute)
	return l
}

// Allow records an attempt for key. When the limit is exceeded it returns
// false and the time until the window resets.
func (l *fixedWindowLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	w := l.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.span)}
		l.windows[key] = w
	}
	w.attempts++
	if w.attempts <= l.max {
		return true, 0
	}
	return false, w.resetAt.Sub(now)
}

// Blocked reports whether key has used up its window without recording an
// attempt.
func (l *fixedWindowLimiter) Blocked(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	w := l.windows[key]
	if w == nil || !now.Before(w.resetAt) || w.attempts < l.max {
		return false, 0
	}
	return true, w.resetAt.Sub(now)
}

func (l *fixedWindowLimiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopCh:
			return
		}
	}
}

func (l *fixedWindowLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// Stop ends the sweeper. It is safe to call more than once.
func (l *fixedWindowLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
