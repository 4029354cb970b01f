package dispatch

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Debouncer suppresses duplicate taps of the same card in quick
// succession (reader hardware often reports one physical tap several
// times). This is deliberately a dispatcher concern: the engine itself
// flips state on every tap it receives.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDebouncer creates a per-card debouncer. An interval of zero
// disables debouncing.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the tap for this card should be processed.
func (d *Debouncer) Allow(cardID string) bool {
	if d.interval <= 0 {
		return true
	}

	d.mu.Lock()
	lim, ok := d.limiters[cardID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(d.interval), 1)
		d.limiters[cardID] = lim
	}
	d.mu.Unlock()

	return lim.Allow()
}
