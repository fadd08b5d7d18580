package keeper

import (
	"context"
	"sync"
	"time"

	"github.com/beevik/ntp"
)

const (
	defaultNTPPool      = "pool.ntp.org"
	defaultNTPInterval  = 60 * time.Second
	defaultNTPThreshold = 500 * time.Millisecond
)

// ClockHealth is a diagnostic-only wall-clock skew snapshot. It plays no
// part in Lamport-clock ordering (which is self-contained and never
// touches wall time); it exists so an operator can tell whether a keeper
// host's NTP sync has drifted enough that its heartbeat timestamps in
// logs are misleading.
type ClockHealth struct {
	Offset    time.Duration
	Healthy   bool
	Error     string
	CheckedAt time.Time
}

// NTPChecker periodically queries an NTP pool and records the offset.
type NTPChecker struct {
	mu        sync.RWMutex
	status    ClockHealth
	pool      string
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time

	// CheckFunc overrides real NTP queries for testing.
	CheckFunc func() ClockHealth
}

// NewNTPChecker builds a checker using the real system clock for
// timestamps and the given now function (time.Now if nil).
func NewNTPChecker(now func() time.Time) *NTPChecker {
	if now == nil {
		now = time.Now
	}
	return &NTPChecker{
		pool:      defaultNTPPool,
		interval:  defaultNTPInterval,
		threshold: defaultNTPThreshold,
		now:       now,
	}
}

// Run checks immediately, then on every interval, until ctx is cancelled.
func (n *NTPChecker) Run(ctx context.Context) {
	n.check()
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.check()
		}
	}
}

func (n *NTPChecker) check() {
	if n.CheckFunc != nil {
		n.mu.Lock()
		n.status = n.CheckFunc()
		n.mu.Unlock()
		return
	}

	resp, err := ntp.Query(n.pool)
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if err != nil {
		n.status = ClockHealth{Error: err.Error(), Healthy: false, CheckedAt: now}
		return
	}
	n.status = ClockHealth{
		Offset:    resp.ClockOffset,
		Healthy:   resp.ClockOffset.Abs() < n.threshold,
		CheckedAt: now,
	}
}

// Status returns the last check's result.
func (n *NTPChecker) Status() ClockHealth {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}
