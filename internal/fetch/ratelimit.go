package fetch

import (
	"math/rand"
	"sync"
	"time"

	"litassist/internal/logging"
)

// AustLII pacing: a uniform-random 2.0 to 3.0 second gap between consecutive
// direct fetches, measured from the completion of the previous request. The
// gate is process-wide; both the context fetcher and citation verification
// go through it.
var (
	austliiMu   sync.Mutex
	austliiLast time.Time

	austliiGapBase  = 2 * time.Second
	austliiGapRange = time.Second
)

// AustLIIWait blocks until the shared AustLII gap has elapsed since the last
// recorded completion.
func AustLIIWait() {
	austliiMu.Lock()
	last := austliiLast
	austliiMu.Unlock()

	if last.IsZero() {
		return
	}

	gap := austliiGapBase + time.Duration(rand.Int63n(int64(austliiGapRange)))
	elapsed := time.Since(last)
	if elapsed < gap {
		wait := gap - elapsed
		logging.FetchDebug("AustLII pacing: waiting %v", wait)
		time.Sleep(wait)
	}
}

// AustLIIDone records the completion of an AustLII request.
func AustLIIDone() {
	austliiMu.Lock()
	austliiLast = time.Now()
	austliiMu.Unlock()
}

// domainGate enforces the 0.5 s per-domain delay for all other hosts.
type domainGate struct {
	mu    sync.Mutex
	last  map[string]time.Time
	delay time.Duration
}

func newDomainGate(delay time.Duration) *domainGate {
	return &domainGate{last: make(map[string]time.Time), delay: delay}
}

// wait sleeps out the remaining per-domain delay and records the new
// request time.
func (g *domainGate) wait(domain string) {
	g.mu.Lock()
	last, ok := g.last[domain]
	now := time.Now()
	if ok {
		if remaining := g.delay - now.Sub(last); remaining > 0 {
			g.mu.Unlock()
			time.Sleep(remaining)
			g.mu.Lock()
		}
	}
	g.last[domain] = time.Now()
	g.mu.Unlock()
}
