package llm

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// heartbeatOut receives the progress lines; tests redirect it.
var heartbeatOut io.Writer = os.Stderr

// startHeartbeat prints a "still working" line every interval until the
// returned stop function is called. One heartbeat goroutine runs per long
// LLM call; stop is idempotent and waits for the goroutine to exit. A
// non-positive interval disables the heartbeat entirely.
func startHeartbeat(interval time.Duration, model string) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		start := time.Now()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Fprintf(heartbeatOut, "still working (%s, %s elapsed)\n",
					model, time.Since(start).Round(time.Second))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
