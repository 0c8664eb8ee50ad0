package debug

import "time"

// DefaultPumpInterval bounds how long the pause loop waits between UI pumps
// when nothing wakes it.
const DefaultPumpInterval = 10 * time.Millisecond

// pauseHooks are re-read on every iteration of the pause loop so that
// control goroutines can swap callbacks while the script is halted.
type pauseHooks interface {
	pumpUI()
	exitRequested() bool
	consumeTermination() bool
	halted() bool
}

// waitWhileHalted keeps the host responsive while the executing goroutine
// is halted. It returns nil once the script is released, or an abort error
// when the host is exiting or termination was requested.
func waitWhileHalted(h pauseHooks, wake <-chan struct{}, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPumpInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		h.pumpUI()
		if h.exitRequested() {
			return ErrExitRequested
		}
		if h.consumeTermination() {
			return ErrTerminationRequested
		}
		if !h.halted() {
			return nil
		}
		select {
		case <-wake:
		case <-ticker.C:
		}
	}
}
