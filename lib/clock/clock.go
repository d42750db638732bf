// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code injects
// Real(); tests inject Fake() and drive time explicitly with Advance.
//
// Every component that waits — reconnect backoff, request deadlines,
// discovery delays, the history loader's poll ticker — takes a Clock
// instead of calling the time package directly. That makes every
// timing property in this module testable without real sleeps.
package clock

import "time"

// Clock is the subset of the time package this module schedules with.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. The channel has capacity 1;
// ticks are dropped, not queued, when the consumer falls behind. Call
// Stop to release the underlying timer.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. No ticks are delivered after Stop
// returns. Stop does not close C.
func (t *Ticker) Stop() { t.stop() }
