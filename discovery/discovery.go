// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package discovery polls the room directory until an expected room
// shows up. Directory registration is eventually consistent: a freshly
// created room can take several listing rounds to appear, so a single
// listing proves nothing. The loop makes a bounded number of attempts
// with a fixed delay between them, treats listing errors as retryable,
// and reports whether the wait ended in success or exhaustion.
// Exhaustion is an outcome, not an error; the only error Run returns
// is context cancellation.
package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/parley-chat/parley/lib/clock"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/session"
)

// ListFunc produces one room listing, typically session.Client.ListRooms.
type ListFunc func(ctx context.Context) ([]session.RoomDescriptor, error)

// Strategy decides whether a listing satisfies the wait.
type Strategy func([]session.RoomDescriptor) bool

// TargetPresent is satisfied once a room matching key is listed. The
// key may be a bare address, a full JID, or a plain room name; the
// comparison normalizes both sides to their trimmed localpart.
func TargetPresent(key string) Strategy {
	return func(rooms []session.RoomDescriptor) bool {
		for _, room := range rooms {
			if ref.SameLocalpart(room.JID.String(), key) {
				return true
			}
		}
		return false
	}
}

// AnyPresent is satisfied by the first non-empty listing.
func AnyPresent() Strategy {
	return func(rooms []session.RoomDescriptor) bool {
		return len(rooms) > 0
	}
}

// Outcome is how a discovery run ended.
type Outcome int

const (
	// OutcomeFound means the strategy was satisfied.
	OutcomeFound Outcome = iota
	// OutcomeExhausted means every attempt was used without the
	// strategy being satisfied.
	OutcomeExhausted
)

func (o Outcome) String() string {
	if o == OutcomeFound {
		return "found"
	}
	return "exhausted"
}

// Result is the terminal state of a discovery run.
type Result struct {
	// Rooms is the listing that satisfied the strategy, or the last
	// successful listing on exhaustion.
	Rooms    []session.RoomDescriptor
	Outcome  Outcome
	Attempts int
}

// Options tune a discovery run. Zero values select the defaults.
type Options struct {
	// MaxAttempts bounds the listing attempts. Default 10.
	MaxAttempts int

	// Delay separates consecutive attempts. Default 5s.
	Delay time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 10
	}
	if o.Delay == 0 {
		o.Delay = 5 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Run polls list until the strategy is satisfied or the attempts are
// exhausted. Listing errors are logged and count as unsatisfied
// attempts. The returned error is non-nil only when ctx is cancelled.
func Run(ctx context.Context, list ListFunc, satisfied Strategy, opts Options) (Result, error) {
	opts.applyDefaults()
	logger := opts.Logger.With("component", "discovery")

	var last []session.RoomDescriptor
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		rooms, err := list(ctx)
		switch {
		case err != nil:
			logger.Warn("room listing failed",
				"attempt", attempt,
				"max_attempts", opts.MaxAttempts,
				"error", err)
		case satisfied(rooms):
			return Result{Rooms: rooms, Outcome: OutcomeFound, Attempts: attempt}, nil
		default:
			last = rooms
			logger.Debug("room listing not yet satisfied",
				"attempt", attempt,
				"rooms", len(rooms))
		}

		if attempt == opts.MaxAttempts {
			break
		}
		select {
		case <-opts.Clock.After(opts.Delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	logger.Warn("room discovery exhausted", "attempts", opts.MaxAttempts)
	return Result{Rooms: last, Outcome: OutcomeExhausted, Attempts: opts.MaxAttempts}, nil
}
