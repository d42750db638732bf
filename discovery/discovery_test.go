// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parley-chat/parley/lib/clock"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/session"
)

func descriptors(jids ...string) []session.RoomDescriptor {
	var rooms []session.RoomDescriptor
	for _, jid := range jids {
		rooms = append(rooms, session.RoomDescriptor{JID: ref.MustParseJID(jid)})
	}
	return rooms
}

// runAsync drives Run on a fake clock, advancing through every
// inter-attempt delay until it returns.
func runAsync(t *testing.T, fc *clock.FakeClock, list ListFunc, satisfied Strategy, opts Options) (Result, error) {
	t.Helper()
	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := Run(context.Background(), list, satisfied, opts)
		done <- outcome{result, err}
	}()
	for {
		select {
		case out := <-done:
			return out.result, out.err
		case <-time.After(10 * time.Millisecond):
			if fc.PendingCount() > 0 {
				fc.Advance(opts.Delay)
			}
		}
	}
}

func TestRunFindsTarget(t *testing.T) {
	fc := clock.Fake(time.Unix(1700000000, 0))
	calls := 0
	list := func(ctx context.Context) ([]session.RoomDescriptor, error) {
		calls++
		switch calls {
		case 1:
			return nil, nil
		case 2:
			return descriptors("lobby@conference.example.com"), nil
		default:
			return descriptors(
				"lobby@conference.example.com",
				"room42@conference.example.com",
			), nil
		}
	}

	result, err := runAsync(t, fc, list, TargetPresent("room42"),
		Options{Delay: 5 * time.Second, Clock: fc})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeFound {
		t.Fatalf("outcome = %v, want found", result.Outcome)
	}
	if result.Attempts != 3 || calls != 3 {
		t.Fatalf("attempts = %d (calls %d), want 3", result.Attempts, calls)
	}
	if len(result.Rooms) != 2 {
		t.Fatalf("rooms = %d, want the satisfying listing", len(result.Rooms))
	}
}

func TestRunExhausted(t *testing.T) {
	fc := clock.Fake(time.Unix(1700000000, 0))
	calls := 0
	list := func(ctx context.Context) ([]session.RoomDescriptor, error) {
		calls++
		return descriptors("lobby@conference.example.com"), nil
	}

	result, err := runAsync(t, fc, list, TargetPresent("room42"),
		Options{MaxAttempts: 4, Delay: 5 * time.Second, Clock: fc})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeExhausted {
		t.Fatalf("outcome = %v, want exhausted", result.Outcome)
	}
	if calls != 4 {
		t.Fatalf("list called %d times, want exactly 4", calls)
	}
	// The last successful listing survives into the result.
	if len(result.Rooms) != 1 {
		t.Fatalf("rooms = %d, want the final listing", len(result.Rooms))
	}
}

func TestRunListingErrorsAreRetryable(t *testing.T) {
	fc := clock.Fake(time.Unix(1700000000, 0))
	calls := 0
	list := func(ctx context.Context) ([]session.RoomDescriptor, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("request timed out")
		}
		return descriptors("room42@conference.example.com"), nil
	}

	result, err := runAsync(t, fc, list, AnyPresent(),
		Options{Delay: 5 * time.Second, Clock: fc})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeFound || result.Attempts != 3 {
		t.Fatalf("result = %+v, want found on attempt 3", result)
	}
}

func TestRunCancelled(t *testing.T) {
	fc := clock.Fake(time.Unix(1700000000, 0))
	ctx, cancel := context.WithCancel(context.Background())

	list := func(ctx context.Context) ([]session.RoomDescriptor, error) {
		return nil, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, list, AnyPresent(), Options{Delay: 5 * time.Second, Clock: fc})
		done <- err
	}()

	// Let the run park on its first inter-attempt delay, then cancel.
	fc.WaitForTimers(1)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestTargetPresentNormalization(t *testing.T) {
	rooms := descriptors("room42@conference.example.com")
	cases := []struct {
		key  string
		want bool
	}{
		{"room42", true},
		{"room42@other.example.org", true},
		{"  room42  ", true},
		{"room7", false},
	}
	for _, tc := range cases {
		if got := TargetPresent(tc.key)(rooms); got != tc.want {
			t.Errorf("TargetPresent(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}

	if AnyPresent()(nil) {
		t.Error("AnyPresent satisfied by an empty listing")
	}
	if !AnyPresent()(rooms) {
		t.Error("AnyPresent not satisfied by a non-empty listing")
	}
}
