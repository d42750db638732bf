// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package loader backfills older messages for a working set of rooms.
//
// The queue polls on a fixed interval. Each tick takes the rooms not
// yet processed this cycle, partitions them into fixed-size batches,
// and fetches one page of history for every room in a batch that still
// wants messages; rooms at their threshold, with an empty archive, or
// with fully loaded history are marked processed without a network
// call. Concurrency is bounded by the batch size and fetches
// self-throttle, so N tracked rooms never translate into N parallel
// requests. Fetch errors are logged and swallowed; the room is simply
// retried on a later cycle.
//
// When every tracked room is processed the ticker is stopped and the
// queue idles until Poke signals that the room set or loading flags
// changed. No timer outlives Run's context.
package loader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parley-chat/parley/lib/clock"
)

// Snapshot is the loader's view of one room.
type Snapshot struct {
	// MessageCount is how many messages are loaded locally.
	MessageCount int
	// NoMessages marks a room whose archive is known to be empty.
	NoMessages bool
	// HistoryComplete marks a room with nothing older left to fetch.
	HistoryComplete bool
	// Loading marks a room with a history fetch already in flight.
	Loading bool
}

// Source is the room state the queue schedules from. roomstore.Store
// implements it.
type Source interface {
	// RoomIDs returns the identifiers of every tracked room.
	RoomIDs() []string
	// Room returns the snapshot for one room.
	Room(id string) (Snapshot, bool)
	// Loading reports the global loading flag; ticks are skipped
	// while it is set.
	Loading() bool
}

// Fetch loads one page of older history for a room. Errors are logged
// by the queue and never abort a batch or a cycle.
type Fetch func(ctx context.Context, roomID string, pageSize int) error

// Config tunes a Queue. Zero values select the defaults; a negative
// ThrottleDelay disables throttling.
type Config struct {
	// BatchSize bounds concurrent fetches within a cycle. Default 5.
	BatchSize int
	// PageSize is the history page requested per fetch. Default 10.
	PageSize int
	// PollInterval separates scheduling ticks. Default 1s.
	PollInterval time.Duration
	// HistoryThreshold is the loaded-message count at which a room
	// stops being topped up. Default 20.
	HistoryThreshold int
	// ThrottleDelay spaces requests within a batch. Default 200ms.
	ThrottleDelay time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 5
	}
	if c.PageSize == 0 {
		c.PageSize = 10
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.HistoryThreshold == 0 {
		c.HistoryThreshold = 20
	}
	if c.ThrottleDelay == 0 {
		c.ThrottleDelay = 200 * time.Millisecond
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Queue is the polling scheduler. Create with NewQueue, drive with
// Run, and wake with Poke.
type Queue struct {
	source Source
	fetch  Fetch
	config Config
	clock  clock.Clock
	logger *slog.Logger

	poke chan struct{}

	mu           sync.Mutex
	processed    map[string]bool
	lastRooms    int
	lastLoading  int
	seededLoad   bool
}

func NewQueue(source Source, fetch Fetch, config Config) *Queue {
	config.applyDefaults()
	return &Queue{
		source:    source,
		fetch:     fetch,
		config:    config,
		clock:     config.Clock,
		logger:    config.Logger.With("component", "loader"),
		poke:      make(chan struct{}, 1),
		processed: make(map[string]bool),
	}
}

// Poke wakes an idle queue and resets the processed set, so every
// room is reconsidered on the next tick. Call it when the room set or
// loading flags change. Never blocks.
func (q *Queue) Poke() {
	q.mu.Lock()
	q.processed = make(map[string]bool)
	q.mu.Unlock()
	select {
	case q.poke <- struct{}{}:
	default:
	}
}

// Run drives the queue until ctx is cancelled. It owns the polling
// ticker: the ticker is stopped whenever the queue goes idle and
// recreated on the next Poke, and always stopped before Run returns.
func (q *Queue) Run(ctx context.Context) {
	for {
		ticker := q.clock.NewTicker(q.config.PollInterval)
		idle := q.pollUntilIdle(ctx, ticker)
		ticker.Stop()
		if !idle {
			// ctx cancelled.
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-q.poke:
		}
	}
}

// pollUntilIdle ticks until a cycle finds nothing to process. Returns
// false when ctx ended the loop instead.
func (q *Queue) pollUntilIdle(ctx context.Context, ticker *clock.Ticker) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-q.poke:
			// Already awake; the reset happened in Poke.
		case <-ticker.C:
			if q.tick(ctx) {
				return true
			}
		}
	}
}

// tick runs one scheduling cycle. Reports true when the queue has
// nothing left to do and should go idle.
func (q *Queue) tick(ctx context.Context) bool {
	ids := q.source.RoomIDs()
	loadingRooms := 0
	for _, id := range ids {
		if snap, ok := q.source.Room(id); ok && snap.Loading {
			loadingRooms++
		}
	}
	q.maybeReset(len(ids), loadingRooms)

	if q.source.Loading() || loadingRooms > 0 {
		// External loads in flight; wait for a later tick.
		return false
	}

	unprocessed := q.unprocessed(ids)
	if len(unprocessed) == 0 {
		q.logger.Debug("all rooms processed, going idle", "rooms", len(ids))
		return true
	}

	for start := 0; start < len(unprocessed); start += q.config.BatchSize {
		end := min(start+q.config.BatchSize, len(unprocessed))
		q.runBatch(ctx, unprocessed[start:end])
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

func (q *Queue) runBatch(ctx context.Context, batch []string) {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, id := range batch {
		snap, ok := q.source.Room(id)
		if !ok {
			q.markProcessed(id)
			continue
		}
		if snap.MessageCount >= q.config.HistoryThreshold ||
			snap.NoMessages || snap.HistoryComplete {
			q.markProcessed(id)
			continue
		}
		group.Go(func() error {
			if err := q.fetch(groupCtx, id, q.config.PageSize); err != nil {
				q.logger.Warn("history fetch failed", "room", id, "error", err)
			}
			q.markProcessed(id)
			q.clock.Sleep(q.config.ThrottleDelay)
			return nil
		})
	}
	group.Wait()
}

// maybeReset clears the processed set when the tracked room set or the
// loading flags changed since the last tick, so changed rooms are
// revisited within one polling interval.
func (q *Queue) maybeReset(rooms, loadingRooms int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seededLoad && rooms == q.lastRooms && loadingRooms == q.lastLoading {
		return
	}
	if q.seededLoad {
		q.processed = make(map[string]bool)
	}
	q.seededLoad = true
	q.lastRooms = rooms
	q.lastLoading = loadingRooms
}

func (q *Queue) unprocessed(ids []string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, id := range ids {
		if !q.processed[id] {
			out = append(out, id)
		}
	}
	return out
}

func (q *Queue) markProcessed(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processed[id] = true
}
