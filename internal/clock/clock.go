package clock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// Clock is the authoritative time source for expiry and scheduling checks.
// Timestamps are unix seconds.
type Clock interface {
	Now(ctx context.Context) (int64, error)
}

// System reads the host wall clock.
type System struct{}

func (System) Now(context.Context) (int64, error) {
	return time.Now().Unix(), nil
}

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu  sync.Mutex
	now int64
}

func NewManual(start int64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now, nil
}

func (m *Manual) Set(ts int64) {
	m.mu.Lock()
	m.now = ts
	m.mu.Unlock()
}

// Advance moves the clock forward by d seconds and returns the new time.
func (m *Manual) Advance(d int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
	return m.now
}

// HeadSource reports the timestamp of the latest block.
type HeadSource interface {
	LatestTimestamp(ctx context.Context) (uint64, error)
}

var ErrTimestampRange = errors.New("block timestamp out of range")

// Chain uses the head block timestamp of a node as the current time.
type Chain struct {
	src HeadSource
}

func NewChain(src HeadSource) *Chain {
	return &Chain{src: src}
}

func (c *Chain) Now(ctx context.Context) (int64, error) {
	ts, err := c.src.LatestTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("read chain time: %w", err)
	}
	if ts > math.MaxInt64 {
		return 0, ErrTimestampRange
	}
	return int64(ts), nil
}
