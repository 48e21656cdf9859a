package testutil

import (
	"fmt"
	"sync"
	"time"

	"dt-go/internal/dt"
)

var (
	_ dt.Clock       = (*StubClock)(nil)
	_ dt.IDGenerator = (*StubIDGenerator)(nil)
)

// StubClock is a settable dt.Clock. Release names derive from its epoch
// seconds, so tests usually construct it with ClockAt.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// ClockAt returns a StubClock at the given epoch second, in UTC.
func ClockAt(sec int64) *StubClock {
	return NewStubClock(time.Unix(sec, 0).UTC())
}

// FixedClock is 2024-01-15 10:30:00 UTC, epoch second 1705314600.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator hands out run IDs "run-1", "run-2" and so on.
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("run-%d", g.next)
}
