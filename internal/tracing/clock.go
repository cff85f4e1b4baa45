package tracing

import (
	"sync"
	"time"

	events "github.com/hanpama/gqlexec/internal/events"
)

// Clock is the time source of diagnostic timestamps. Now is used for
// wall-clock fields, Nanotime for every duration.
type Clock interface {
	Now() time.Time
	Nanotime() int64
}

// SystemClock reads the process clocks.
var SystemClock Clock = systemClock{}

var processStart = time.Now()

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Nanotime is monotonic; it counts from process start.
func (systemClock) Nanotime() int64 { return int64(time.Since(processStart)) }

// Stamp reads c once for each clock.
func Stamp(c Clock) events.Timestamp {
	return events.Timestamp{Wall: c.Now(), Mono: c.Nanotime()}
}

// StepClock advances by a fixed step on every read. It makes traces
// reproducible in tests.
type StepClock struct {
	mu       sync.Mutex
	wall     time.Time
	wallStep time.Duration
	mono     int64
	monoStep int64
}

// NewStepClock returns a clock whose first Now is start and whose first
// Nanotime is monoStart+monoStep.
func NewStepClock(start time.Time, wallStep time.Duration, monoStart, monoStep int64) *StepClock {
	return &StepClock{wall: start, wallStep: wallStep, mono: monoStart, monoStep: monoStep}
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.wall
	c.wall = c.wall.Add(c.wallStep)
	return t
}

func (c *StepClock) Nanotime() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mono += c.monoStep
	return c.mono
}
