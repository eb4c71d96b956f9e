package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so invite timestamps can be pinned in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// New returns the system clock.
func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// UnixMilli returns the clock's current time in epoch milliseconds.
func UnixMilli(c Clock) int64 {
	return c.Now().UnixMilli()
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
