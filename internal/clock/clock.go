// Package clock lets services read wall time through an injectable source.
package clock

import (
	"time"

	"go.uber.org/fx"
)

type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Func adapts a plain function, such as a test closure.
type Func func() time.Time

func (f Func) Now() time.Time { return f().UTC() }

// Or returns c, or the system clock when c is nil.
func Or(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}

var Module = fx.Module("clock",
	fx.Provide(fx.Annotate(func() SystemClock { return SystemClock{} }, fx.As(new(Clock)))),
)
