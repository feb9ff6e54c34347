package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the issue date of documents and the generation timestamp.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in local time, the way the dealership
// dates its paperwork.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
