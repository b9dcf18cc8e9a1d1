package route

import "sync/atomic"

// Counter is a monotonically increasing call count. The zero value is ready
// to use. It is never reset.
type Counter struct {
	n atomic.Int64
}

// Increment adds one and returns the new value.
func (c *Counter) Increment() int64 {
	return c.n.Add(1)
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return c.n.Load()
}
