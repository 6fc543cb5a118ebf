package flowframe

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"flowcore/pkg/matrix"
)

// cell holds a frame's event matrix. A lazy cell runs load at most once per
// successful materialisation; concurrent callers share the in-flight call
// and failures are not remembered.
type cell struct {
	mu    sync.Mutex
	group singleflight.Group
	data  *matrix.Dense
	load  func() (*matrix.Dense, error)
}

func eager(d *matrix.Dense) *cell { return &cell{data: d} }

func lazy(load func() (*matrix.Dense, error)) *cell { return &cell{load: load} }

func (c *cell) cached() *matrix.Dense {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

func (c *cell) get() (*matrix.Dense, error) {
	if d := c.cached(); d != nil {
		return d, nil
	}
	v, err, _ := c.group.Do("data", func() (any, error) {
		if d := c.cached(); d != nil {
			return d, nil
		}
		d, err := c.load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.data = d
		c.mu.Unlock()
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*matrix.Dense), nil
}
