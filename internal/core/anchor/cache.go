package anchor

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache maps a table size onto its generated table. Tables are published
// only once fully built, and concurrent first use of a size runs the
// generator once.
type Cache struct {
	tables sync.Map // int -> *Table
	group  singleflight.Group

	// generated counts generator runs; tests read it.
	mx        sync.Mutex
	generated int
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the table for n without creating it.
func (c *Cache) Get(n int) (*Table, error) {
	if v, ok := c.tables.Load(n); ok {
		return v.(*Table), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownAnchorSize, n)
}

// Acquire returns the table for n, generating and publishing it on first use.
func (c *Cache) Acquire(n int) (*Table, error) {
	if v, ok := c.tables.Load(n); ok {
		return v.(*Table), nil
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAnchorSize, n)
	}

	v, err, _ := c.group.Do(strconv.Itoa(n), func() (any, error) {
		if v, ok := c.tables.Load(n); ok {
			return v, nil
		}
		t, err := Generate(n)
		if err != nil {
			return nil, err
		}
		c.mx.Lock()
		c.generated++
		c.mx.Unlock()

		actual, _ := c.tables.LoadOrStore(n, t)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

// Warm acquires every size in sizes.
func (c *Cache) Warm(sizes []int) error {
	for _, n := range sizes {
		if _, err := c.Acquire(n); err != nil {
			return err
		}
	}
	return nil
}

// Sizes returns the cached sizes in ascending order.
func (c *Cache) Sizes() []int {
	var sizes []int
	c.tables.Range(func(k, _ any) bool {
		sizes = append(sizes, k.(int))
		return true
	})
	sort.Ints(sizes)
	return sizes
}

func (c *Cache) generations() int {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.generated
}
