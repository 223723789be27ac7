package demo

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Counter tallies responses by status code.
type Counter struct {
	mu       sync.Mutex
	byStatus map[int]int
	errors   int
}

func (c *Counter) Add(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byStatus == nil {
		c.byStatus = make(map[int]int)
	}
	c.byStatus[status]++
}

func (c *Counter) Fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
}

func (c *Counter) Count(status int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byStatus[status]
}

func (c *Counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.errors
	for _, v := range c.byStatus {
		n += v
	}
	return n
}

func (c *Counter) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	codes := make([]int, 0, len(c.byStatus))
	for code := range c.byStatus {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	parts := make([]string, 0, len(codes)+1)
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("%d=%d", code, c.byStatus[code]))
	}
	if c.errors > 0 {
		parts = append(parts, fmt.Sprintf("transport_errors=%d", c.errors))
	}
	return strings.Join(parts, " ")
}
