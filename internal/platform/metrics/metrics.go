package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
)

// Registry is an in-process tagged counter store. Batch jobs and the
// processing gates increment counters here; the usage endpoint exposes a
// snapshot for scraping.
type Registry struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]int64)}
}

// Inc increments the named counter by one. Tags are folded into the key in
// sorted order so that equal tag sets always hit the same counter.
func (r *Registry) Inc(name string, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key(name, tags)]++
}

// Value returns the current value of a counter (0 if never incremented).
func (r *Registry) Value(name string, tags map[string]string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[key(name, tags)]
}

// Snapshot returns a copy of all counters.
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}

func key(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	parts := make([]string, 0, len(tags))
	for k, v := range tags {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

// Handler exposes the counter snapshot as JSON.
func Handler(r *Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, r.Snapshot())
	}
}
