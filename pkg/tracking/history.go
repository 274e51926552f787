package tracking

import "gonum.org/v1/gonum/spatial/r3"

// History is a bounded FIFO of the most recent unit directions used along
// one streamline, most-recent-last. Direction fields consult it for
// continuity; capacity is the configured number of previous directions.
type History struct {
	dirs     []r3.Vec
	capacity int
}

func newHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{capacity: capacity}
}

// Push appends a direction, evicting the oldest entry on overflow.
func (h *History) Push(d r3.Vec) {
	h.dirs = append(h.dirs, d)
	if len(h.dirs) > h.capacity {
		h.dirs = h.dirs[1:]
	}
}

// Last returns the most recent direction, or false if the history is empty.
func (h *History) Last() (r3.Vec, bool) {
	if len(h.dirs) == 0 {
		return r3.Vec{}, false
	}
	return h.dirs[len(h.dirs)-1], true
}

// Len returns the number of stored directions.
func (h *History) Len() int { return len(h.dirs) }

// Directions returns the stored directions, oldest first. The returned slice
// is owned by the history and must not be modified.
func (h *History) Directions() []r3.Vec { return h.dirs }
