package scoring

import "time"

// window counts events until the gap since the last one exceeds span.
type window struct {
	span  time.Duration
	count int
	last  time.Time
}

// hit registers an event at t and returns the previous timestamp along
// with the new count. count and last change together.
func (w *window) hit(t time.Time) (prev time.Time, count int) {
	prev = w.last
	if t.Sub(w.last) > w.span {
		w.count = 0
	}
	w.count++
	w.last = t
	return prev, w.count
}
