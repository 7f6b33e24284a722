package tui

import "netsniff/internal/models"

// recentRing keeps the last few records, oldest first.
type recentRing struct {
	buf  []models.Record
	next int
	full bool
}

func newRecentRing(size int) *recentRing {
	if size <= 0 {
		size = 5
	}
	return &recentRing{buf: make([]models.Record, size)}
}

func (r *recentRing) Add(rec models.Record) {
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Slice returns a copy, so a Frame built from it is unaffected by later Adds.
func (r *recentRing) Slice() []models.Record {
	if !r.full {
		return append([]models.Record(nil), r.buf[:r.next]...)
	}
	out := make([]models.Record, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
