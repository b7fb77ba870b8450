package validator

import (
	"container/list"
	"sync"
	"time"

	"github.com/opensource-finance/txguard/internal/domain"
)

// DuplicateDetector remembers admitted transaction IDs. It is owned by a
// single Validator; the membership check and the insertion happen under one
// lock so two concurrent calls with the same ID cannot both be admitted.
//
// With zero retention and capacity the set only grows. A positive retention
// forgets IDs older than the window; a positive capacity forgets the oldest
// IDs beyond it.
type DuplicateDetector struct {
	mu         sync.Mutex
	retention  time.Duration
	maxEntries int
	items      map[string]*list.Element
	order      *list.List // front is the most recently admitted
}

type seenEntry struct {
	id string
	at time.Time
}

// NewDuplicateDetector creates a detector.
func NewDuplicateDetector(retention time.Duration, maxEntries int) *DuplicateDetector {
	return &DuplicateDetector{
		retention:  retention,
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Admit checks id and, when record is true and id is new, remembers it.
// A remembered id yields a DuplicateTransactionError and is left untouched.
func (d *DuplicateDetector) Admit(id string, now time.Time, record bool) *domain.ValidationError {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.expire(now)

	if _, ok := d.items[id]; ok {
		return domain.NewValidationError(domain.KindDuplicateTransaction, "transaction_id",
			"duplicate transaction detected: %s", id)
	}
	if !record {
		return nil
	}

	d.items[id] = d.order.PushFront(&seenEntry{id: id, at: now})
	for d.maxEntries > 0 && d.order.Len() > d.maxEntries {
		d.removeElement(d.order.Back())
	}
	return nil
}

// Contains reports whether id is currently remembered.
func (d *DuplicateDetector) Contains(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.items[id]
	return ok
}

// Prune forgets every id admitted before the cutoff and returns how many
// were removed.
func (d *DuplicateDetector) Prune(before time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pruneBefore(before)
}

// Len returns the number of remembered ids.
func (d *DuplicateDetector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

func (d *DuplicateDetector) expire(now time.Time) {
	if d.retention > 0 {
		d.pruneBefore(now.Add(-d.retention))
	}
}

// pruneBefore walks from the oldest entry; admission order is also time order
// as long as callers pass a non-decreasing clock.
func (d *DuplicateDetector) pruneBefore(cutoff time.Time) int {
	removed := 0
	for elem := d.order.Back(); elem != nil; {
		entry := elem.Value.(*seenEntry)
		if !entry.at.Before(cutoff) {
			break
		}
		prev := elem.Prev()
		d.removeElement(elem)
		removed++
		elem = prev
	}
	return removed
}

func (d *DuplicateDetector) removeElement(elem *list.Element) {
	d.order.Remove(elem)
	delete(d.items, elem.Value.(*seenEntry).id)
}
