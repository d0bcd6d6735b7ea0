package schedule

import (
	"container/heap"
	"time"
)

// EventListManager merges the occurrence streams of several events.
type EventListManager struct {
	events    []EventLike
	persisted []*Occurrence
	expander  *Expander
}

// NewEventListManager prepares a merge over events. persisted holds the
// overrides of all of them.
func NewEventListManager(events []EventLike, persisted []*Occurrence, expander *Expander) *EventListManager {
	return &EventListManager{
		events:    events,
		persisted: persisted,
		expander:  expander,
	}
}

// OccurrencesAfter yields the occurrences of every event after after, in
// start then end order. One Replacer built from all overrides is shared by
// the per-event streams.
func (m *EventListManager) OccurrencesAfter(after time.Time) *MergedIterator {
	rep := NewReplacer(m.persisted, m.expander.opts.ShowCancelledOccurrences)

	h := &occurrenceHeap{}
	for _, ev := range m.events {
		it := m.expander.newIterator(ev, persistedFor(ev, m.persisted), rep, after, 0)
		if occ, ok := it.Next(); ok {
			h.items = append(h.items, heapItem{occ: occ, it: it})
		}
	}
	heap.Init(h)
	return &MergedIterator{heap: h}
}

// MergedIterator is the chronological merge of several OccurrenceIterators.
type MergedIterator struct {
	heap *occurrenceHeap
}

// Next returns the earliest pending occurrence across all events.
func (m *MergedIterator) Next() (*Occurrence, bool) {
	if m.heap.Len() == 0 {
		return nil, false
	}
	top := m.heap.items[0]
	if occ, ok := top.it.Next(); ok {
		m.heap.items[0].occ = occ
		heap.Fix(m.heap, 0)
	} else {
		heap.Pop(m.heap)
	}
	return top.occ, true
}

// Take returns up to n occurrences.
func (m *MergedIterator) Take(n int) []*Occurrence {
	out := make([]*Occurrence, 0, n)
	for len(out) < n {
		occ, ok := m.Next()
		if !ok {
			break
		}
		out = append(out, occ)
	}
	return out
}

type heapItem struct {
	occ *Occurrence
	it  *OccurrenceIterator
}

type occurrenceHeap struct {
	items []heapItem
}

func (h *occurrenceHeap) Len() int { return len(h.items) }
func (h *occurrenceHeap) Less(i, j int) bool {
	return byStartThenEnd(h.items[i].occ, h.items[j].occ)
}
func (h *occurrenceHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *occurrenceHeap) Push(x any) { h.items = append(h.items, x.(heapItem)) }
func (h *occurrenceHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
