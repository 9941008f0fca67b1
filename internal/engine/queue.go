// internal/engine/queue.go
package engine

import "github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"

// slot references one inventory item held in a queue.
type slot struct {
	id       int64
	itemType schemas.ItemType
}

// queue is a FIFO of item references. The store keeps the item records;
// the queue only fixes their order.
type queue struct {
	items []slot
}

func (q *queue) len() int { return len(q.items) }

func (q *queue) push(s slot) { q.items = append(q.items, s) }

func (q *queue) head() (slot, bool) {
	if len(q.items) == 0 {
		return slot{}, false
	}
	return q.items[0], true
}

func (q *queue) pop() (slot, bool) {
	s, ok := q.head()
	if ok {
		q.items = q.items[1:]
	}
	return s, ok
}

// remove drops the item with id and reports whether it was queued.
func (q *queue) remove(id int64) (slot, bool) {
	for i, s := range q.items {
		if s.id == id {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return s, true
		}
	}
	return slot{}, false
}

// firstOf returns the oldest item of type t.
func (q *queue) firstOf(t schemas.ItemType) (slot, bool) {
	for _, s := range q.items {
		if s.itemType == t {
			return s, true
		}
	}
	return slot{}, false
}

func (q *queue) contains(id int64) bool {
	for _, s := range q.items {
		if s.id == id {
			return true
		}
	}
	return false
}

func (q *queue) count(t schemas.ItemType) int {
	n := 0
	for _, s := range q.items {
		if s.itemType == t {
			n++
		}
	}
	return n
}

// types lists the item types in queue order.
func (q *queue) types() []schemas.ItemType {
	out := make([]schemas.ItemType, len(q.items))
	for i, s := range q.items {
		out[i] = s.itemType
	}
	return out
}
