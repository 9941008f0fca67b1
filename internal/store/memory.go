// File: internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

// MemoryStore keeps every record in process memory. It is the default
// backend and the one the simulator runs on.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[int64]schemas.InventoryItem
	orders   map[int64]schemas.Order
	messages []schemas.Message
	nextItem int64
	nextOrd  int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:  make(map[int64]schemas.InventoryItem),
		orders: make(map[int64]schemas.Order),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close()                     {}

func (m *MemoryStore) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[int64]schemas.InventoryItem)
	m.orders = make(map[int64]schemas.Order)
	m.messages = nil
	m.nextItem, m.nextOrd = 0, 0
	return nil
}

func (m *MemoryStore) InsertItem(_ context.Context, item *schemas.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextItem++
	item.ID = m.nextItem
	m.items[item.ID] = *item
	return nil
}

func (m *MemoryStore) UpdateItemLocation(_ context.Context, id int64, loc schemas.Location, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	it.Location = loc
	it.Updated = at
	m.items[id] = it
	return nil
}

func (m *MemoryStore) GetItem(_ context.Context, id int64) (schemas.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return schemas.InventoryItem{}, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return it, nil
}

func (m *MemoryStore) ListItems(_ context.Context, f ItemFilter) ([]schemas.InventoryItem, error) {
	m.mu.RLock()
	out := make([]schemas.InventoryItem, 0, len(m.items))
	for _, it := range m.items {
		if f.matches(it) {
			out = append(out, it)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Updated.Equal(out[j].Updated) {
			return out[i].Updated.Before(out[j].Updated)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) InsertOrder(_ context.Context, order *schemas.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOrd++
	order.ID = m.nextOrd
	m.orders[order.ID] = *order
	return nil
}

func (m *MemoryStore) UpdateOrderStatus(_ context.Context, id int64, status schemas.OrderStatus, completed *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	o.Status = status
	o.Completed = completed
	m.orders[id] = o
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id int64) (schemas.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return schemas.Order{}, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return o, nil
}

func (m *MemoryStore) ListOrders(_ context.Context, f OrderFilter) ([]schemas.Order, error) {
	m.mu.RLock()
	out := make([]schemas.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if f.matches(o) {
			out = append(out, o)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Made.Equal(out[j].Made) {
			return out[i].Made.Before(out[j].Made)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendMessages(_ context.Context, msgs []schemas.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msgs...)
	return nil
}

// ListMessages returns up to limit of the most recent messages, oldest first.
func (m *MemoryStore) ListMessages(_ context.Context, limit int) ([]schemas.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := 0
	if limit > 0 && len(m.messages) > limit {
		start = len(m.messages) - limit
	}
	out := make([]schemas.Message, len(m.messages)-start)
	copy(out, m.messages[start:])
	return out, nil
}
