// File: internal/store/store.go
package store

import (
	"context"
	"errors"
	"time"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

// ErrNotFound is returned when a record lookup by id misses.
var ErrNotFound = errors.New("record not found")

// ItemFilter narrows an inventory scan. Zero values match everything.
type ItemFilter struct {
	ItemType  schemas.ItemType
	Locations []schemas.Location
	Limit     int
}

// OrderFilter narrows an order scan. Zero values match everything.
type OrderFilter struct {
	ItemType    schemas.ItemType
	Statuses    []schemas.OrderStatus
	Destination *schemas.Destination
	Limit       int
}

// Repository is the persistence contract for warehouse records.
// Scans return records oldest first.
type Repository interface {
	Ping(ctx context.Context) error
	// Reset deletes every record. It runs on experiment start.
	Reset(ctx context.Context) error

	InsertItem(ctx context.Context, item *schemas.InventoryItem) error
	UpdateItemLocation(ctx context.Context, id int64, loc schemas.Location, at time.Time) error
	GetItem(ctx context.Context, id int64) (schemas.InventoryItem, error)
	ListItems(ctx context.Context, f ItemFilter) ([]schemas.InventoryItem, error)

	InsertOrder(ctx context.Context, order *schemas.Order) error
	UpdateOrderStatus(ctx context.Context, id int64, status schemas.OrderStatus, completed *time.Time) error
	GetOrder(ctx context.Context, id int64) (schemas.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]schemas.Order, error)

	// AppendMessages journals a batch of inbound messages in one write.
	AppendMessages(ctx context.Context, msgs []schemas.Message) error
	ListMessages(ctx context.Context, limit int) ([]schemas.Message, error)

	Close()
}

func (f ItemFilter) matches(it schemas.InventoryItem) bool {
	if f.ItemType != 0 && it.ItemType != f.ItemType {
		return false
	}
	if len(f.Locations) == 0 {
		return true
	}
	for _, l := range f.Locations {
		if it.Location == l {
			return true
		}
	}
	return false
}

func (f OrderFilter) matches(o schemas.Order) bool {
	if f.ItemType != 0 && o.ItemType != f.ItemType {
		return false
	}
	if f.Destination != nil && o.Destination != *f.Destination {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if o.Status == s {
			return true
		}
	}
	return false
}
