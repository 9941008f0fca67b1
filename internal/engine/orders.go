// internal/engine/orders.go
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/store"
)

// transition moves an order to status to. Status only moves forward, except
// the rollback from ShipmentProcessing to RepositoryProcessing.
func (e *Engine) transition(ctx context.Context, o *schemas.Order, to schemas.OrderStatus) error {
	rollback := o.Status == schemas.OrderShipmentProcessing && to == schemas.OrderRepositoryProcessing
	if to <= o.Status && !rollback {
		return fmt.Errorf("order %d cannot move from %q to %q", o.ID, o.Status, to)
	}
	var completed = o.Completed
	if to == schemas.OrderCompleted {
		now := e.now()
		completed = &now
	}
	if err := e.store.UpdateOrderStatus(ctx, o.ID, to, completed); err != nil {
		return err
	}
	o.Status, o.Completed = to, completed
	return nil
}

// unboundOrder returns the oldest RepositoryProcessing order of type t that
// no item has been reserved for yet.
func (e *Engine) unboundOrder(ctx context.Context, t schemas.ItemType) (schemas.Order, bool, error) {
	orders, err := e.store.ListOrders(ctx, store.OrderFilter{
		ItemType: t,
		Statuses: []schemas.OrderStatus{schemas.OrderRepositoryProcessing},
	})
	if err != nil {
		return schemas.Order{}, false, err
	}
	for _, o := range orders {
		if _, bound := e.run.bindings[o.ID]; !bound {
			return o, true, nil
		}
	}
	return schemas.Order{}, false, nil
}

// unreservedShipmentOrder returns the oldest ShipmentProcessing order of type
// t, optionally restricted to one destination, that no dispatched item serves.
func (e *Engine) unreservedShipmentOrder(ctx context.Context, t schemas.ItemType, dest *schemas.Destination) (schemas.Order, bool, error) {
	orders, err := e.store.ListOrders(ctx, store.OrderFilter{
		ItemType:    t,
		Statuses:    []schemas.OrderStatus{schemas.OrderShipmentProcessing},
		Destination: dest,
	})
	if err != nil {
		return schemas.Order{}, false, err
	}
	for _, o := range orders {
		if !e.run.reserved(o.ID) {
			return o, true, nil
		}
	}
	return schemas.Order{}, false, nil
}

// reserved reports whether an item has been dispatched for the order.
func (r *run) reserved(orderID int64) bool {
	for _, d := range r.shipping {
		if d.orderID == orderID {
			return true
		}
	}
	return false
}

// releaseBindings frees the orders reserved for items on conveyor c after
// it faults, so items on healthy conveyors can serve them. An order found at
// ShipmentProcessing is rolled back. Edge events never produce that state,
// since RepositoryProcessed takes the item off its conveyor before the order
// moves on; it only arises from records changed outside the engine.
func (e *Engine) releaseBindings(ctx context.Context, c schemas.Conveyor) error {
	r := e.run
	for orderID, itemID := range r.bindings {
		if !r.conveyors[c].contains(itemID) {
			continue
		}
		if r.inTransit[c] && r.granted[c] == itemID {
			continue
		}
		delete(r.bindings, orderID)

		o, err := e.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != schemas.OrderShipmentProcessing {
			continue
		}
		if err := e.transition(ctx, &o, schemas.OrderRepositoryProcessing); err != nil {
			return err
		}
		e.logger.Info("Order rolled back after anomaly.",
			zap.Int64("order_id", orderID), zap.Stringer("conveyor", c))
	}
	return nil
}
