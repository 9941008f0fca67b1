// internal/engine/events.go
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

// -- Edge completion events --

// ClassificationProcessed records an item the Classification edge placed on
// conveyor c.
func (e *Engine) ClassificationProcessed(ctx context.Context, t schemas.ItemType, c schemas.Conveyor) (schemas.InventoryItem, error) {
	if !t.Valid() || !c.Valid() {
		return schemas.InventoryItem{}, fmt.Errorf("%w: item type %d on conveyor %d", ErrInvalidArgument, t, c)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.run
	if !r.running {
		return schemas.InventoryItem{}, ErrNotRunning
	}

	item := schemas.InventoryItem{ItemType: t, Location: c.Location(), Conveyor: c, Updated: e.now()}
	if err := e.store.InsertItem(ctx, &item); err != nil {
		return schemas.InventoryItem{}, fmt.Errorf("failed to record classified item: %w", err)
	}
	r.conveyors[c].push(slot{id: item.ID, itemType: t})
	r.recentItem = t
	if i := t.Index(); r.inFlight[i] > 0 {
		r.inFlight[i]--
	}
	return item, nil
}

// RepositoryProcessed records that conveyor c delivered an item to Shipment
// and moves its order to ShipmentProcessing. It reports false when no item or
// order matched; the event is still acknowledged.
func (e *Engine) RepositoryProcessed(ctx context.Context, c schemas.Conveyor) (bool, error) {
	if !c.Valid() {
		return false, fmt.Errorf("%w: conveyor %d", ErrInvalidArgument, c)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.run
	if !r.running {
		return false, ErrNotRunning
	}

	var (
		item slot
		ok   bool
	)
	if id := r.granted[c]; id != 0 {
		item, ok = r.conveyors[c].remove(id)
	}
	if !ok {
		// The edge moved an item we did not grant; take the one at the front.
		item, ok = r.conveyors[c].pop()
	}
	r.granted[c], r.inTransit[c] = 0, false
	if !ok {
		e.logger.Debug("Repository event matched no item.", zap.Stringer("conveyor", c))
		return false, nil
	}
	if r.stuckItem[c] == item.id {
		r.stuckItem[c] = 0
	}
	r.shipment.push(item)
	if err := e.store.UpdateItemLocation(ctx, item.id, schemas.LocationShipment, e.now()); err != nil {
		return false, err
	}

	orderID, bound := r.boundOrder(item.id)
	if bound {
		delete(r.bindings, orderID)
	} else {
		o, found, err := e.unboundOrder(ctx, item.itemType)
		if err != nil {
			return false, err
		}
		if !found {
			e.logger.Debug("Repository event matched no order.", zap.Int64("item_id", item.id))
			return false, nil
		}
		orderID = o.ID
	}

	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o.Status != schemas.OrderRepositoryProcessing {
		return false, nil
	}
	if err := e.transition(ctx, &o, schemas.OrderShipmentProcessing); err != nil {
		return false, err
	}
	return true, nil
}

// ShipmentProcessed completes the order served by an item of type t sent to
// dest and credits the order reward. It reports false when nothing matched.
func (e *Engine) ShipmentProcessed(ctx context.Context, t schemas.ItemType, dest schemas.Destination) (bool, error) {
	if !t.Valid() || !dest.Valid() {
		return false, fmt.Errorf("%w: item type %d to %s", ErrInvalidArgument, t, dest)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.run
	if !r.running {
		return false, ErrNotRunning
	}

	var (
		item    slot
		orderID int64
		found   bool
	)
	for i, d := range r.shipping {
		if d.item.itemType == t && d.destination == dest {
			item, orderID, found = d.item, d.orderID, true
			r.shipping = append(r.shipping[:i:i], r.shipping[i+1:]...)
			break
		}
	}
	if !found {
		// The edge shipped without a dispatch from us.
		o, ok, err := e.unreservedShipmentOrder(ctx, t, &dest)
		if err != nil {
			return false, err
		}
		if !ok {
			e.logger.Debug("Shipment event matched no order.", zap.Stringer("item_type", t), zap.Stringer("dest", dest))
			return false, nil
		}
		orderID = o.ID
		if s, ok := r.shipment.firstOf(t); ok {
			item, _ = r.shipment.remove(s.id)
		}
	}

	if item.id != 0 {
		if err := e.store.UpdateItemLocation(ctx, item.id, schemas.LocationCompleted, e.now()); err != nil {
			return false, err
		}
	}
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o.Status != schemas.OrderShipmentProcessing {
		return false, nil
	}
	if err := e.transition(ctx, &o, schemas.OrderCompleted); err != nil {
		return false, err
	}
	r.reward += e.cfg.RewardOrder
	return true, nil
}

// -- Anomaly notifications --

// AnomalyOccurred latches a fault report for c; it takes effect on the next
// tick. It reports false for conveyors that cannot fault.
func (e *Engine) AnomalyOccurred(c schemas.Conveyor) (bool, error) {
	if !c.Valid() {
		return false, fmt.Errorf("%w: conveyor %d", ErrInvalidArgument, c)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.automaton.Trigger(c), nil
}

// AnomalySolved withdraws a fault report that no tick has consumed yet.
func (e *Engine) AnomalySolved(c schemas.Conveyor) error {
	if !c.Valid() {
		return fmt.Errorf("%w: conveyor %d", ErrInvalidArgument, c)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.automaton.ClearTrigger(c)
	return nil
}

// -- Gate checks --

// CheckClassification consumes the Classification gate.
func (e *Engine) CheckClassification() (schemas.Tactic, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gates.CheckClassification()
}

// CheckRepository consumes the grant for conveyor c. Once consumed the item
// counts as in transit until the edge reports it processed.
func (e *Engine) CheckRepository(c schemas.Conveyor) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.gates.CheckRepository(c) {
		return false
	}
	if e.run.granted[c] != 0 {
		e.run.inTransit[c] = true
	}
	return true
}

// CheckShipment consumes the Shipment gate and returns the destination, or
// TacticDiscard.
func (e *Engine) CheckShipment() (schemas.Tactic, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gates.CheckShipment()
}

// -- Order intake --

// CreateOrder records a new order as Received. Orders are only taken while
// a run is active.
func (e *Engine) CreateOrder(ctx context.Context, t schemas.ItemType, dest schemas.Destination) (schemas.Order, error) {
	if !t.Valid() || !dest.Valid() {
		return schemas.Order{}, fmt.Errorf("%w: item type %d to %s", ErrInvalidArgument, t, dest)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.run.running {
		return schemas.Order{}, ErrNotRunning
	}
	o := schemas.Order{Made: e.now(), ItemType: t, Destination: dest, Status: schemas.OrderReceived}
	if err := e.store.InsertOrder(ctx, &o); err != nil {
		return schemas.Order{}, fmt.Errorf("failed to record order: %w", err)
	}
	e.run.placed++
	return o, nil
}

// AcceptOrder moves a Received order to RepositoryProcessing once the edges
// have been told about it. Orders past Received are returned unchanged. It
// does not check the run state: an order taken by CreateOrder is always
// released, and the next Start resets the store.
func (e *Engine) AcceptOrder(ctx context.Context, id int64) (schemas.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, err := e.store.GetOrder(ctx, id)
	if err != nil {
		return schemas.Order{}, err
	}
	if o.Status != schemas.OrderReceived {
		return o, nil
	}
	if err := e.transition(ctx, &o, schemas.OrderRepositoryProcessing); err != nil {
		return schemas.Order{}, err
	}
	return o, nil
}
