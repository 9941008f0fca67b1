// internal/engine/tick.go
package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/anomaly"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/gate"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/observability"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/policy"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/store"
)

var outstandingStatuses = []schemas.OrderStatus{
	schemas.OrderReceived,
	schemas.OrderRepositoryProcessing,
	schemas.OrderShipmentProcessing,
}

// Process runs one tick. faults are the fault flags the Classification edge
// observed since the previous tick. Once the run has met its order budget the
// returned bundle has Ended set and the run stops.
func (e *Engine) Process(ctx context.Context, faults [schemas.NumConveyors]bool) (schemas.Decision, error) {
	ctx, span := observability.Tracer().Start(ctx, "engine.Process")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.run
	if !r.running {
		return schemas.Decision{}, ErrNotRunning
	}

	d, err := e.tick(ctx, faults)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return schemas.Decision{}, fmt.Errorf("tick %d: %w", r.tick, err)
	}
	span.SetAttributes(
		attribute.String("run_id", r.id),
		attribute.Int("tick", d.Tick),
		attribute.Float64("reward", d.Reward),
		attribute.Bool("ended", d.Ended),
	)
	return d, nil
}

func (e *Engine) tick(ctx context.Context, faults [schemas.NumConveyors]bool) (schemas.Decision, error) {
	r := e.run
	outstanding, err := e.store.ListOrders(ctx, store.OrderFilter{Statuses: outstandingStatuses})
	if err != nil {
		return schemas.Decision{}, err
	}

	// Termination. The budget is met once order_total orders have been
	// placed, or order_total ticks have passed for a short manual run.
	budgetMet := r.tick > e.cfg.OrderTotal || (r.placed > 0 && r.placed >= e.cfg.OrderTotal)
	if len(outstanding) == 0 && budgetMet {
		r.running = false
		e.gates.Clear()
		e.logger.Info("Experiment finished.",
			zap.String("run_id", r.id), zap.Int("tick", r.tick), zap.Float64("reward", r.reward))
		return schemas.Decision{RunID: r.id, Tick: r.tick, Reward: r.reward, Ended: true}, nil
	}

	// Reward accrual.
	r.reward -= float64(len(outstanding)) * e.cfg.RewardWait
	r.tick++

	d := schemas.Decision{RunID: r.id, Tick: r.tick}
	if r.experiment != ExperimentManual && r.tick <= e.cfg.OrderTotal {
		o, err := e.generateOrder(ctx)
		if err != nil {
			return schemas.Decision{}, err
		}
		outstanding = append(outstanding, o)
		d.NewOrders = append(d.NewOrders, o)
	}
	var counts [schemas.NumItemTypes]int
	for _, o := range outstanding {
		counts[o.ItemType.Index()]++
	}

	// Deferred learning.
	if p := r.pending; p != nil {
		p.policy.Update(p.obs, p.action, r.reward-p.reward, e.observe(counts))
		r.pending = nil
	}

	// Anomaly onset.
	if r.experiment == ExperimentAnomaly {
		for _, c := range schemas.Conveyors {
			if e.automaton.FaultProne(c) && r.rng.Intn(e.cfg.AnomalyMTBF) == 0 {
				e.automaton.Trigger(c)
			}
		}
	}
	for _, c := range e.automaton.Onset(r.tick, faults) {
		e.logger.Info("Anomaly started.", zap.Stringer("conveyor", c), zap.Int("tick", r.tick))
		if err := e.releaseBindings(ctx, c); err != nil {
			return schemas.Decision{}, err
		}
	}

	d.Classification = e.classify(e.observe(counts))

	capacity, err := e.repositoryStage(ctx, &d)
	if err != nil {
		return schemas.Decision{}, err
	}
	if err := e.recover(ctx, &d, capacity); err != nil {
		return schemas.Decision{}, err
	}
	if d.Shipment, err = e.shipmentStage(ctx); err != nil {
		return schemas.Decision{}, err
	}

	// Replenishment.
	for _, t := range schemas.ItemTypes {
		i := t.Index()
		if r.inFlight[i]+r.onHand(t) < counts[i] {
			d.Purchases = append(d.Purchases, t)
			r.inFlight[i]++
		}
	}

	e.gates.Publish(gate.Decision{
		Classification: d.Classification,
		Repository:     d.Repository,
		Shipment:       d.Shipment,
	})

	for _, c := range schemas.Conveyors {
		d.SetConveyorFlags(c, e.automaton.Anomalous(c), e.automaton.IsStuck(c))
		d.Loads[c] = r.conveyors[c].len()
	}
	d.Reward = r.reward
	d.InFlight = r.inFlight
	d.ShipmentLoad = r.shipment.len()
	d.Outstanding = len(outstanding)

	e.logger.Debug("Tick processed.",
		zap.Int("tick", d.Tick),
		zap.Float64("reward", d.Reward),
		zap.Int("c_decision", int(d.Classification)),
		zap.Bools("r_decision", d.Repository[:]),
		zap.Int("s_decision", int(d.Shipment)))
	return d, nil
}

// observe builds the policy view of the current run state.
func (e *Engine) observe(orders [schemas.NumItemTypes]int) policy.Observation {
	r := e.run
	obs := policy.Observation{
		Tick:        r.tick,
		RecentItem:  r.recentItem,
		Shipment:    r.shipment.types(),
		Orders:      orders,
		AnomalyMask: e.automaton.Mask(),
	}
	for c := range r.conveyors {
		obs.Conveyors[c] = r.conveyors[c].types()
	}
	return obs
}

// classify picks the conveyor for the next classified item. The policy is
// consulted only when more than one conveyor can take it.
func (e *Engine) classify(obs policy.Observation) schemas.Tactic {
	r := e.run
	mask := make([]bool, schemas.NumTactics)
	eligible, only := 0, schemas.TacticNoOp
	for _, c := range schemas.Conveyors {
		if e.automaton.IsStuck(c) || r.conveyors[c].len() >= e.cfg.CapConveyor {
			continue
		}
		if e.cfg.AnomalyAware && e.automaton.Anomalous(c) {
			continue
		}
		mask[c] = true
		eligible++
		only = schemas.Tactic(c)
	}

	demand := 0
	for _, n := range r.inFlight {
		demand += n
	}
	need := eligible > 1 && (demand > 0 || e.cfg.DecisionRule == config.DecisionRuleAvailability)

	switch {
	case need:
		a := r.policy.Select(obs, mask)
		if !policy.Valid(a, mask) {
			e.logger.Warn("Policy chose an unavailable tactic; using the first available.",
				zap.Int("tactic", a), zap.Bools("mask", mask))
			a = policy.FirstAvailable(mask)
		}
		r.pending = &pendingUpdate{obs: obs, action: a, reward: r.reward, policy: r.policy}
		return schemas.Tactic(a)
	case eligible == 1 && demand > 0:
		return only
	default:
		return schemas.TacticNoOp
	}
}

// repositoryStage decides which conveyors advance their head item to
// Shipment and returns the Shipment capacity left afterwards.
func (e *Engine) repositoryStage(ctx context.Context, d *schemas.Decision) (int, error) {
	r := e.run
	capacity := e.cfg.CapConveyor - r.shipment.len()
	for c := range r.granted {
		switch {
		case r.inTransit[c]:
			capacity--
		case r.granted[c] != 0:
			// The gate holding this grant is about to be overwritten.
			r.granted[c] = 0
		}
	}

	for _, c := range schemas.RepositoryPriority {
		if capacity <= 0 {
			break
		}
		if r.inTransit[c] || e.automaton.IsStuck(c) {
			continue
		}
		head, ok := r.conveyors[c].head()
		if !ok {
			r.rWait[c] = 0
			continue
		}

		_, bound := r.boundOrder(head.id)
		matched := bound
		if !matched {
			_, found, err := e.unboundOrder(ctx, head.itemType)
			if err != nil {
				return 0, err
			}
			matched = found
		}
		if !matched && r.rWait[c] < e.cfg.CapWait {
			r.rWait[c]++
			continue
		}

		if e.automaton.State(c) == anomaly.Active {
			if err := e.jam(ctx, c, head); err != nil {
				return 0, err
			}
			continue
		}
		if err := e.grant(ctx, d, c, head); err != nil {
			return 0, err
		}
		capacity--
	}
	return capacity, nil
}

// grant allows conveyor c to advance head and reserves an order for it.
func (e *Engine) grant(ctx context.Context, d *schemas.Decision, c schemas.Conveyor, head slot) error {
	r := e.run
	if _, bound := r.boundOrder(head.id); !bound {
		o, found, err := e.unboundOrder(ctx, head.itemType)
		if err != nil {
			return err
		}
		if found {
			r.bindings[o.ID] = head.id
		}
	}
	d.Repository[c] = true
	r.granted[c] = head.id
	r.rWait[c] = 0
	return nil
}

// jam moves an Active conveyor to Stuck instead of advancing it.
func (e *Engine) jam(ctx context.Context, c schemas.Conveyor, head slot) error {
	r := e.run
	e.automaton.MarkStuck(c, r.tick)
	r.stuckItem[c] = head.id
	e.logger.Info("Conveyor stuck.", zap.Stringer("conveyor", c), zap.Int("tick", r.tick), zap.Int64("item_id", head.id))
	if err := e.store.UpdateItemLocation(ctx, head.id, schemas.LocationStuck, e.now()); err != nil {
		return err
	}
	return e.releaseBindings(ctx, c)
}

// recover returns expired anomalies to Normal. A conveyor leaving Stuck
// advances its jammed item at once when Shipment has room, or on its next
// turn otherwise.
func (e *Engine) recover(ctx context.Context, d *schemas.Decision, capacity int) error {
	r := e.run
	for _, rec := range e.automaton.Recover(r.tick) {
		c := rec.Conveyor
		e.logger.Info("Anomaly recovered.", zap.Stringer("conveyor", c), zap.Int("tick", r.tick), zap.Bool("was_stuck", rec.WasStuck))
		if !rec.WasStuck {
			continue
		}
		if id := r.stuckItem[c]; id != 0 {
			if err := e.store.UpdateItemLocation(ctx, id, c.Location(), e.now()); err != nil {
				return err
			}
			r.stuckItem[c] = 0
		}
		head, ok := r.conveyors[c].head()
		if !ok {
			continue
		}
		if capacity <= 0 || r.inTransit[c] {
			r.rWait[c] = e.cfg.CapWait
			continue
		}
		if err := e.grant(ctx, d, c, head); err != nil {
			return err
		}
		capacity--
	}
	return nil
}

// shipmentStage decides where the oldest item at Shipment goes.
func (e *Engine) shipmentStage(ctx context.Context) (schemas.Tactic, error) {
	r := e.run
	head, ok := r.shipment.head()
	if !ok {
		r.sWait = 0
		return schemas.TacticNoOp, nil
	}

	o, found, err := e.unreservedShipmentOrder(ctx, head.itemType, nil)
	if err != nil {
		return schemas.TacticNoOp, err
	}
	switch {
	case found:
		r.shipment.pop()
		r.shipping = append(r.shipping, dispatch{item: head, orderID: o.ID, destination: o.Destination})
		r.sWait = 0
		return schemas.Tactic(o.Destination), nil
	case r.sWait >= e.cfg.CapWait:
		r.shipment.pop()
		r.sWait = 0
		r.reward -= e.cfg.RewardTrash
		e.logger.Info("Discarding unmatched item.", zap.Int64("item_id", head.id), zap.Stringer("item_type", head.itemType))
		if err := e.store.UpdateItemLocation(ctx, head.id, schemas.LocationCompleted, e.now()); err != nil {
			return schemas.TacticNoOp, err
		}
		return schemas.TacticDiscard, nil
	default:
		r.sWait++
		return schemas.TacticNoOp, nil
	}
}

// generateOrder creates a random order and accepts it for processing.
func (e *Engine) generateOrder(ctx context.Context) (schemas.Order, error) {
	r := e.run
	o := schemas.Order{
		Made:        e.now(),
		ItemType:    schemas.ItemTypes[r.rng.Intn(schemas.NumItemTypes)],
		Destination: schemas.Destination(r.rng.Intn(schemas.NumDestinations)),
		Status:      schemas.OrderReceived,
	}
	if err := e.store.InsertOrder(ctx, &o); err != nil {
		return schemas.Order{}, err
	}
	r.placed++
	if err := e.transition(ctx, &o, schemas.OrderRepositoryProcessing); err != nil {
		return schemas.Order{}, err
	}
	return o, nil
}
