// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/anomaly"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/gate"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/policy"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/store"
)

// Experiment types accepted by Start.
const (
	// ExperimentManual takes orders only through intake.
	ExperimentManual = "manual"
	// ExperimentGenerated creates one seeded random order per tick.
	ExperimentGenerated = "generated"
	// ExperimentAnomaly generates orders and injects random anomalies.
	ExperimentAnomaly = "anomaly"
)

var (
	// ErrNotRunning is returned by Process, the edge completion events and
	// CreateOrder when no run is active. Stopped runs stay frozen.
	ErrNotRunning = errors.New("no experiment is running")
	// ErrUnknownExperiment is returned by Start for an unsupported experiment type.
	ErrUnknownExperiment = errors.New("unknown experiment type")
	// ErrInvalidArgument is returned for out-of-range item types, conveyors or destinations.
	ErrInvalidArgument = errors.New("invalid argument")
)

// -- Interfaces for Dependency Inversion --

// Store is the subset of the record store the engine needs.
type Store interface {
	Reset(ctx context.Context) error
	InsertItem(ctx context.Context, item *schemas.InventoryItem) error
	UpdateItemLocation(ctx context.Context, id int64, loc schemas.Location, at time.Time) error
	InsertOrder(ctx context.Context, order *schemas.Order) error
	UpdateOrderStatus(ctx context.Context, id int64, status schemas.OrderStatus, completed *time.Time) error
	GetOrder(ctx context.Context, id int64) (schemas.Order, error)
	ListOrders(ctx context.Context, f store.OrderFilter) ([]schemas.Order, error)
}

// Policies hands out the decision policy for a decision mode.
type Policies interface {
	For(mode string) (policy.Policy, error)
}

// Engine is the warehouse coordinator. One mutex serializes every tick and
// every event handler, so record scans followed by writes stay atomic.
type Engine struct {
	cfg      config.WarehouseConfig
	logger   *zap.Logger
	store    Store
	policies Policies
	gates    *gate.Set
	now      func() time.Time

	mu        sync.Mutex
	automaton *anomaly.Automaton
	run       *run
}

// New creates an idle engine. Start must be called before Process.
func New(cfg config.WarehouseConfig, logger *zap.Logger, st Store, policies Policies) (*Engine, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if st == nil {
		return nil, errors.New("store cannot be nil")
	}
	if policies == nil {
		return nil, errors.New("policies cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid warehouse config: %w", err)
	}
	prone, err := cfg.FaultProneConveyors()
	if err != nil {
		return nil, err
	}
	conveyors := make([]schemas.Conveyor, 0, len(prone))
	for _, c := range prone {
		conveyors = append(conveyors, schemas.Conveyor(c))
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "warehouse_engine")),
		store:     st,
		policies:  policies,
		gates:     &gate.Set{},
		now:       func() time.Time { return time.Now().UTC() },
		automaton: anomaly.New(cfg.AnomalyDuration, cfg.AnomalyWait, conveyors),
		run:       newRun("", ExperimentManual, policy.ModePolicy, nil, cfg.Seed),
	}, nil
}

// Start resets the records and the run state and begins a new experiment.
// A run already in progress is replaced.
func (e *Engine) Start(ctx context.Context, experiment, mode string) (string, error) {
	switch experiment {
	case "":
		experiment = ExperimentManual
	case ExperimentManual, ExperimentGenerated, ExperimentAnomaly:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownExperiment, experiment)
	}
	if mode == "" {
		mode = policy.ModePolicy
	}
	p, err := e.policies.For(mode)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Reset(ctx); err != nil {
		return "", fmt.Errorf("failed to reset records: %w", err)
	}
	id := uuid.NewString()
	e.run = newRun(id, experiment, mode, p, e.cfg.Seed)
	e.run.running = true
	e.automaton.Reset()
	e.gates.Clear()

	e.logger.Info("Experiment started.",
		zap.String("run_id", id),
		zap.String("experiment_type", experiment),
		zap.String("decision_mode", mode))
	return id, nil
}

// Stop freezes the current run. Ticks are rejected until the next Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run.running {
		e.logger.Info("Experiment stopped.", zap.String("run_id", e.run.id), zap.Int("tick", e.run.tick))
	}
	e.run.running = false
	e.gates.Clear()
}

// Running reports whether ticks are currently accepted.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run.running
}

// Status returns a snapshot of the run state.
func (e *Engine) Status() schemas.RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.run
	st := schemas.RunStatus{
		RunID:          r.id,
		Running:        r.running,
		ExperimentType: r.experiment,
		DecisionMode:   r.mode,
		Tick:           r.tick,
		Reward:         r.reward,
		InFlight:       r.inFlight,
		ShipmentLoad:   r.shipment.len(),
	}
	for _, c := range schemas.Conveyors {
		cs := schemas.ConveyorStatus{
			Conveyor:  c,
			Anomalous: e.automaton.Anomalous(c),
			Stuck:     e.automaton.IsStuck(c),
			Load:      r.conveyors[c].len(),
		}
		if t, ok := e.automaton.OnsetTick(c); ok {
			cs.OnsetTick = &t
		}
		st.Conveyors = append(st.Conveyors, cs)
	}
	return st
}

// run is the state of one experiment. It is replaced wholesale by Start.
type run struct {
	id         string
	experiment string
	mode       string
	policy     policy.Policy
	running    bool
	rng        *rand.Rand

	tick     int
	reward   float64
	placed   int
	inFlight [schemas.NumItemTypes]int
	pending  *pendingUpdate

	recentItem schemas.ItemType
	conveyors  [schemas.NumConveyors]queue
	shipment   queue
	rWait      [schemas.NumConveyors]int
	sWait      int

	// granted is the item each conveyor was last allowed to advance, until
	// the Repository edge confirms it.
	granted [schemas.NumConveyors]int64
	// inTransit is set once the edge has consumed the grant for a conveyor.
	inTransit [schemas.NumConveyors]bool
	// stuckItem is the head item jammed on a Stuck conveyor.
	stuckItem [schemas.NumConveyors]int64
	// bindings maps an order to the item reserved for it at the Repository stage.
	bindings map[int64]int64
	// shipping holds items dispatched at Shipment but not yet confirmed.
	shipping []dispatch
}

// pendingUpdate is a classification decision whose reward is not known yet.
type pendingUpdate struct {
	obs    policy.Observation
	action int
	reward float64
	policy policy.Policy
}

// dispatch is a Shipment decision awaiting the edge's confirmation.
type dispatch struct {
	item        slot
	orderID     int64
	destination schemas.Destination
}

func newRun(id, experiment, mode string, p policy.Policy, seed int64) *run {
	return &run{
		id:         id,
		experiment: experiment,
		mode:       mode,
		policy:     p,
		rng:        rand.New(rand.NewSource(seed)),
		bindings:   make(map[int64]int64),
	}
}

// boundOrder returns the order bound to itemID.
func (r *run) boundOrder(itemID int64) (int64, bool) {
	for o, it := range r.bindings {
		if it == itemID {
			return o, true
		}
	}
	return 0, false
}

// onHand counts stock of type t that can still fill an order: items queued on
// a conveyor (unless jammed), at Shipment, or dispatched and unconfirmed.
func (r *run) onHand(t schemas.ItemType) int {
	n := 0
	for c := range r.conveyors {
		for _, s := range r.conveyors[c].items {
			if s.itemType == t && s.id != r.stuckItem[c] {
				n++
			}
		}
	}
	n += r.shipment.count(t)
	for _, d := range r.shipping {
		if d.item.itemType == t {
			n++
		}
	}
	return n
}
