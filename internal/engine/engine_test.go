// internal/engine/engine_test.go
package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/policy"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/store"
)

// -- Test Doubles --

// auditStore wraps the memory store and records every order status change
// that moves backwards, other than the anomaly rollback.
type auditStore struct {
	*store.MemoryStore

	mu         sync.Mutex
	status     map[int64]schemas.OrderStatus
	violations []string
}

func newAuditStore() *auditStore {
	return &auditStore{MemoryStore: store.NewMemoryStore(), status: map[int64]schemas.OrderStatus{}}
}

func (s *auditStore) InsertOrder(ctx context.Context, o *schemas.Order) error {
	if err := s.MemoryStore.InsertOrder(ctx, o); err != nil {
		return err
	}
	s.mu.Lock()
	s.status[o.ID] = o.Status
	s.mu.Unlock()
	return nil
}

func (s *auditStore) UpdateOrderStatus(ctx context.Context, id int64, to schemas.OrderStatus, completed *time.Time) error {
	s.mu.Lock()
	from := s.status[id]
	if to < from && !(from == schemas.OrderShipmentProcessing && to == schemas.OrderRepositoryProcessing) {
		s.violations = append(s.violations, from.String()+" -> "+to.String())
	}
	s.status[id] = to
	s.mu.Unlock()
	return s.MemoryStore.UpdateOrderStatus(ctx, id, to, completed)
}

func (s *auditStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.status = map[int64]schemas.OrderStatus{}
	s.mu.Unlock()
	return s.MemoryStore.Reset(ctx)
}

// recordingPolicy wraps another policy and records how it is called.
type recordingPolicy struct {
	inner policy.Policy
	// override, when set, replaces the inner selection.
	override *int

	mu       sync.Mutex
	selects  int
	allFalse int
	updates  []recordedUpdate
}

type recordedUpdate struct {
	action int
	delta  float64
}

func (p *recordingPolicy) Select(obs policy.Observation, mask []bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selects++
	if policy.FirstAvailable(mask) == int(schemas.TacticNoOp) {
		p.allFalse++
	}
	if p.override != nil {
		return *p.override
	}
	return p.inner.Select(obs, mask)
}

func (p *recordingPolicy) Update(prev policy.Observation, action int, delta float64, next policy.Observation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, recordedUpdate{action: action, delta: delta})
}

// fixedPolicies serves the same policy for every known mode.
type fixedPolicies struct{ p policy.Policy }

func (f fixedPolicies) For(mode string) (policy.Policy, error) {
	switch mode {
	case policy.ModePolicy, policy.ModeHeuristic, policy.ModeRandom:
		return f.p, nil
	}
	return nil, policy.ErrUnknownMode
}

// -- Setup --

type harness struct {
	engine *Engine
	store  *auditStore
	policy *recordingPolicy
}

func testWarehouseConfig() config.WarehouseConfig {
	return config.NewDefaultConfig().WarehouseCfg
}

func newHarness(t *testing.T, mutate func(*config.WarehouseConfig)) *harness {
	t.Helper()
	cfg := testWarehouseConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	st := newAuditStore()
	p := &recordingPolicy{inner: policy.Heuristic{}}
	e, err := New(cfg, zaptest.NewLogger(t), st, fixedPolicies{p: p})
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var clock int64
	e.now = func() time.Time {
		clock++
		return base.Add(time.Duration(clock) * time.Millisecond)
	}

	t.Cleanup(func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		assert.Empty(t, st.violations, "order status moved backwards")
	})
	return &harness{engine: e, store: st, policy: p}
}

func (h *harness) start(t *testing.T, experiment string) {
	t.Helper()
	_, err := h.engine.Start(context.Background(), experiment, policy.ModeHeuristic)
	require.NoError(t, err)
}

func (h *harness) process(t *testing.T) schemas.Decision {
	t.Helper()
	d, err := h.engine.Process(context.Background(), [schemas.NumConveyors]bool{})
	require.NoError(t, err)
	return d
}

func (h *harness) order(t *testing.T, it schemas.ItemType, dest schemas.Destination) schemas.Order {
	t.Helper()
	ctx := context.Background()
	o, err := h.engine.CreateOrder(ctx, it, dest)
	require.NoError(t, err)
	o, err = h.engine.AcceptOrder(ctx, o.ID)
	require.NoError(t, err)
	return o
}

func (h *harness) classify(t *testing.T, it schemas.ItemType, c schemas.Conveyor) schemas.InventoryItem {
	t.Helper()
	item, err := h.engine.ClassificationProcessed(context.Background(), it, c)
	require.NoError(t, err)
	return item
}

func (h *harness) orderStatus(t *testing.T, id int64) schemas.OrderStatus {
	t.Helper()
	o, err := h.store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o.Status
}

// -- Lifecycle --

func TestNew_ValidatesDependencies(t *testing.T) {
	logger := zaptest.NewLogger(t)
	st := store.NewMemoryStore()
	pols := fixedPolicies{p: policy.Heuristic{}}

	_, err := New(testWarehouseConfig(), nil, st, pols)
	assert.EqualError(t, err, "logger cannot be nil")
	_, err = New(testWarehouseConfig(), logger, nil, pols)
	assert.EqualError(t, err, "store cannot be nil")
	_, err = New(testWarehouseConfig(), logger, st, nil)
	assert.EqualError(t, err, "policies cannot be nil")

	bad := testWarehouseConfig()
	bad.CapConveyor = 0
	_, err = New(bad, logger, st, pols)
	assert.ErrorContains(t, err, "cap_conveyor")
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.engine.Process(ctx, [schemas.NumConveyors]bool{})
	assert.ErrorIs(t, err, ErrNotRunning, "no tick before Start")

	_, err = h.engine.Start(ctx, "chaos", policy.ModePolicy)
	assert.ErrorIs(t, err, ErrUnknownExperiment)
	_, err = h.engine.Start(ctx, ExperimentManual, "oracle")
	assert.ErrorIs(t, err, policy.ErrUnknownMode)

	_, err = h.engine.CreateOrder(ctx, schemas.ItemRed, 0)
	assert.ErrorIs(t, err, ErrNotRunning, "no orders before Start")
	require.NoError(t, h.store.InsertOrder(ctx, &schemas.Order{ItemType: schemas.ItemRed, Status: schemas.OrderReceived}))
	id, err := h.engine.Start(ctx, ExperimentManual, policy.ModeHeuristic)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	orders, err := h.store.ListOrders(ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders, "Start resets the records")

	d := h.process(t)
	assert.Equal(t, 1, d.Tick)
	assert.Equal(t, id, d.RunID)

	h.engine.Stop()
	assert.False(t, h.engine.Running())
	_, err = h.engine.Process(ctx, [schemas.NumConveyors]bool{})
	assert.ErrorIs(t, err, ErrNotRunning)

	status := h.engine.Status()
	assert.Equal(t, 1, status.Tick, "Stop freezes the run state")
	assert.Equal(t, ExperimentManual, status.ExperimentType)
	assert.Len(t, status.Conveyors, schemas.NumConveyors)

	newID, err := h.engine.Start(ctx, ExperimentGenerated, policy.ModeHeuristic)
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)
	assert.Equal(t, 0, h.engine.Status().Tick)
}

func TestEventsAfterStopAreRefused(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.engine.ClassificationProcessed(ctx, schemas.ItemRed, schemas.ConveyorLeft)
	assert.ErrorIs(t, err, ErrNotRunning, "nothing is recorded before the first Start")

	h.start(t, ExperimentManual)
	o := h.order(t, schemas.ItemRed, 0)
	h.process(t)
	h.process(t)
	h.classify(t, schemas.ItemRed, schemas.ConveyorLeft)
	d := h.process(t)
	require.True(t, d.Repository[schemas.ConveyorLeft])
	require.True(t, h.engine.CheckRepository(schemas.ConveyorLeft))
	matched, err := h.engine.RepositoryProcessed(ctx, schemas.ConveyorLeft)
	require.NoError(t, err)
	require.True(t, matched)
	d = h.process(t)
	require.Equal(t, schemas.Tactic(0), d.Shipment)

	h.engine.Stop()
	frozen := h.engine.Status()

	// -- Execution and Assertions --
	_, err = h.engine.ShipmentProcessed(ctx, schemas.ItemRed, 0)
	assert.ErrorIs(t, err, ErrNotRunning)
	_, err = h.engine.ClassificationProcessed(ctx, schemas.ItemRed, schemas.ConveyorRight)
	assert.ErrorIs(t, err, ErrNotRunning)
	_, err = h.engine.RepositoryProcessed(ctx, schemas.ConveyorLeft)
	assert.ErrorIs(t, err, ErrNotRunning)
	_, err = h.engine.CreateOrder(ctx, schemas.ItemBlue, 1)
	assert.ErrorIs(t, err, ErrNotRunning)

	assert.Equal(t, frozen, h.engine.Status(), "reward and loads stay as Stop left them")
	assert.Equal(t, schemas.OrderShipmentProcessing, h.orderStatus(t, o.ID))
	orders, err := h.store.ListOrders(ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	items, err := h.store.ListItems(ctx, store.ItemFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestEventValidation(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, ExperimentManual)
	ctx := context.Background()

	_, err := h.engine.ClassificationProcessed(ctx, 9, schemas.ConveyorLeft)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.engine.ClassificationProcessed(ctx, schemas.ItemRed, 7)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.engine.RepositoryProcessed(ctx, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.engine.ShipmentProcessed(ctx, schemas.ItemRed, schemas.DestinationTrash)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.engine.CreateOrder(ctx, schemas.ItemBlue, 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.engine.AnomalyOccurred(3)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	ok, err := h.engine.AnomalyOccurred(schemas.ConveyorMiddle)
	require.NoError(t, err)
	assert.False(t, ok, "middle conveyor is not fault-prone by default")
}

func TestLookupMissesAreAcknowledged(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, ExperimentManual)
	ctx := context.Background()

	matched, err := h.engine.RepositoryProcessed(ctx, schemas.ConveyorRight)
	require.NoError(t, err)
	assert.False(t, matched, "empty conveyor")

	h.classify(t, schemas.ItemBlue, schemas.ConveyorRight)
	matched, err = h.engine.RepositoryProcessed(ctx, schemas.ConveyorRight)
	require.NoError(t, err)
	assert.False(t, matched, "item moved but no order waits for it")
	assert.Equal(t, 1, h.engine.Status().ShipmentLoad)

	matched, err = h.engine.ShipmentProcessed(ctx, schemas.ItemBlue, 2)
	require.NoError(t, err)
	assert.False(t, matched)
	assert.Equal(t, 0.0, h.engine.Status().Reward)
}
