// internal/simulator/simulator_test.go
package simulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/dispatcher"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/engine"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/policy"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/store"
)

// -- Test Doubles --

type silentNotifier struct{}

func (silentNotifier) Broadcast(context.Context, schemas.Envelope, ...schemas.Sender) error {
	return nil
}

type heuristicOnly struct{}

func (heuristicOnly) For(mode string) (policy.Policy, error) {
	if mode != policy.ModeHeuristic {
		return nil, policy.ErrUnknownMode
	}
	return policy.Heuristic{}, nil
}

// -- Setup --

func newSimulator(t *testing.T, mutate func(*config.WarehouseConfig)) (*Simulator, *store.MemoryStore) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := config.NewDefaultConfig().WarehouseCfg
	if mutate != nil {
		mutate(&cfg)
	}
	st := store.NewMemoryStore()
	eng, err := engine.New(cfg, logger, st, heuristicOnly{})
	require.NoError(t, err)
	d, err := dispatcher.New(eng, silentNotifier{}, nil, logger)
	require.NoError(t, err)
	sim, err := New(d, logger)
	require.NoError(t, err)
	return sim, st
}

func completedOrders(t *testing.T, st *store.MemoryStore) int {
	t.Helper()
	orders, err := st.ListOrders(context.Background(), store.OrderFilter{Statuses: []schemas.OrderStatus{schemas.OrderCompleted}})
	require.NoError(t, err)
	return len(orders)
}

// -- Tests --

func TestNew_ValidatesDependencies(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := New(nil, logger)
	assert.EqualError(t, err, "dispatcher cannot be nil")

	sim, _ := newSimulator(t, nil)
	_, err = New(sim.d, nil)
	assert.EqualError(t, err, "logger cannot be nil")
}

func TestRun_GeneratedExperimentEnds(t *testing.T) {
	defer goleak.VerifyNone(t)

	sim, st := newSimulator(t, func(c *config.WarehouseConfig) {
		c.OrderTotal = 20
		c.Seed = 7
	})

	report, err := sim.Run(context.Background(), Options{
		Experiment: engine.ExperimentGenerated,
		Mode:       policy.ModeHeuristic,
		MaxTicks:   2000,
	})
	require.NoError(t, err)

	assert.True(t, report.Ended)
	assert.NotEmpty(t, report.RunID)
	assert.Greater(t, report.Ticks, 20, "the run outlives the order budget")
	assert.Equal(t, 20, report.Completed, "every generated order is shipped")
	assert.Zero(t, report.Anomalies, "generated runs inject no anomalies")
	assert.Equal(t, 20, completedOrders(t, st))
}

func TestRun_AnomalyExperimentEnds(t *testing.T) {
	defer goleak.VerifyNone(t)

	sim, st := newSimulator(t, func(c *config.WarehouseConfig) {
		c.OrderTotal = 20
		c.AnomalyMTBF = 4
		c.AnomalyDuration = 6
		c.AnomalyWait = 2
		c.Seed = 42
	})

	report, err := sim.Run(context.Background(), Options{
		Experiment: engine.ExperimentAnomaly,
		Mode:       policy.ModeHeuristic,
		MaxTicks:   2000,
	})
	require.NoError(t, err)

	assert.True(t, report.Ended)
	assert.Equal(t, 20, report.Completed)
	assert.Positive(t, report.Anomalies)
	assert.Equal(t, 20, completedOrders(t, st))
}

func TestRun_ManualOrders(t *testing.T) {
	defer goleak.VerifyNone(t)

	sim, st := newSimulator(t, nil)

	report, err := sim.Run(context.Background(), Options{
		Experiment:   engine.ExperimentManual,
		Mode:         policy.ModeHeuristic,
		ManualOrders: 4,
		MaxTicks:     500,
		Seed:         3,
	})
	require.NoError(t, err)

	assert.True(t, report.Ended)
	assert.Equal(t, 4, report.Completed)
	assert.Equal(t, 4, completedOrders(t, st))
}

func TestRun_TickLimit(t *testing.T) {
	sim, _ := newSimulator(t, func(c *config.WarehouseConfig) { c.OrderTotal = 20 })

	report, err := sim.Run(context.Background(), Options{
		Experiment: engine.ExperimentGenerated,
		Mode:       policy.ModeHeuristic,
		MaxTicks:   3,
	})
	assert.ErrorIs(t, err, ErrTickLimit)
	assert.False(t, report.Ended)
	assert.Equal(t, 3, report.Ticks)
}

func TestRun_RejectedStart(t *testing.T) {
	sim, _ := newSimulator(t, nil)

	_, err := sim.Run(context.Background(), Options{Experiment: "chaos", Mode: policy.ModeHeuristic})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnknownExperiment)
}

func TestRun_ContextCancelled(t *testing.T) {
	sim, _ := newSimulator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Run(ctx, Options{Experiment: engine.ExperimentGenerated, Mode: policy.ModeHeuristic})
	assert.ErrorIs(t, err, context.Canceled)
}
