// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "warehouse-cloud", cfg.Logger().ServiceName)
	assert.Equal(t, 16, cfg.Server().WorkerConcurrency)
	assert.Equal(t, 2*time.Second, cfg.Server().AcquireTimeout)
	assert.Empty(t, cfg.Database().URL, "the in-memory store is the default")

	w := cfg.Warehouse()
	assert.Equal(t, 5, w.CapConveyor)
	assert.Equal(t, 5, w.CapWait)
	assert.Equal(t, 30.0, w.RewardOrder)
	assert.Equal(t, 70.0, w.RewardTrash)
	assert.Equal(t, 1.0, w.RewardWait)
	assert.Equal(t, 20, w.OrderTotal)
	assert.Equal(t, 10, w.AnomalyDuration)
	assert.Equal(t, 3, w.AnomalyWait)
	assert.Equal(t, DecisionRuleSelective, w.DecisionRule)
	assert.Equal(t, []string{"left", "right"}, w.FaultProne)

	assert.Equal(t, 0.99, cfg.Policy().Discount)
	assert.Equal(t, 128, cfg.Policy().BatchSize)
	assert.False(t, cfg.Telemetry().Enabled())

	require.NoError(t, cfg.Validate(), "defaults must always validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate())

		invalidServer := *cfg
		invalidServer.ServerCfg.WorkerConcurrency = 0
		err := invalidServer.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.worker_concurrency must be a positive integer")

		invalidRatio := *cfg
		invalidRatio.TelemetryCfg.SampleRatio = 1.5
		err = invalidRatio.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.sample_ratio")
	})

	t.Run("Warehouse Validation", func(t *testing.T) {
		valid := NewDefaultConfig().WarehouseCfg
		assert.NoError(t, valid.Validate())

		tests := []struct {
			name    string
			mutate  func(w *WarehouseConfig)
			wantErr string
		}{
			{"zero conveyor capacity", func(w *WarehouseConfig) { w.CapConveyor = 0 }, "cap_conveyor"},
			{"negative wait cap", func(w *WarehouseConfig) { w.CapWait = -1 }, "cap_wait"},
			{"zero anomaly duration", func(w *WarehouseConfig) { w.AnomalyDuration = 0 }, "anomaly_duration"},
			{"unknown decision rule", func(w *WarehouseConfig) { w.DecisionRule = "greedy" }, "unknown decision_rule"},
			{"unknown conveyor", func(w *WarehouseConfig) { w.FaultProne = []string{"up"} }, "unknown fault_prone"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := valid
				w.FaultProne = append([]string(nil), valid.FaultProne...)
				tt.mutate(&w)
				err := w.Validate()
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			})
		}
	})

	t.Run("Policy Validation", func(t *testing.T) {
		valid := NewDefaultConfig().PolicyCfg
		assert.NoError(t, valid.Validate())

		badDiscount := valid
		badDiscount.Discount = 1.2
		assert.ErrorContains(t, badDiscount.Validate(), "discount")

		badBatch := valid
		badBatch.BatchSize = 0
		assert.ErrorContains(t, badBatch.Validate(), "batch_size")
	})
}

func TestFaultProneConveyors(t *testing.T) {
	w := WarehouseConfig{FaultProne: []string{"Left", " middle ", "RIGHT"}}
	got, err := w.FaultProneConveyors()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
server:
  addr: ":9000"
  worker_concurrency: 4
warehouse:
  order_total: 7
  fault_prone: ["middle"]
  decision_rule: availability
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, ":9000", cfg.Server().Addr)
		assert.Equal(t, 4, cfg.Server().WorkerConcurrency)
		assert.Equal(t, 7, cfg.Warehouse().OrderTotal)
		assert.Equal(t, []string{"middle"}, cfg.Warehouse().FaultProne)
		assert.Equal(t, DecisionRuleAvailability, cfg.Warehouse().DecisionRule)
		// Defaults still apply to keys the file does not set.
		assert.Equal(t, 5, cfg.Warehouse().CapConveyor)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("server.worker_concurrency", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "server.worker_concurrency must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
database:
  url: "postgres://configfile/db"
`)))

		t.Setenv("WAREHOUSE_DATABASE_URL", "postgres://envvar/db")
		t.Setenv("WAREHOUSE_WAREHOUSE_ORDER_TOTAL", "3")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "postgres://envvar/db", cfg.Database().URL, "env must override the config file")
		assert.Equal(t, 3, cfg.Warehouse().OrderTotal)
	})
}

func TestSetters(t *testing.T) {
	var cfg Interface = NewDefaultConfig()
	cfg.SetServerWorkerConcurrency(2)
	cfg.SetWarehouseOrderTotal(9)
	cfg.SetWarehouseSeed(42)

	assert.Equal(t, 2, cfg.Server().WorkerConcurrency)
	assert.Equal(t, 9, cfg.Warehouse().OrderTotal)
	assert.Equal(t, int64(42), cfg.Warehouse().Seed)
}
