package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/store"
)

func TestInitializeStore(t *testing.T) {
	t.Run("InMemoryFallbackWarns", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		st, err := InitializeStore(context.Background(), config.DatabaseConfig{}, zap.New(core))
		require.NoError(t, err)
		assert.IsType(t, &store.MemoryStore{}, st)
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("UnparsableURL", func(t *testing.T) {
		_, err := InitializeStore(context.Background(), config.DatabaseConfig{URL: "postgres://:%zz@host/db"}, zap.NewNop())
		assert.ErrorContains(t, err, "failed to initialize record store")
	})
}

func TestInitializeTracing_Disabled(t *testing.T) {
	shutdown, err := InitializeTracing(context.Background(), config.NewDefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, shutdown)
}

func TestFaultProneConveyors(t *testing.T) {
	wh := config.NewDefaultConfig().WarehouseCfg
	got, err := faultProneConveyors(&wh)
	require.NoError(t, err)
	assert.Equal(t, []schemas.Conveyor{schemas.ConveyorLeft, schemas.ConveyorRight}, got)

	wh.FaultProne = []string{"Middle"}
	got, err = faultProneConveyors(&wh)
	require.NoError(t, err)
	assert.Equal(t, []schemas.Conveyor{schemas.ConveyorMiddle}, got)
}
