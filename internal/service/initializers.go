// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/observability"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/policy"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/store"
)

// InitializeStore connects to PostgreSQL when a database URL is configured and
// falls back to the in-memory store otherwise.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.Repository, error) {
	if cfg.URL == "" {
		logger.Warn("No database configured; records are kept in memory and lost on exit.")
		return store.NewMemoryStore(), nil
	}

	logger.Info("Connecting to PostgreSQL record store.")
	pg, err := store.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}
	return pg, nil
}

// InitializePolicies builds the policy set for the configured fault-prone conveyors.
func InitializePolicies(cfg config.Interface, logger *zap.Logger) (*policy.Set, error) {
	wh := cfg.Warehouse()
	faultProne, err := faultProneConveyors(&wh)
	if err != nil {
		return nil, err
	}
	set, err := policy.NewSet(cfg.Policy(), wh.Seed, faultProne, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policies: %w", err)
	}
	return set, nil
}

// InitializeTracing installs the OTLP exporter when an endpoint is configured.
// The returned function is nil when tracing is disabled.
func InitializeTracing(ctx context.Context, cfg config.Interface, logger *zap.Logger) (observability.ShutdownFunc, error) {
	tcfg := cfg.Telemetry()
	if !tcfg.Enabled() {
		logger.Debug("Tracing disabled; no telemetry endpoint configured.")
		return nil, nil
	}
	shutdown, err := observability.SetupTracing(ctx, tcfg, cfg.Logger().ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return shutdown, nil
}

func faultProneConveyors(wh *config.WarehouseConfig) ([]schemas.Conveyor, error) {
	idx, err := wh.FaultProneConveyors()
	if err != nil {
		return nil, err
	}
	out := make([]schemas.Conveyor, 0, len(idx))
	for _, i := range idx {
		out = append(out, schemas.Conveyor(i))
	}
	return out, nil
}
