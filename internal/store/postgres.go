// File: internal/store/postgres.go
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStore is the PostgreSQL implementation of Repository.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// Connect opens a pool for cfg.URL, applies the schema and returns the store.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := NewPostgres(connectCtx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres wraps an existing pool and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("store")}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE inventory, orders, messages RESTART IDENTITY;`); err != nil {
		return fmt.Errorf("failed to reset records: %w", err)
	}
	return nil
}

// -- Inventory --

func (s *PostgresStore) InsertItem(ctx context.Context, item *schemas.InventoryItem) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO inventory (item_type, stored, conveyor, updated) VALUES ($1, $2, $3, $4) RETURNING id;`,
		int16(item.ItemType), int16(item.Location), int16(item.Conveyor), item.Updated.UTC(),
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateItemLocation(ctx context.Context, id int64, loc schemas.Location, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE inventory SET stored = $2, updated = $3 WHERE id = $1;`, id, int16(loc), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to update item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return nil
}

const selectItems = `SELECT id, item_type, stored, conveyor, updated FROM inventory`

func (s *PostgresStore) GetItem(ctx context.Context, id int64) (schemas.InventoryItem, error) {
	rows, err := s.pool.Query(ctx, selectItems+` WHERE id = $1;`, id)
	if err != nil {
		return schemas.InventoryItem{}, fmt.Errorf("failed to query item %d: %w", id, err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return schemas.InventoryItem{}, err
	}
	if len(items) == 0 {
		return schemas.InventoryItem{}, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return items[0], nil
}

func (s *PostgresStore) ListItems(ctx context.Context, f ItemFilter) ([]schemas.InventoryItem, error) {
	locs := make([]int16, len(f.Locations))
	for i, l := range f.Locations {
		locs[i] = int16(l)
	}
	query := selectItems + `
        WHERE ($1 = 0 OR item_type = $1)
          AND (cardinality($2::smallint[]) = 0 OR stored = ANY($2))
        ORDER BY updated ASC, id ASC
        LIMIT NULLIF($3, 0);`
	rows, err := s.pool.Query(ctx, query, int16(f.ItemType), locs, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]schemas.InventoryItem, error) {
	defer rows.Close()
	var items []schemas.InventoryItem
	for rows.Next() {
		var it schemas.InventoryItem
		if err := rows.Scan(&it.ID, &it.ItemType, &it.Location, &it.Conveyor, &it.Updated); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return items, nil
}

// -- Orders --

func (s *PostgresStore) InsertOrder(ctx context.Context, order *schemas.Order) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO orders (made, completed, item_type, dest, status) VALUES ($1, $2, $3, $4, $5) RETURNING id;`,
		order.Made.UTC(), order.Completed, int16(order.ItemType), int16(order.Destination), int16(order.Status),
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id int64, status schemas.OrderStatus, completed *time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE orders SET status = $2, completed = $3 WHERE id = $1;`, id, int16(status), completed)
	if err != nil {
		return fmt.Errorf("failed to update order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return nil
}

const selectOrders = `SELECT id, made, completed, item_type, dest, status FROM orders`

func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (schemas.Order, error) {
	rows, err := s.pool.Query(ctx, selectOrders+` WHERE id = $1;`, id)
	if err != nil {
		return schemas.Order{}, fmt.Errorf("failed to query order %d: %w", id, err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return schemas.Order{}, err
	}
	if len(orders) == 0 {
		return schemas.Order{}, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return orders[0], nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, f OrderFilter) ([]schemas.Order, error) {
	statuses := make([]int16, len(f.Statuses))
	for i, st := range f.Statuses {
		statuses[i] = int16(st)
	}
	var dest *int16
	if f.Destination != nil {
		d := int16(*f.Destination)
		dest = &d
	}
	query := selectOrders + `
        WHERE ($1 = 0 OR item_type = $1)
          AND (cardinality($2::smallint[]) = 0 OR status = ANY($2))
          AND ($3::smallint IS NULL OR dest = $3)
        ORDER BY made ASC, id ASC
        LIMIT NULLIF($4, 0);`
	rows, err := s.pool.Query(ctx, query, int16(f.ItemType), statuses, dest, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]schemas.Order, error) {
	defer rows.Close()
	var orders []schemas.Order
	for rows.Next() {
		var o schemas.Order
		if err := rows.Scan(&o.ID, &o.Made, &o.Completed, &o.ItemType, &o.Destination, &o.Status); err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return orders, nil
}

// -- Message journal --

// AppendMessages copies a batch of messages in a single transaction.
func (s *PostgresStore) AppendMessages(ctx context.Context, msgs []schemas.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after Commit returns ErrTxClosed, which is expected.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	rows := make([][]interface{}, len(msgs))
	for i, m := range msgs {
		payload := m.Payload
		if len(payload) == 0 || string(payload) == "null" {
			payload = json.RawMessage("{}")
		}
		rows[i] = []interface{}{m.ID, int32(m.Sender), m.Title, payload, m.Received.UTC()}
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"messages"},
		[]string{"id", "sender", "title", "msg", "received"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy messages: %w", err)
	}
	if int(copied) != len(msgs) {
		return fmt.Errorf("mismatch in copied messages count: expected %d, got %d", len(msgs), copied)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, limit int) ([]schemas.Message, error) {
	query := `
        SELECT id, sender, title, msg, received FROM (
            SELECT id::text AS id, sender, title, msg, received FROM messages
            ORDER BY received DESC
            LIMIT NULLIF($1, 0)
        ) recent
        ORDER BY received ASC;`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []schemas.Message
	for rows.Next() {
		var m schemas.Message
		var payload []byte
		if err := rows.Scan(&m.ID, &m.Sender, &m.Title, &payload, &m.Received); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Payload = payload
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return msgs, nil
}
