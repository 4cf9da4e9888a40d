// Package persistence is the durable write path: a per-symbol SQLite
// file (pure-Go driver, WAL mode) holding orders, trades, and
// order-book snapshots, written in batched transactions off the
// matching engine's hot path.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"matchcore/internal/domain"
)

// Store owns one symbol's SQLite database. Databases are not shared
// across symbols so that write contention on one book never stalls
// another.
type Store struct {
	symbol string
	db     *sql.DB
	log    zerolog.Logger
}

// Open creates (if absent) and configures the per-symbol database file
// under dir, applying the WAL pragmas the original's _get_connection
// sets on every connection.
func Open(dir, symbol string, log zerolog.Logger) (*Store, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s.db", symbol))
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", path, err)
	}
	// A single shared connection keeps the per-connection pragmas below
	// in force for every statement. Within this process all reads and
	// writes, transactions included, are serialized on that connection;
	// reads do not run concurrently with a write.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA mmap_size=268435456",
		"PRAGMA busy_timeout=2000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("persistence: pragma %q: %w", p, err)
		}
	}

	s := &Store{symbol: symbol, db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			order_type TEXT NOT NULL,
			price TEXT,
			quantity TEXT NOT NULL,
			filled_quantity TEXT NOT NULL,
			status TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			user_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			trade_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			price TEXT NOT NULL,
			quantity TEXT NOT NULL,
			aggressor_side TEXT NOT NULL,
			maker_order_id TEXT NOT NULL,
			taker_order_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			maker_fee TEXT,
			taker_fee TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS orderbook_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			snapshot_data TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol_status ON orders(symbol, status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_timestamp ON orders(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_timestamp ON trades(symbol, timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("persistence: init schema: %w", err)
		}
	}
	s.log.Info().Str("symbol", s.symbol).Msg("persistence store initialized")
	return nil
}

// decStr renders a decimal for storage, or nil (stored as SQL NULL) for
// an absent price.
func decStr(d decimal.Decimal, present bool) any {
	if !present {
		return nil
	}
	return d.String()
}

// SaveOrders persists a batch of orders in one transaction, replacing
// any existing row with the same id — the original's "INSERT OR
// REPLACE" batched-write optimization.
func (s *Store) SaveOrders(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin orders tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO orders
		(order_id, symbol, side, order_type, price, quantity, filled_quantity, status, timestamp, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("persistence: prepare orders: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		if _, err := stmt.ExecContext(ctx,
			o.OrderID, o.Symbol, o.Side.String(), o.OrderType.String(),
			decStr(o.Price, o.HasPrice), o.Quantity.String(), o.FilledQuantity.String(),
			o.Status.String(), o.Timestamp.UTC().Format(time.RFC3339Nano), o.UserID,
		); err != nil {
			return fmt.Errorf("persistence: insert order %s: %w", o.OrderID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit orders tx: %w", err)
	}
	s.log.Debug().Int("count", len(orders)).Str("symbol", s.symbol).Msg("persisted orders")
	return nil
}

// SaveTrades persists a batch of trades in one transaction.
func (s *Store) SaveTrades(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin trades tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO trades
		(trade_id, symbol, price, quantity, aggressor_side, maker_order_id, taker_order_id, timestamp, maker_fee, taker_fee)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("persistence: prepare trades: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			t.TradeID, t.Symbol, t.Price.String(), t.Quantity.String(), t.AggressorSide.String(),
			t.MakerOrderID, t.TakerOrderID, t.Timestamp.UTC().Format(time.RFC3339Nano),
			t.MakerFee.String(), t.TakerFee.String(),
		); err != nil {
			return fmt.Errorf("persistence: insert trade %s: %w", t.TradeID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit trades tx: %w", err)
	}
	s.log.Debug().Int("count", len(trades)).Str("symbol", s.symbol).Msg("persisted trades")
	return nil
}

// Cleanup removes filled/cancelled orders, trades, and snapshots older
// than the cutoff, mirroring the original's cleanup_old_data retention
// job.
func (s *Store) Cleanup(ctx context.Context, cutoff time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin cleanup tx: %w", err)
	}
	defer tx.Rollback()

	ts := cutoff.UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM orders WHERE status IN ('filled','cancelled') AND timestamp < ?`, ts); err != nil {
		return fmt.Errorf("persistence: cleanup orders: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE timestamp < ?`, ts); err != nil {
		return fmt.Errorf("persistence: cleanup trades: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM orderbook_snapshots WHERE timestamp < ?`, ts); err != nil {
		return fmt.Errorf("persistence: cleanup snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit cleanup tx: %w", err)
	}
	s.log.Info().Str("symbol", s.symbol).Time("cutoff", cutoff).Msg("cleaned up old data")
	return nil
}

// Compact runs VACUUM, matching the original's vacuum_database
// maintenance job. Intended to be scheduled during low traffic.
func (s *Store) Compact(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("persistence: vacuum: %w", err)
	}
	s.log.Info().Str("symbol", s.symbol).Msg("database vacuumed")
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("persistence: close: %w", err)
	}
	s.log.Info().Str("symbol", s.symbol).Msg("persistence store closed")
	return nil
}
