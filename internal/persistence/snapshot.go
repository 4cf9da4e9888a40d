package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"matchcore/internal/domain"
)

// SnapshotEnvelope is the versioned, language-independent serialization
// of one symbol's resting orders at a point in time. JSON rather than a
// native Go object serializer, per the requirement that the on-disk
// format be stable and readable outside this process.
type SnapshotEnvelope struct {
	Version   int             `json:"version"`
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Bids      []SnapshotOrder `json:"bids"`
	Asks      []SnapshotOrder `json:"asks"`
}

// SnapshotOrder is a resting order's wire form within a snapshot:
// decimals as strings, to survive round-tripping through any reader.
type SnapshotOrder struct {
	OrderID        string `json:"order_id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	OrderType      string `json:"order_type"`
	Price          string `json:"price,omitempty"`
	Quantity       string `json:"quantity"`
	FilledQuantity string `json:"filled_quantity"`
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	UserID         string `json:"user_id,omitempty"`
}

const snapshotVersion = 1

// snapshotRetention is how many of the newest snapshots per symbol are
// kept; older ones are pruned on every save, matching the original's
// "keep last 10" policy.
const snapshotRetention = 10

func toSnapshotOrder(o *domain.Order) SnapshotOrder {
	so := SnapshotOrder{
		OrderID:        o.OrderID,
		Symbol:         o.Symbol,
		Side:           o.Side.String(),
		OrderType:      o.OrderType.String(),
		Quantity:       o.Quantity.String(),
		FilledQuantity: o.FilledQuantity.String(),
		Status:         o.Status.String(),
		Timestamp:      o.Timestamp.UTC().Format(time.RFC3339Nano),
		UserID:         o.UserID,
	}
	if o.HasPrice {
		so.Price = o.Price.String()
	}
	return so
}

// SaveSnapshot persists the current book state for the symbol and
// prunes all but the newest snapshotRetention rows.
func (s *Store) SaveSnapshot(ctx context.Context, symbol string, bids, asks []*domain.Order) error {
	env := SnapshotEnvelope{
		Version:   snapshotVersion,
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
	}
	for _, o := range bids {
		env.Bids = append(env.Bids, toSnapshotOrder(o))
	}
	for _, o := range asks {
		env.Asks = append(env.Asks, toSnapshotOrder(o))
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO orderbook_snapshots (symbol, snapshot_data, timestamp) VALUES (?, ?, ?)`,
		symbol, string(data), env.Timestamp.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("persistence: insert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM orderbook_snapshots
		WHERE symbol = ? AND id NOT IN (
			SELECT id FROM orderbook_snapshots
			WHERE symbol = ?
			ORDER BY timestamp DESC
			LIMIT ?
		)`, symbol, symbol, snapshotRetention,
	); err != nil {
		return fmt.Errorf("persistence: prune snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit snapshot tx: %w", err)
	}
	s.log.Info().Str("symbol", symbol).Msg("saved order book snapshot")
	return nil
}

// LoadLatestSnapshot returns the most recent snapshot for the symbol,
// or (nil, zero-time, nil) if none exists.
func (s *Store) LoadLatestSnapshot(ctx context.Context, symbol string) (*SnapshotEnvelope, time.Time, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT snapshot_data, timestamp FROM orderbook_snapshots
		WHERE symbol = ? ORDER BY timestamp DESC LIMIT 1`, symbol)

	var data, ts string
	if err := row.Scan(&data, &ts); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("persistence: load snapshot: %w", err)
	}

	var env SnapshotEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("persistence: unmarshal snapshot: %w", err)
	}
	snapTS, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("persistence: parse snapshot timestamp: %w", err)
	}
	s.log.Info().Str("symbol", symbol).Time("snapshot_time", snapTS).Msg("loaded order book snapshot")
	return &env, snapTS, nil
}

// PersistedOrder is one row read back from the orders table for
// replay, before it has been reconstituted into a domain.Order.
type PersistedOrder struct {
	OrderID        string
	Symbol         string
	Side           string
	OrderType      string
	Price          *string
	Quantity       string
	FilledQuantity string
	Status         string
	Timestamp      string
	UserID         string
}

// ReplayRestingOrders returns every LIMIT order still resting (pending
// or partially filled, with a price) persisted after since, ordered
// oldest first so replay preserves original time priority. Pass a zero
// time to replay everything.
func (s *Store) ReplayRestingOrders(ctx context.Context, symbol string, since time.Time) ([]PersistedOrder, error) {
	query := `
		SELECT order_id, symbol, side, order_type, price, quantity, filled_quantity, status, timestamp, user_id
		FROM orders
		WHERE symbol = ?
		  AND status IN ('pending', 'partially_filled')
		  AND order_type = 'limit'
		  AND price IS NOT NULL`
	args := []any{symbol}
	if !since.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("persistence: query resting orders: %w", err)
	}
	defer rows.Close()

	var out []PersistedOrder
	for rows.Next() {
		var p PersistedOrder
		if err := rows.Scan(&p.OrderID, &p.Symbol, &p.Side, &p.OrderType, &p.Price,
			&p.Quantity, &p.FilledQuantity, &p.Status, &p.Timestamp, &p.UserID); err != nil {
			return nil, fmt.Errorf("persistence: scan resting order: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
