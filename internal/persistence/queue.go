package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/domain"
)

// queueCapacity bounds the in-memory enqueue buffers. Once full,
// EnqueueOrder/EnqueueTrade return false and the caller logs a drop
// rather than blocking the matching engine's locked critical section.
const queueCapacity = 4096

// flushInterval is how often queued writes are drained into a batched
// transaction, mirroring the original's "batch writes for 100x
// throughput" design without holding any caller hostage to disk I/O.
const flushInterval = 10 * time.Millisecond

// AsyncQueue adapts Store to matching.PersistenceSink: non-blocking,
// bounded enqueue from the matching engine's locked path, batched
// flush to SQLite on a background tomb-supervised worker.
type AsyncQueue struct {
	store *Store
	log   zerolog.Logger

	orders chan domain.Order
	trades chan domain.Trade
}

func NewAsyncQueue(store *Store, log zerolog.Logger) *AsyncQueue {
	return &AsyncQueue{
		store:  store,
		log:    log,
		orders: make(chan domain.Order, queueCapacity),
		trades: make(chan domain.Trade, queueCapacity),
	}
}

// EnqueueOrder implements matching.PersistenceSink.
func (q *AsyncQueue) EnqueueOrder(o domain.Order) bool {
	select {
	case q.orders <- o:
		return true
	default:
		return false
	}
}

// EnqueueTrade implements matching.PersistenceSink.
func (q *AsyncQueue) EnqueueTrade(t domain.Trade) bool {
	select {
	case q.trades <- t:
		return true
	default:
		return false
	}
}

// Run drains both queues on flushInterval ticks until the tomb dies,
// then performs one final drain so nothing queued before shutdown is
// lost.
func (q *AsyncQueue) Run(t *tomb.Tomb) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			q.flush(context.Background())
			return nil
		case <-ticker.C:
			q.flush(t.Context(nil))
		}
	}
}

func (q *AsyncQueue) flush(ctx context.Context) {
	if orders := q.drainOrders(); len(orders) > 0 {
		if err := q.store.SaveOrders(ctx, orders); err != nil {
			q.log.Error().Err(err).Msg("order batch flush failed")
		}
	}
	if trades := q.drainTrades(); len(trades) > 0 {
		if err := q.store.SaveTrades(ctx, trades); err != nil {
			q.log.Error().Err(err).Msg("trade batch flush failed")
		}
	}
}

func (q *AsyncQueue) drainOrders() []domain.Order {
	var out []domain.Order
	for {
		select {
		case o := <-q.orders:
			out = append(out, o)
		default:
			return out
		}
	}
}

func (q *AsyncQueue) drainTrades() []domain.Trade {
	var out []domain.Trade
	for {
		select {
		case t := <-q.trades:
			out = append(out, t)
		default:
			return out
		}
	}
}
