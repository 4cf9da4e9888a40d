package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/domain"
)

// BookSnapshotter is the read surface a scheduler needs from the
// matching engine to take a periodic snapshot: a point-in-time view of
// every resting order on both sides, taken under the book's own lock.
type BookSnapshotter interface {
	LockedSnapshot() (bids, asks []*domain.Order)
}

// SnapshotScheduler writes a full book snapshot on a fixed interval,
// matching the original's _periodic_snapshot background task (default
// every 60 seconds).
type SnapshotScheduler struct {
	store    *Store
	symbol   string
	book     BookSnapshotter
	interval time.Duration
	log      zerolog.Logger
}

func NewSnapshotScheduler(store *Store, symbol string, book BookSnapshotter, interval time.Duration, log zerolog.Logger) *SnapshotScheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &SnapshotScheduler{store: store, symbol: symbol, book: book, interval: interval, log: log}
}

func (s *SnapshotScheduler) Run(t *tomb.Tomb) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			s.snapshotOnce()
		}
	}
}

func (s *SnapshotScheduler) snapshotOnce() {
	bids, asks := s.book.LockedSnapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.SaveSnapshot(ctx, s.symbol, bids, asks); err != nil {
		s.log.Error().Err(err).Str("symbol", s.symbol).Msg("periodic snapshot failed")
		return
	}
	s.log.Info().Str("symbol", s.symbol).Msg("periodic snapshot saved")
}
