// Package autoreply – sweeper.go discards drafts that were never approved
// within the configured expiry. Expiry runs concurrently with operator
// actions; Discard's not-found result makes the race harmless.
package autoreply

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically expires stale drafts.
type Sweeper struct {
	drafts *DraftManager
	expiry time.Duration
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSweeper creates a sweeper. An expiry of zero disables it.
func NewSweeper(drafts *DraftManager, expiry time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		drafts: drafts,
		expiry: expiry,
		cron:   cron.New(),
		logger: logger.With("component", "sweeper"),
	}
}

// Start schedules the sweep every ten minutes. No-op when expiry is zero.
func (s *Sweeper) Start() error {
	if s.expiry <= 0 {
		return nil
	}
	if _, err := s.cron.AddFunc("@every 10m", s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweeper: started", "expiry", s.expiry)
	return nil
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// sweep discards every draft older than the expiry.
func (s *Sweeper) sweep() {
	drafts, err := s.drafts.List()
	if err != nil {
		s.logger.Warn("sweeper: listing drafts failed", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.expiry)
	expired := 0
	for _, d := range drafts {
		if d.CreatedAt.After(cutoff) {
			continue
		}
		switch err := s.drafts.Discard(d.ID); err {
		case nil:
			expired++
		case ErrDraftNotFound:
			// Operator got there first.
		default:
			s.logger.Warn("sweeper: discard failed", "id", d.ID, "error", err)
		}
	}
	if expired > 0 {
		s.logger.Info("sweeper: expired drafts discarded", "count", expired)
	}
}
