package ticketing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/synergybot/synergy/pkg/logging"
	"github.com/synergybot/synergy/pkg/ticketing/monitoring"
)

// Reaper periodically erases closed ticket records that have outlived the
// retention window. It never touches open tickets, and reaping an already
// erased record is a no-op, so overlapping or repeated runs are safe.
type Reaper struct {
	// l is the logger.
	l *slog.Logger

	// sessions is the durable ticket store.
	sessions SessionStore

	// interval is the period between runs.
	interval time.Duration

	// retention is how long closed records are kept.
	retention time.Duration

	// now is the clock, swappable in tests.
	now func() time.Time
}

// NewReaper creates a new reaper.
func NewReaper(l *slog.Logger, sessions SessionStore, cfg Config) *Reaper {
	cfg = cfg.normalised()
	return &Reaper{
		l:         l,
		sessions:  sessions,
		interval:  cfg.ReapInterval,
		retention: cfg.RetentionWindow,
		now:       time.Now,
	}
}

// Start runs the reaper until the context is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := r.ReapOnce(ctx, r.now())
			if err != nil {
				r.l.Error("Error reaping expired tickets", slog.String(logging.KeyError, err.Error()))
				continue
			}
			if reaped > 0 {
				r.l.Info(fmt.Sprintf("Reaped %d expired ticket records", reaped))
			}
		}
	}
}

// ReapOnce scans the store and erases every closed record past retention.
// Each erase is independent; a failure on one record is logged and does not
// abort the batch.
func (r *Reaper) ReapOnce(ctx context.Context, now time.Time) (int, error) {
	tickets, err := r.sessions.ListAllTickets(ctx)
	if err != nil {
		return 0, fmt.Errorf("error listing tickets: %w", err)
	}

	reaped := 0
	for _, t := range tickets {
		if t.IsOpen() || t.ClosedAt == nil {
			continue
		}
		if now.Sub(t.ClosedAt.Time()) <= r.retention {
			continue
		}

		if err := r.sessions.DeleteTicket(ctx, t.GuildID, t.ChannelID); err != nil {
			r.l.Error("Error erasing expired ticket record",
				slog.String(logging.KeyGuildID, t.GuildID),
				slog.String(logging.KeyChannelID, t.ChannelID),
				slog.String(logging.KeyError, err.Error()))
			continue
		}
		reaped++
		monitoring.TicketsReaped.Inc()
	}

	return reaped, nil
}
