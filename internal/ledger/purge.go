package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const purgeTimeout = time.Minute

// Purger deletes ledger records whose tokens have expired.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SchedulePurge starts a cron scheduler running p on schedule. Stop the
// returned scheduler on shutdown.
func SchedulePurge(schedule string, p Purger) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, purgeJob(p)); err != nil {
		return nil, fmt.Errorf("schedule ledger purge %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}

func purgeJob(p Purger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()

		n, err := p.PurgeExpired(ctx)
		if err != nil {
			slog.Error("purge consumed tokens", "error", err)
			return
		}
		if n > 0 {
			slog.Info("purged consumed tokens", "count", n)
		}
	}
}
