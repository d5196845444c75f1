package purchase

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// StartSweeper expires stale tokens every interval until ctx is cancelled.
// Expiry is also detected lazily at confirmation, so the sweeper only matters
// for abandoned tokens (and the funds they hold).
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := e.ExpireStale(ctx); n > 0 {
					log.WithField("expired", n).Info("Sweeper expired stale purchase tokens")
				}
			}
		}
	}()
}
