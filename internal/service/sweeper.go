package service

import (
	"context"
	"log"
	"time"
)

// Purger deletes refresh tokens whose expiry has passed.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// RunTokenSweeper calls PurgeExpired every interval until ctx is done.  SQL
// stores need it; a store with a native TTL index can implement PurgeExpired
// as a no-op.
func RunTokenSweeper(ctx context.Context, p Purger, interval time.Duration, now func() time.Time) {
	if interval <= 0 {
		interval = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sweepOnce(ctx, p, now())
		}
	}
}

func sweepOnce(ctx context.Context, p Purger, now time.Time) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	n, err := p.PurgeExpired(cctx, now)
	if err != nil {
		log.Printf("token-sweeper: purge failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("token-sweeper: purged %d expired refresh tokens", n)
	}
}
