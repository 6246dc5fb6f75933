package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reaper periodically deletes rooms past their time-to-live, occupied or
// not. It runs independently of any room's activity.
type Reaper struct {
	c        *Coordinator
	ttl      time.Duration
	interval time.Duration
}

func NewReaper(c *Coordinator, ttl, interval time.Duration) *Reaper {
	return &Reaper{c: c, ttl: ttl, interval: interval}
}

func (r *Reaper) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.c.ExpireRooms(r.ttl); n > 0 {
				log.Info().Str("module", "app.reaper").Int("rooms", n).Msg("expired rooms swept")
			}
		}
	}
}
