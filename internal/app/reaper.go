package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reaper periodically evicts connections whose transport went dead or that
// idled past the heartbeat timeout. Its unregister calls are
// indistinguishable from a client-initiated close to every downstream
// consumer.
type Reaper struct {
	registry *Registry
	timeout  time.Duration
	interval time.Duration

	now func() time.Time
}

func NewReaper(registry *Registry, timeout, interval time.Duration) *Reaper {
	return &Reaper{
		registry: registry,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled. A panicking sweep is
// recovered and logged; the loop keeps running and never takes the registry
// down with it.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	log.Info().Str("module", "app.reaper").Dur("interval", r.interval).Dur("timeout", r.timeout).Msg("reaper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.reaper").Msg("reaper stopped")
			return
		case <-ticker.C:
			r.safeSweep()
		}
	}
}

func (r *Reaper) safeSweep() {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("module", "app.reaper").Any("panic", rec).Msg("sweep panicked")
		}
	}()
	if n := r.Sweep(); n > 0 {
		log.Info().Str("module", "app.reaper").Int("evicted", n).Msg("swept stale connections")
	}
}

// Sweep evicts every dead or idle connection once and returns the count.
func (r *Reaper) Sweep() int {
	cutoff := r.now().Add(-r.timeout)
	evicted := 0
	for _, snap := range r.registry.snapshot() {
		if snap.Transport.Alive() && snap.Info.LastActivityAt.After(cutoff) {
			continue
		}
		log.Debug().Str("module", "app.reaper").Str("conn", string(snap.Info.ID)).Str("user", string(snap.Info.UserID)).Bool("alive", snap.Transport.Alive()).Time("last_activity", snap.Info.LastActivityAt).Msg("evicting connection")
		r.registry.Unregister(snap.Info.ID)
		evicted++
	}
	return evicted
}
