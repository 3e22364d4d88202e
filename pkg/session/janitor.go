package session

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dyzsasd/tomo/pkg/observability"
)

// Janitor periodically sweeps sessions that have been idle longer than
// the configured threshold. Redis expiry already reclaims session keys;
// the janitor keeps the index honest and covers the in-memory store.
type Janitor struct {
	store    Store
	idleFor  time.Duration
	schedule string
	cron     *cron.Cron
}

// NewJanitor creates a janitor sweeping on the given cron schedule.
// Sessions untouched for longer than idleFor are deleted.
func NewJanitor(store Store, schedule string, idleFor time.Duration) *Janitor {
	if schedule == "" {
		schedule = "@every 10m"
	}
	if idleFor <= 0 {
		idleFor = 24 * time.Hour
	}
	return &Janitor{
		store:    store,
		idleFor:  idleFor,
		schedule: schedule,
	}
}

// Start schedules the sweep. It returns an error when the schedule
// expression is invalid.
func (j *Janitor) Start() error {
	j.cron = cron.New()
	_, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if removed, err := j.Sweep(ctx); err != nil {
			log.Printf("[JANITOR] sweep failed: %v", err)
		} else if removed > 0 {
			log.Printf("[JANITOR] removed %d idle sessions", removed)
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Sweep deletes every session idle past the threshold and returns the
// number removed. Sessions that vanish mid-sweep are skipped.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	ids, err := j.store.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-j.idleFor)
	removed, kept := 0, 0
	for _, id := range ids {
		s, err := j.store.Load(ctx, id)
		if err != nil {
			// Expired between List and Load; the index entry is stale.
			_ = j.store.Delete(ctx, id)
			continue
		}
		if s.UpdatedAt.Before(cutoff) {
			if err := j.store.Delete(ctx, id); err != nil {
				return removed, err
			}
			removed++
			continue
		}
		kept++
	}
	observability.SetActiveSessions(kept)
	return removed, nil
}
