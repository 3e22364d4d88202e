package processor

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"
)

// Serve pumps messages from inbox through a pool of workers until the
// context is cancelled or the inbox closes. Per-session ordering is
// protected by the optimistic commit in the session store, not by
// pinning sessions to workers: a conflicting second message for the
// same session is retried against the first turn's committed state.
func (p *Processor) Serve(ctx context.Context, inbox <-chan Message, workers int) error {
	if workers <= 0 {
		workers = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case msg, ok := <-inbox:
					if !ok {
						return nil
					}
					if err := p.HandleMessage(ctx, msg); err != nil {
						if IsConflict(err) {
							log.Printf("[PROCESSOR] turn conflict on %s, message dropped after retries", msg.SessionID)
							continue
						}
						return err
					}
				}
			}
		})
	}
	return g.Wait()
}
