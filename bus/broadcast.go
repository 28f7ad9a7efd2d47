package bus

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Broadcast fans NEW_BLOCK_NOTIFY-style messages out to every
// registered worker except from concurrently, using errgroup so one
// worker's error cancels the others' in-flight deliveries instead of
// leaving them to run to completion against a chain state that has
// already moved on.
func (b *Bus) Broadcast(ctx context.Context, from WorkerType, msgType MessageType, data any) error {
	b.mu.RLock()
	targets := make([]WorkerType, 0, len(b.handlers))
	for w := range b.handlers {
		if w == from {
			continue
		}
		targets = append(targets, w)
	}
	b.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			_, err := b.SendLink(gctx, from, target, msgType, data)
			return err
		})
	}
	return g.Wait()
}
