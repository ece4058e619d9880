package state

import "context"

// DefaultCheckpointInterval is the number of items between saves.
const DefaultCheckpointInterval = 10

// Checkpointer saves the store every interval items. It is driven by a
// single goroutine per stage and is not safe for concurrent use.
type Checkpointer struct {
	store    *Store
	interval int
	pending  int
}

// NewCheckpointer returns a checkpointer saving every interval items.
func NewCheckpointer(store *Store, interval int) *Checkpointer {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	return &Checkpointer{store: store, interval: interval}
}

// Tick records one processed item and saves when the interval is reached.
func (c *Checkpointer) Tick(ctx context.Context) error {
	c.pending++
	if c.pending < c.interval {
		return nil
	}
	return c.Flush(ctx)
}

// Flush saves unconditionally. It is called at stage end and on
// interruption, so it ignores cancellation of ctx.
func (c *Checkpointer) Flush(ctx context.Context) error {
	c.pending = 0
	return c.store.Save(context.WithoutCancel(ctx))
}
