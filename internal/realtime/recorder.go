package realtime

import (
	"context"
	"sync"
)

// Recorder keeps published changes in memory instead of sending them anywhere
type Recorder struct {
	mu    sync.Mutex
	pots  []PotChange
	stats []StatsChange
}

func (r *Recorder) PublishPot(_ context.Context, change PotChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pots = append(r.pots, change)
	return nil
}

func (r *Recorder) PublishUserStats(_ context.Context, change StatsChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, change)
	return nil
}

// Pots returns the pot changes seen so far
func (r *Recorder) Pots() []PotChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PotChange(nil), r.pots...)
}

// Stats returns the stats changes seen so far
func (r *Recorder) Stats() []StatsChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatsChange(nil), r.stats...)
}
