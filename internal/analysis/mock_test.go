package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sells-group/competitor-intel/internal/discovery"
	"github.com/sells-group/competitor-intel/internal/model"
)

// fakeDiscoverer implements Discoverer for testing.
type fakeDiscoverer struct {
	competitors []model.Competitor
	err         error
	lastReq     discovery.Request
	calls       int
}

func (f *fakeDiscoverer) Discover(_ context.Context, req discovery.Request) ([]model.Competitor, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.competitors, nil
}

// fakeCollector implements ReviewCollector for testing.
type fakeCollector struct {
	mu       sync.Mutex
	reviews  map[string][]model.ScoredReview
	errs     map[string]error
	panics   map[string]bool
	delay    time.Duration
	sizes    []model.PageSizes
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeCollector) Collect(ctx context.Context, c model.Competitor, _ model.Tier, sizes model.PageSizes) ([]model.ScoredReview, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.sizes = append(f.sizes, sizes)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panics[c.ExternalID] {
		panic("collector exploded")
	}
	if err := f.errs[c.ExternalID]; err != nil {
		return nil, err
	}
	return f.reviews[c.ExternalID], nil
}
