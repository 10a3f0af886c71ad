package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type prunerStub struct {
	mu     sync.Mutex
	calls  []time.Duration
	err    error
	pruned int64
}

func (p *prunerStub) PruneVisionCache(maxAge time.Duration) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, maxAge)
	return p.pruned, p.err
}

func (p *prunerStub) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestServiceRunPrunesPeriodically(t *testing.T) {
	store := &prunerStub{pruned: 2}
	s := NewService(store, time.Hour)
	s.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.callCount() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, maxAge := range store.calls {
		assert.Equal(t, time.Hour, maxAge)
	}
}

func TestServiceKeepsRunningAfterErrors(t *testing.T) {
	store := &prunerStub{err: errors.New("database is locked")}
	s := NewService(store, 0)
	assert.Equal(t, DefaultCacheMaxAge, s.maxAge)
	s.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	assert.Eventually(t, func() bool { return store.callCount() >= 2 }, time.Second, time.Millisecond)
}
