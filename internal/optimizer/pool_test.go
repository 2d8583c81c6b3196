package optimizer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/shitsumon/internal/config"
)

func TestPool_AcquireRelease(t *testing.T) {
	p := NewPool(config.PoolConfig{MinConnections: 1, MaxConnections: 2, AcquireTimeout: 10 * time.Millisecond}, nil, nil)
	defer p.Close()

	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	b, err := p.Acquire(context.Background())
	require.NoError(t, err, "grows past the idle connection after the timeout")
	assert.NotEqual(t, a.ID, b.ID)

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolExhausted)

	p.Release(a)
	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.ID, c.ID, "released connection is reused")
	assert.Equal(t, 2, c.UseCount)

	s := p.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 2, s.InUse)
	assert.Equal(t, uint64(1), s.Exhausted)
}

func TestPool_ConcurrentAcquireNeverSharesConnections(t *testing.T) {
	const limit = 8
	p := NewPool(config.PoolConfig{MinConnections: 2, MaxConnections: limit, AcquireTimeout: 5 * time.Millisecond}, nil, nil)
	defer p.Close()

	var (
		mu    sync.Mutex
		owned = make(map[string]bool)
		wg    sync.WaitGroup
		clash bool
	)
	conns := make(chan *PooledConnection, limit)
	for i := 0; i < limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			if owned[c.ID] {
				clash = true
			}
			owned[c.ID] = true
			mu.Unlock()
			conns <- c
		}()
	}
	wg.Wait()
	close(conns)
	assert.False(t, clash)
	assert.Len(t, owned, limit)

	start := time.Now()
	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Less(t, time.Since(start), time.Second, "exhaustion fails fast instead of hanging")

	for c := range conns {
		p.Release(c)
	}
	assert.Equal(t, limit, p.Stats().Available)
}

func TestPool_ContextCancelled(t *testing.T) {
	p := NewPool(config.PoolConfig{MinConnections: 0, MaxConnections: 1, AcquireTimeout: time.Minute}, nil, nil)
	defer p.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_CleanupKeepsMinimum(t *testing.T) {
	clock := newTestClock()
	p := NewPool(config.PoolConfig{MinConnections: 1, MaxConnections: 4, AcquireTimeout: time.Millisecond, IdleTimeout: time.Minute}, nil, clock.Now)
	defer p.Close()

	var held []*PooledConnection
	for i := 0; i < 3; i++ {
		c, err := p.Acquire(context.Background())
		require.NoError(t, err)
		held = append(held, c)
	}
	for _, c := range held {
		p.Release(c)
	}
	require.Equal(t, 3, p.Stats().Total)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, p.Cleanup())
	assert.Equal(t, 1, p.Stats().Total)
	assert.Zero(t, p.Cleanup())
}

func TestPool_Close(t *testing.T) {
	p := NewPool(config.PoolConfig{MinConnections: 1, MaxConnections: 2, AcquireTimeout: time.Millisecond}, nil, nil)
	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	p.Release(c)
	assert.Zero(t, p.Stats().Total)
	require.NoError(t, p.Close())
}

func TestPool_Do(t *testing.T) {
	p := NewPool(config.PoolConfig{MinConnections: 1, MaxConnections: 1}, nil, nil)
	defer p.Close()
	var seen string
	err := p.Do(context.Background(), func(c *PooledConnection) error {
		seen = c.ID
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, seen)
	assert.Zero(t, p.Stats().InUse)
}
