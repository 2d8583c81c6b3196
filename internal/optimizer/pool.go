package optimizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/config"
)

var (
	// ErrPoolExhausted is returned when no connection became available within the
	// acquire timeout and the pool is already at its maximum size.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("connection pool closed")
)

// PooledConnection is a reusable logical connection handed out by the Pool.
type PooledConnection struct {
	ID        string
	CreatedAt time.Time
	LastUsed  time.Time
	UseCount  int
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Total       int     `json:"total"`
	InUse       int     `json:"in_use"`
	Available   int     `json:"available"`
	Min         int     `json:"min"`
	Max         int     `json:"max"`
	Created     uint64  `json:"created"`
	Discarded   uint64  `json:"discarded"`
	Exhausted   uint64  `json:"exhausted"`
	Acquired    uint64  `json:"acquired"`
	Utilization float64 `json:"utilization"`
}

// Pool holds a bounded set of logical connections. Safe for concurrent use.
type Pool struct {
	min, max        int
	acquireTimeout  time.Duration
	idleTimeout     time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	logger          *zap.Logger

	available chan *PooledConnection
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu        sync.Mutex
	total     int
	inUse     int
	created   uint64
	discarded uint64
	exhausted uint64
	acquired  uint64
	isClosed  bool
	started   bool
}

// NewPool creates a pool and pre-creates the minimum number of connections.
// Zero config fields take the package defaults.
func NewPool(cfg config.PoolConfig, logger *zap.Logger, now func() time.Time) *Pool {
	def := config.Default().Pool
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
		if cfg.MinConnections == 0 {
			cfg.MinConnections = def.MinConnections
		}
	}
	if cfg.MinConnections < 0 || cfg.MinConnections > cfg.MaxConnections {
		cfg.MinConnections = min(def.MinConnections, cfg.MaxConnections)
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = def.AcquireTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	p := &Pool{
		min:             cfg.MinConnections,
		max:             cfg.MaxConnections,
		acquireTimeout:  cfg.AcquireTimeout,
		idleTimeout:     cfg.IdleTimeout,
		cleanupInterval: cfg.CleanupInterval,
		now:             now,
		logger:          logger,
		available:       make(chan *PooledConnection, cfg.MaxConnections),
		closed:          make(chan struct{}),
	}
	for i := 0; i < p.min; i++ {
		p.available <- p.newConnLocked()
	}
	return p
}

// newConnLocked creates a connection and counts it. Callers hold mu or own p exclusively.
func (p *Pool) newConnLocked() *PooledConnection {
	now := p.now()
	p.total++
	p.created++
	return &PooledConnection{ID: uuid.NewString(), CreatedAt: now, LastUsed: now}
}

// Acquire waits up to the acquire timeout for an available connection. When none
// frees up it creates one if the pool is below its maximum, and otherwise returns
// ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (*PooledConnection, error) {
	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case conn := <-p.available:
		return p.checkout(conn)
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	// A connection may have been released as the timer fired
	select {
	case conn := <-p.available:
		return p.checkout(conn)
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return nil, ErrPoolClosed
	}
	if p.total >= p.max {
		p.exhausted++
		return nil, ErrPoolExhausted
	}
	conn := p.newConnLocked()
	p.logger.Debug("pool grew", zap.Int("total", p.total), zap.Int("max", p.max))
	return p.checkoutLocked(conn), nil
}

func (p *Pool) checkout(conn *PooledConnection) (*PooledConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		p.total--
		p.discarded++
		return nil, ErrPoolClosed
	}
	return p.checkoutLocked(conn), nil
}

func (p *Pool) checkoutLocked(conn *PooledConnection) *PooledConnection {
	conn.LastUsed = p.now()
	conn.UseCount++
	p.inUse++
	p.acquired++
	return conn
}

// Release returns conn to the pool, or discards it when the pool is closed or full.
func (p *Pool) Release(conn *PooledConnection) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse--
	conn.LastUsed = p.now()
	if p.isClosed {
		p.total--
		p.discarded++
		return
	}
	select {
	case p.available <- conn:
	default:
		p.total--
		p.discarded++
	}
}

// Do acquires a connection, runs fn and releases the connection.
func (p *Pool) Do(ctx context.Context, fn func(*PooledConnection) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(conn)
}

// Cleanup discards connections idle longer than the idle timeout, keeping at least
// the minimum. It returns the number discarded.
func (p *Pool) Cleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := p.now().Add(-p.idleTimeout)
	removed := 0
	for n := len(p.available); n > 0; n-- {
		var conn *PooledConnection
		select {
		case conn = <-p.available:
		default:
			return removed
		}
		if conn.LastUsed.Before(cutoff) && p.total > p.min {
			p.total--
			p.discarded++
			removed++
			continue
		}
		p.available <- conn
	}
	return removed
}

// Stats returns the current counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := PoolStats{
		Total:     p.total,
		InUse:     p.inUse,
		Available: len(p.available),
		Min:       p.min,
		Max:       p.max,
		Created:   p.created,
		Discarded: p.discarded,
		Exhausted: p.exhausted,
		Acquired:  p.acquired,
	}
	if p.max > 0 {
		s.Utilization = float64(p.inUse) / float64(p.max)
	}
	return s
}

// Start runs the idle cleanup loop until ctx is cancelled or Close is called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.isClosed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.closed:
				return
			case <-ticker.C:
				if n := p.Cleanup(); n > 0 {
					p.logger.Debug("idle connections closed", zap.Int("count", n))
				}
			}
		}
	}()
}

// Close stops the cleanup loop and drops idle connections. Connections still in use
// are discarded when released.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.isClosed = true
		close(p.closed)
	drain:
		for {
			select {
			case <-p.available:
				p.total--
				p.discarded++
			default:
				break drain
			}
		}
		p.mu.Unlock()
	})
	p.wg.Wait()
	return nil
}
