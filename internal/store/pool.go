// internal/store/pool.go
package store

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	stderrors "trip-report-bot/internal/common/errors"
	"trip-report-bot/internal/common/logger"
	"trip-report-bot/internal/common/metrics"
)

// Conn is a reclaimable data store connection.
type Conn interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens a fresh connection.
type Dialer func(ctx context.Context) (Conn, error)

type pooledConn struct {
	conn     Conn
	lastUsed time.Time
	inUse    bool
}

// Lease is a checked-out connection. Give it back with Pool.Release.
type Lease struct {
	Conn  Conn
	entry *pooledConn
}

// Pool keeps connections alive between retrievals and reclaims the ones
// that sit idle past the timeout. Reaping never touches a connection
// that is checked out, no matter how long the retrieval runs.
type Pool struct {
	mu           sync.Mutex
	dialer       Dialer
	conns        []*pooledConn
	idleTimeout  time.Duration
	reapInterval time.Duration
	stop         chan struct{}
	stopped      sync.WaitGroup
	logger       logger.Logger
	now          func() time.Time
}

func NewPool(dialer Dialer, idleTimeout, reapInterval time.Duration, log logger.Logger) *Pool {
	return &Pool{
		dialer:       dialer,
		idleTimeout:  idleTimeout,
		reapInterval: reapInterval,
		logger:       log.With(map[string]interface{}{"component": "pool"}),
		now:          time.Now,
	}
}

// Acquire returns an idle connection or dials a new one. A dial failure
// surfaces as a pool-exhausted error, which retrieval treats as
// retryable.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	for _, pc := range p.conns {
		if pc.inUse {
			continue
		}
		pc.inUse = true
		pc.lastUsed = p.now()
		p.mu.Unlock()
		p.gauge()
		return &Lease{Conn: pc.conn, entry: pc}, nil
	}
	p.mu.Unlock()

	conn, err := p.dialer(ctx)
	if err != nil {
		return nil, stderrors.NewPoolExhaustedError(err)
	}

	pc := &pooledConn{conn: conn, lastUsed: p.now(), inUse: true}
	p.mu.Lock()
	p.conns = append(p.conns, pc)
	p.mu.Unlock()
	p.gauge()
	return &Lease{Conn: conn, entry: pc}, nil
}

// Release returns a connection to the pool and restarts its idle clock.
func (p *Pool) Release(l *Lease) {
	if l == nil || l.entry == nil {
		return
	}
	p.mu.Lock()
	l.entry.inUse = false
	l.entry.lastUsed = p.now()
	p.mu.Unlock()
	p.gauge()
}

// ReapIdle closes every connection idle strictly longer than the idle
// timeout and reports how many were reclaimed. A connection idle for
// exactly the timeout survives the sweep.
func (p *Pool) ReapIdle(ctx context.Context) int {
	cutoff := p.now().Add(-p.idleTimeout)

	p.mu.Lock()
	var keep []*pooledConn
	var reap []*pooledConn
	for _, pc := range p.conns {
		if !pc.inUse && pc.lastUsed.Before(cutoff) {
			reap = append(reap, pc)
			continue
		}
		keep = append(keep, pc)
	}
	p.conns = keep
	p.mu.Unlock()

	for _, pc := range reap {
		if err := pc.conn.Close(ctx); err != nil {
			p.logger.Warn("closing idle connection failed", map[string]interface{}{"error": err.Error()})
		}
	}

	if len(reap) > 0 {
		metrics.PoolConnectionsReaped.Add(float64(len(reap)))
		p.logger.Info("reclaimed idle connections", map[string]interface{}{"count": len(reap)})
		// Idle retrieval capacity can hold a lot of memory; hand it back.
		debug.FreeOSMemory()
	}
	p.gauge()
	return len(reap)
}

// Start launches the periodic reaper. Stop shuts it down.
func (p *Pool) Start() {
	p.stop = make(chan struct{})
	p.stopped.Add(1)
	go func() {
		defer p.stopped.Done()
		ticker := time.NewTicker(p.reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.ReapIdle(context.Background())
			case <-p.stop:
				return
			}
		}
	}()
}

// Stop halts the reaper and closes every connection that is not checked
// out. Connections still in use are left to their current holders.
func (p *Pool) Stop(ctx context.Context) {
	if p.stop != nil {
		close(p.stop)
		p.stopped.Wait()
	}

	p.mu.Lock()
	var idle []*pooledConn
	var busy []*pooledConn
	for _, pc := range p.conns {
		if pc.inUse {
			busy = append(busy, pc)
			continue
		}
		idle = append(idle, pc)
	}
	p.conns = busy
	p.mu.Unlock()

	for _, pc := range idle {
		if err := pc.conn.Close(ctx); err != nil {
			p.logger.Warn("closing connection on shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}
	p.gauge()
}

// Size reports total and in-use connection counts.
func (p *Pool) Size() (total, inUse int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pc := range p.conns {
		if pc.inUse {
			inUse++
		}
	}
	return len(p.conns), inUse
}

func (p *Pool) gauge() {
	total, inUse := p.Size()
	metrics.PoolConnections.WithLabelValues("in_use").Set(float64(inUse))
	metrics.PoolConnections.WithLabelValues("idle").Set(float64(total - inUse))
}
