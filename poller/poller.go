// Package poller runs a fetch immediately and then on a fixed interval,
// handing each result to the consumer that owns the poller.
//
// Ticks are independent: a slow fetch is never cancelled by a later tick.
// Which of several overlapping results reaches the consumer is decided by the
// poller's Policy. Stopping the poller cancels in-flight fetches and discards
// anything that resolves afterwards.
package poller

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

type Policy int

const (
	// LatestIssued applies a result only if no later tick has been applied,
	// so an old response never overwrites a newer one. A slow backend still
	// gets every result through as long as they resolve in order.
	LatestIssued Policy = iota
	// LastResolved applies every result in resolution order, so the
	// response that resolves last wins even if it was issued first.
	LastResolved
)

func (p Policy) String() string {
	switch p {
	case LastResolved:
		return "last_resolved"
	default:
		return "latest_issued"
	}
}

// ParsePolicy reads the config spelling of a policy. Empty means LatestIssued.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "latest_issued":
		return LatestIssued, nil
	case "last_resolved":
		return LastResolved, nil
	}
	return LatestIssued, fmt.Errorf("poller: unknown policy %q", s)
}

type LogFunc func(format string, args ...any)

type Config[T any] struct {
	Name     string
	Interval time.Duration
	Policy   Policy
	Fetch    func(ctx context.Context) (T, error)
	// Apply receives results accepted by the policy, one at a time.
	Apply   func(v T, err error)
	LogFunc LogFunc
}

type Poller[T any] struct {
	name     string
	interval time.Duration
	policy   Policy
	fetch    func(ctx context.Context) (T, error)
	apply    func(T, error)
	logFn    LogFunc

	applyMu  sync.Mutex // serializes policy check and Apply
	mu       sync.Mutex
	issued   uint64
	applied  uint64
	discards uint64
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	stopped  bool
	inflight sync.WaitGroup
	loop     sync.WaitGroup
}

func New[T any](c Config[T]) *Poller[T] {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	return &Poller[T]{
		name:     c.Name,
		interval: c.Interval,
		policy:   c.Policy,
		fetch:    c.Fetch,
		apply:    c.Apply,
		logFn:    logFn,
	}
}

// Start issues the first fetch immediately and then one per interval until
// Stop is called or ctx ends. A poller starts at most once.
func (p *Poller[T]) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running || p.stopped {
		p.mu.Unlock()
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.mu.Unlock()

	p.Tick()
	if p.interval <= 0 {
		return
	}
	p.loop.Add(1)
	go p.run()
}

func (p *Poller[T]) run() {
	defer p.loop.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick issues one fetch now, outside the timer. Used after mutations so the
// consumer does not wait a full interval. No-op unless running.
func (p *Poller[T]) Tick() {
	p.mu.Lock()
	if !p.running || p.stopped {
		p.mu.Unlock()
		return
	}
	p.issued++
	gen := p.issued
	ctx := p.ctx
	p.inflight.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.inflight.Done()
		v, err := p.fetch(ctx)
		p.resolve(gen, v, err)
	}()
}

func (p *Poller[T]) resolve(gen uint64, v T, err error) {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	p.mu.Lock()
	if p.stopped || (p.policy == LatestIssued && gen <= p.applied) {
		p.discards++
		p.mu.Unlock()
		return
	}
	if gen > p.applied {
		p.applied = gen
	}
	p.mu.Unlock()

	if err != nil && p.name != "" {
		p.logFn("poller: %s: %v", p.name, err)
	}
	if p.apply != nil {
		p.apply(v, err)
	}
}

// Stop cancels the timer and in-flight fetches. Results that resolve after
// Stop are discarded. Safe to call more than once.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.loop.Wait()
}

// Wait blocks until every issued fetch has resolved.
func (p *Poller[T]) Wait() {
	p.inflight.Wait()
}

// Stats reports the generation of the last issued and last applied tick and
// the number of discarded results.
func (p *Poller[T]) Stats() (issued, applied, discarded uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issued, p.applied, p.discards
}
