// Package poller drives the event polling loop: a fixed-rate tick decides
// whether a fetch is due, issues at most one fetch at a time, and stretches
// the interval between fetches with exponential backoff while the account
// is quiet.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/cmevents/internal/clock"
	"github.com/alfredjeanlab/cmevents/internal/model"
)

// Defaults match the production Cloud Manager cadence.
const (
	DefaultBaseInterval             = 16 * time.Second
	DefaultThrottleDisabledInterval = 500 * time.Millisecond
	DefaultFetchTimeout             = 30 * time.Second
	DefaultStaleAfter               = 5
	MaxMultiplier                   = 16
)

// ErrFetchTimeout is recorded as the last error when a fetch exceeds
// Config.FetchTimeout.
var ErrFetchTimeout = errors.New("fetch timed out")

// Fetcher retrieves the next batch of events, newest first.
type Fetcher interface {
	Fetch(ctx context.Context) ([]model.Event, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]model.Event, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]model.Event, error) { return f(ctx) }

// Publisher receives each successfully fetched batch. *events.Stream
// satisfies it.
type Publisher interface {
	PublishBatch(batch []model.Event)
}

// Config controls poller cadence and failure handling. Zero values take the
// defaults above. A negative FetchTimeout disables the timeout and a negative
// StaleAfter disables the stale signal.
type Config struct {
	BaseInterval             time.Duration
	DisableThrottle          bool
	ThrottleDisabledInterval time.Duration
	MaxMultiplier            int
	FetchTimeout             time.Duration
	StaleAfter               int

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics

	// OnStaleChange is called, outside the poller's lock, whenever the
	// stale signal is raised or cleared.
	OnStaleChange func(State)
}

// State is a snapshot of the poller.
type State struct {
	Multiplier          int       `json:"multiplier"`
	NextDeadline        time.Time `json:"next_deadline"`
	InProgress          bool      `json:"in_progress"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Stale               bool      `json:"stale"`
	LastError           string    `json:"last_error,omitempty"`
	LastSuccess         time.Time `json:"last_success"`
	Fetches             int64     `json:"fetches"`
}

// Poller owns one polling loop. All state lives on the instance; several
// pollers can run side by side.
type Poller struct {
	cfg       Config
	fetcher   Fetcher
	publisher Publisher
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *Metrics

	mu           sync.Mutex
	ctx          context.Context
	multiplier   int
	nextDeadline time.Time
	inProgress   bool
	failures     int
	stale        bool
	lastErr      error
	lastSuccess  time.Time
	fetches      int64

	wg sync.WaitGroup
}

// New returns a Poller whose first tick fetches immediately.
func New(cfg Config, fetcher Fetcher, publisher Publisher) (*Poller, error) {
	if fetcher == nil {
		return nil, errors.New("poller: fetcher is required")
	}
	if publisher == nil {
		return nil, errors.New("poller: publisher is required")
	}
	if cfg.BaseInterval == 0 {
		cfg.BaseInterval = DefaultBaseInterval
	}
	// The tick runs at BaseInterval/2 - 1ms, which must stay positive.
	if cfg.BaseInterval <= 2*time.Millisecond {
		return nil, fmt.Errorf("poller: base interval %s is too short", cfg.BaseInterval)
	}
	if cfg.ThrottleDisabledInterval <= 0 {
		cfg.ThrottleDisabledInterval = DefaultThrottleDisabledInterval
	}
	if cfg.MaxMultiplier <= 0 {
		cfg.MaxMultiplier = MaxMultiplier
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Poller{
		cfg:          cfg,
		fetcher:      fetcher,
		publisher:    publisher,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		ctx:          context.Background(),
		multiplier:   1,
		nextDeadline: cfg.Clock.Now().Add(-time.Nanosecond),
	}
	p.metrics.observeState(p.State())
	return p, nil
}

// TickInterval is the cadence Run ticks at.
func (p *Poller) TickInterval() time.Duration {
	return p.cfg.BaseInterval/2 - time.Millisecond
}

// Run ticks until ctx is done, then waits for any in-flight fetch to
// finish. Fetches started by Run use ctx.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()

	ticker := p.clock.NewTicker(p.TickInterval())
	defer ticker.Stop()

	p.logger.Info("event poller started",
		"base_interval", p.cfg.BaseInterval,
		"disable_throttle", p.cfg.DisableThrottle,
		"tick", p.TickInterval())

	for {
		select {
		case <-ctx.Done():
			p.Wait()
			p.logger.Info("event poller stopped")
			return nil
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick runs one scheduling decision and reports whether it issued a fetch.
// A tick at or before the deadline, or while a fetch is in flight, does
// nothing.
func (p *Poller) Tick() bool {
	now := p.clock.Now()

	p.mu.Lock()
	if !now.After(p.nextDeadline) {
		p.mu.Unlock()
		return false
	}
	if p.inProgress {
		p.mu.Unlock()
		p.metrics.observeOverlap()
		return false
	}

	p.inProgress = true
	p.fetches++
	if p.cfg.DisableThrottle {
		p.nextDeadline = now.Add(p.cfg.ThrottleDisabledInterval)
	} else {
		p.nextDeadline = now.Add(p.cfg.BaseInterval * time.Duration(p.multiplier))
		p.multiplier = min(p.multiplier*2, p.cfg.MaxMultiplier)
	}
	ctx := p.ctx
	p.wg.Add(1)
	state := p.stateLocked()
	p.mu.Unlock()

	p.metrics.observeState(state)
	go p.fetch(ctx, now)
	return true
}

type fetchResult struct {
	events []model.Event
	err    error
}

func (p *Poller) fetch(parent context.Context, issued time.Time) {
	defer p.wg.Done()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Buffered so an abandoned fetch can still deliver and exit.
	done := make(chan fetchResult, 1)
	go func() {
		events, err := p.fetcher.Fetch(ctx)
		done <- fetchResult{events: events, err: err}
	}()

	var timeout <-chan time.Time
	if p.cfg.FetchTimeout > 0 {
		timeout = p.clock.After(p.cfg.FetchTimeout)
	}

	select {
	case r := <-done:
		if r.err != nil {
			p.complete(issued, nil, r.err, resultError)
			return
		}
		p.complete(issued, r.events, nil, resultSuccess)
	case <-timeout:
		// A late result from the abandoned fetch is discarded.
		p.complete(issued, nil, fmt.Errorf("%w after %s", ErrFetchTimeout, p.cfg.FetchTimeout), resultTimeout)
	}
}

// complete publishes a successful batch, then clears inProgress and updates
// the failure bookkeeping. Publishing before clearing keeps batches in
// issue order.
func (p *Poller) complete(issued time.Time, events []model.Event, err error, result string) {
	if err == nil {
		p.publisher.PublishBatch(events)
	}

	now := p.clock.Now()
	p.mu.Lock()
	p.inProgress = false
	wasStale := p.stale
	if err != nil {
		p.failures++
		p.lastErr = err
		if p.cfg.StaleAfter > 0 && p.failures >= p.cfg.StaleAfter {
			p.stale = true
		}
	} else {
		p.failures = 0
		p.lastErr = nil
		p.stale = false
		p.lastSuccess = now
	}
	state := p.stateLocked()
	p.mu.Unlock()

	p.metrics.observeState(state)
	p.metrics.observeFetch(result, now.Sub(issued), len(events))

	if err != nil {
		p.logger.Warn("event fetch failed", "err", err, "consecutive_failures", state.ConsecutiveFailures)
	} else if len(events) > 0 {
		p.logger.Debug("events fetched", "count", len(events))
	}

	if state.Stale != wasStale {
		if state.Stale {
			p.logger.Error("event feed is stale", "consecutive_failures", state.ConsecutiveFailures, "err", err)
		} else {
			p.logger.Info("event feed recovered")
		}
		if p.cfg.OnStaleChange != nil {
			p.cfg.OnStaleChange(state)
		}
	}
}

// ResetBackoff signals user activity: the multiplier returns to 1 and the
// deadline moves just before now, as in New, so the next tick fetches.
func (p *Poller) ResetBackoff() {
	now := p.clock.Now()
	p.mu.Lock()
	p.multiplier = 1
	p.nextDeadline = now.Add(-time.Nanosecond)
	state := p.stateLocked()
	p.mu.Unlock()
	p.metrics.observeState(state)
}

// State returns a snapshot of the poller.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Poller) stateLocked() State {
	s := State{
		Multiplier:          p.multiplier,
		NextDeadline:        p.nextDeadline,
		InProgress:          p.inProgress,
		ConsecutiveFailures: p.failures,
		Stale:               p.stale,
		LastSuccess:         p.lastSuccess,
		Fetches:             p.fetches,
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

// Wait blocks until every fetch issued so far has completed or timed out.
func (p *Poller) Wait() {
	p.wg.Wait()
}
