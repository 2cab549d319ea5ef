// Package outbox runs the side effects that mission mutations queue in the
// side_effects table.
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"ares/internal/config"
	"ares/internal/domain"
	"ares/internal/effects"
	"ares/internal/logging"
	"ares/internal/workflow"
)

const (
	defaultInterval = 2 * time.Second
	defaultBatch    = 50
	defaultWorkers  = 4
	defaultTries    = 3
)

// Store is the outbox persistence used by the dispatcher.
type Store interface {
	PendingEffects(ctx context.Context, limit int) ([]domain.SideEffect, error)
	ClaimEffect(ctx context.Context, id string, now time.Time) (bool, error)
	FinishEffect(ctx context.Context, id string, attempts int, execErr error, now time.Time) error
}

// Handler performs a decoded effect.
type Handler interface {
	Execute(ctx context.Context, e workflow.Effect) error
}

// Dispatcher drains pending side effects. Dispatchers in several processes
// may share a workspace: a row runs only after it is claimed.
type Dispatcher struct {
	Store    Store
	Handler  Handler
	Interval time.Duration
	Batch    int
	Workers  int
	MaxTries int
	// NewBackOff returns the wait policy between attempts of one effect.
	NewBackOff func() backoff.BackOff
	Logger     *log.Logger
	Now        func() time.Time
}

// New builds a dispatcher from the outbox section of the config.
func New(store Store, h Handler, cfg config.OutboxConfig, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		Store:    store,
		Handler:  h,
		Interval: cfg.IntervalDuration(),
		Batch:    cfg.Batch,
		Workers:  cfg.Workers,
		MaxTries: cfg.MaxAttempts,
		Logger:   logger,
	}
}

// Stats summarises one dispatch round. Skipped counts rows another
// dispatcher claimed first.
type Stats struct {
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// Start runs the dispatcher until ctx is cancelled. The returned function
// waits for the loop to exit.
func (d *Dispatcher) Start(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.run(ctx)
	}()
	return wg.Wait
}

func (d *Dispatcher) run(ctx context.Context) {
	interval := d.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger := logging.Or(d.Logger)
	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Error("outbox: fetch pending effects failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes one batch of pending effects.
func (d *Dispatcher) RunOnce(ctx context.Context) (Stats, error) {
	batch := d.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	pending, err := d.Store.PendingEffects(ctx, batch)
	if err != nil {
		return Stats{}, err
	}
	workers := d.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	var (
		mu    sync.Mutex
		stats Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, se := range pending {
		g.Go(func() error {
			claimed, err := d.Store.ClaimEffect(gctx, se.ID, d.now())
			if err != nil {
				logging.Or(d.Logger).Error("claim side effect failed", "effect", se.ID, "err", err)
				return nil
			}
			if !claimed {
				mu.Lock()
				stats.Skipped++
				mu.Unlock()
				return nil
			}
			execErr := d.dispatch(gctx, se)
			mu.Lock()
			if execErr != nil {
				stats.Failed++
			} else {
				stats.Done++
			}
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	return stats, err
}

func (d *Dispatcher) dispatch(ctx context.Context, se domain.SideEffect) error {
	logger := logging.Or(d.Logger).With("mission", se.Mission, "kind", se.Kind, "effect", se.ID)
	attempts := 0
	e, err := effects.Decode(se)
	if err == nil {
		tries := d.MaxTries
		if tries <= 0 {
			tries = defaultTries
		}
		var b backoff.BackOff = backoff.NewExponentialBackOff()
		if d.NewBackOff != nil {
			b = d.NewBackOff()
		}
		_, err = backoff.Retry(ctx, func() (struct{}, error) {
			attempts++
			if err := d.Handler.Execute(ctx, e); err != nil {
				logger.Warn("side effect attempt failed", "attempt", attempts, "err", err)
				return struct{}{}, err
			}
			return struct{}{}, nil
		}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(tries)))
	}
	if err != nil {
		logger.Error("side effect failed", "attempts", attempts, "err", err)
	}
	if ferr := d.Store.FinishEffect(context.WithoutCancel(ctx), se.ID, attempts, err, d.now()); ferr != nil {
		logger.Error("record side effect outcome failed", "err", ferr)
	}
	return err
}
