// Package outbox delivers events recorded alongside follows and posts to the
// notification fan-out, outside the request that produced them.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/isdelr/chirp-be/internal/metrics"
	"github.com/isdelr/chirp-be/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Defaults applied by NewDispatcher to zero Options fields.
const (
	DefaultSweepSchedule = "@every 5s"
	DefaultMaxAttempts   = 5
	DefaultBatchSize     = 100
	DefaultRetryBackoff  = 5 * time.Second
)

// maxRetryBackoff caps the delay between two attempts of one event.
const maxRetryBackoff = 5 * time.Minute

// Handler turns an event into notifications.
type Handler interface {
	HandleEvent(ctx context.Context, ev models.Event) ([]models.Notification, error)
}

// Publisher pushes freshly created notifications to connected clients.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// Options configures a Dispatcher.
type Options struct {
	// SweepSchedule is a cron spec for the periodic retry sweep.
	SweepSchedule string
	MaxAttempts   int
	BatchSize     int
	// RetryBackoff is the delay after the first failed attempt. It doubles
	// with every further failure.
	RetryBackoff time.Duration
	// Now overrides the clock used to schedule retries.
	Now func() time.Time
}

// Dispatcher processes pending outbox events. It runs a pass whenever it is
// notified and on every tick of the sweep schedule.
type Dispatcher struct {
	db        *sql.DB
	handler   Handler
	publisher Publisher
	opts      Options

	cron    *cron.Cron
	nudge   chan struct{}
	done    chan struct{}
	stopped chan struct{}
	started atomic.Bool
	stop    sync.Once

	// mu keeps processing passes from overlapping.
	mu sync.Mutex
}

// NewDispatcher creates a Dispatcher. publisher may be nil.
func NewDispatcher(db *sql.DB, handler Handler, publisher Publisher, opts Options) (*Dispatcher, error) {
	if opts.SweepSchedule == "" {
		opts.SweepSchedule = DefaultSweepSchedule
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if _, err := cron.ParseStandard(opts.SweepSchedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", opts.SweepSchedule, err)
	}

	d := &Dispatcher{
		db:        db,
		handler:   handler,
		publisher: publisher,
		opts:      opts,
		cron:      cron.New(),
		nudge:     make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	if _, err := d.cron.AddFunc(opts.SweepSchedule, d.Notify); err != nil {
		return nil, fmt.Errorf("failed to schedule outbox sweep: %w", err)
	}
	return d, nil
}

// Notify asks for a processing pass without blocking. Extra notifications
// while one is already queued are dropped.
func (d *Dispatcher) Notify() {
	select {
	case d.nudge <- struct{}{}:
	default:
	}
}

// Run starts the dispatch loop and blocks until Stop is called.
func (d *Dispatcher) Run() {
	d.started.Store(true)
	defer close(d.stopped)

	log.Info().Str("schedule", d.opts.SweepSchedule).Msg("Starting outbox dispatcher...")
	d.cron.Start()

	// Pick up anything left over from a previous run.
	d.Notify()

	for {
		select {
		case <-d.done:
			log.Info().Msg("Stopping outbox dispatcher.")
			return
		case <-d.nudge:
			n, err := d.ProcessPending(context.Background())
			if err != nil {
				log.Error().Err(err).Msg("Outbox: processing pass failed")
				continue
			}
			// A full batch means more may be waiting.
			if n == d.opts.BatchSize {
				d.Notify()
			}
		}
	}
}

// Stop halts the sweep schedule and the dispatch loop.
func (d *Dispatcher) Stop() {
	d.stop.Do(func() {
		<-d.cron.Stop().Done()
		close(d.done)
	})
	if d.started.Load() {
		<-d.stopped
	}
}

// ProcessPending runs one pass over the pending events that are due and
// returns how many were delivered. A failing event waits out its backoff and
// is retried on a later pass until MaxAttempts.
func (d *Dispatcher) ProcessPending(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	events, err := pendingEvents(ctx, d.db, d.opts.Now(), d.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, ev := range events {
		if d.dispatch(ctx, ev) {
			delivered++
		}
	}
	return delivered, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, ev models.Event) bool {
	start := time.Now()
	logger := log.With().Str("event_id", ev.ID).Str("event_type", string(ev.Type)).Logger()

	created, err := d.handler.HandleEvent(ctx, ev)
	if err != nil {
		next := d.opts.Now().Add(retryDelay(d.opts.RetryBackoff, ev.Attempts+1))
		status, markErr := markAttemptFailed(ctx, d.db, ev, err, d.opts.MaxAttempts, next)
		if markErr != nil {
			logger.Error().Err(markErr).Msg("Outbox: failed to record attempt")
		}
		result := "retry"
		if status == models.EventFailed {
			result = "failed"
		}
		metrics.RecordFanout(string(ev.Type), result, 0, time.Since(start))
		logger.Error().Err(err).Int("attempt", ev.Attempts+1).Str("status", string(status)).Time("next_attempt", next).Msg("Outbox: fan-out failed")
		return false
	}

	if err := markDone(ctx, d.db, ev.ID, d.opts.Now()); err != nil {
		// Notifications are already stored; a replay inserts nothing new.
		logger.Error().Err(err).Msg("Outbox: failed to mark event done")
	}
	metrics.RecordFanout(string(ev.Type), "done", len(created), time.Since(start))
	logger.Debug().Int("notifications", len(created)).Dur("latency", time.Since(start)).Msg("Outbox: fan-out completed")

	if d.publisher != nil {
		for _, n := range created {
			if err := d.publisher.Publish(ctx, n); err != nil {
				logger.Warn().Err(err).Str("user_id", n.UserID).Msg("Outbox: failed to publish notification")
			}
		}
	}
	return true
}

// retryDelay is the wait after the given number of failed attempts.
func retryDelay(base time.Duration, failures int) time.Duration {
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= maxRetryBackoff {
			return maxRetryBackoff
		}
	}
	return min(delay, maxRetryBackoff)
}
