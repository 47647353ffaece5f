package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/metrics"
	"github.com/Guizzs26/game_rsvp_bot/internal/store"
)

var ErrTriggerBusy = errors.New("trigger already running")

type Kind string

const (
	PollCreation Kind = "poll_creation"
	Reminders    Kind = "reminders"
	ChangeCheck  Kind = "change_check"
)

const (
	SourceScheduled = "scheduled"
	SourceManual    = "manual"
)

type JobFunc func(ctx context.Context) error

// Status is a point-in-time view of a trigger.
type Status struct {
	Kind      Kind      `json:"kind"`
	Interval  string    `json:"interval"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int64     `json:"runs"`
}

// Trigger owns one periodic job. At most one run is in flight per trigger
// in this process, and with a lease at most one across replicas.
type Trigger struct {
	kind     Kind
	interval time.Duration
	job      JobFunc

	state   *StateStore
	lease   store.Lease
	metrics *metrics.Metrics

	running  atomic.Bool
	inflight sync.WaitGroup

	mu  sync.Mutex
	rec RunRecord
}

func NewTrigger(kind Kind, interval time.Duration, job JobFunc, state *StateStore, lease store.Lease, m *metrics.Metrics) *Trigger {
	t := &Trigger{kind: kind, interval: interval, job: job, state: state, lease: lease, metrics: m}
	if state != nil {
		rec, ok, err := state.Load(string(kind))
		if err != nil {
			log.WithError(err).WithField("trigger", kind).Warn("error loading trigger state, starting fresh")
		} else if ok {
			t.rec = rec
		}
	}
	return t
}

func (t *Trigger) Kind() Kind { return t.kind }

// Run executes the job unless a run is already in progress, in which case it
// returns ErrTriggerBusy without waiting.
func (t *Trigger) Run(ctx context.Context, source string) error {
	entry := log.WithFields(log.Fields{"trigger": t.kind, "source": source})

	if !t.running.CompareAndSwap(false, true) {
		t.metrics.TriggerSkipped.WithLabelValues(string(t.kind)).Inc()
		return ErrTriggerBusy
	}
	t.inflight.Add(1)
	defer func() {
		t.running.Store(false)
		t.inflight.Done()
	}()

	if t.lease != nil {
		token, ok, err := t.lease.Acquire(ctx, string(t.kind), t.leaseTTL())
		if err != nil {
			return fmt.Errorf("acquiring lease for %s: %w", t.kind, err)
		}
		if !ok {
			t.metrics.TriggerSkipped.WithLabelValues(string(t.kind)).Inc()
			entry.Info("trigger held by another replica")
			return ErrTriggerBusy
		}
		defer func() {
			if err := t.lease.Release(context.WithoutCancel(ctx), string(t.kind), token); err != nil {
				entry.WithError(err).Warn("error releasing trigger lease")
			}
		}()
	}

	start := time.Now()
	t.metrics.TriggerRuns.WithLabelValues(string(t.kind), source).Inc()
	entry.Info("trigger started")

	err := t.job(ctx)

	elapsed := time.Since(start)
	t.metrics.TriggerDuration.WithLabelValues(string(t.kind)).Observe(elapsed.Seconds())
	if err != nil {
		t.metrics.TriggerFailures.WithLabelValues(string(t.kind)).Inc()
		entry.WithError(err).WithField("elapsed", elapsed).Error("trigger failed")
	} else {
		entry.WithField("elapsed", elapsed).Info("trigger finished")
	}

	t.record(start, err)
	return err
}

// leaseTTL bounds how long a crashed replica can block the others.
func (t *Trigger) leaseTTL() time.Duration {
	if t.interval < 30*time.Minute {
		return t.interval
	}
	return 30 * time.Minute
}

func (t *Trigger) record(start time.Time, err error) {
	t.mu.Lock()
	t.rec.LastRun = start.UTC()
	t.rec.Runs++
	t.rec.LastError = ""
	if err != nil {
		t.rec.LastError = err.Error()
	}
	rec := t.rec
	t.mu.Unlock()

	if t.state != nil {
		if serr := t.state.Save(string(t.kind), rec); serr != nil {
			log.WithError(serr).WithField("trigger", t.kind).Warn("error persisting trigger state")
		}
	}
}

// nextDelay is the time left until the next scheduled run.
func (t *Trigger) nextDelay(now time.Time) time.Duration {
	t.mu.Lock()
	last := t.rec.LastRun
	t.mu.Unlock()

	if last.IsZero() {
		return 0
	}
	remaining := t.interval - now.Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (t *Trigger) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Kind:      t.kind,
		Interval:  t.interval.String(),
		Running:   t.running.Load(),
		LastRun:   t.rec.LastRun,
		LastError: t.rec.LastError,
		Runs:      t.rec.Runs,
	}
}

func (t *Trigger) loop(ctx context.Context) {
	timer := time.NewTimer(t.nextDelay(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := t.Run(ctx, SourceScheduled); errors.Is(err, ErrTriggerBusy) {
				log.WithField("trigger", t.kind).Info("previous run still in progress, skipping tick")
			}
			timer.Reset(t.interval)
		}
	}
}

func (t *Trigger) wait() {
	t.inflight.Wait()
}
