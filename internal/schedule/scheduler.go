package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Scheduler runs a fixed set of triggers on their intervals and exposes
// them for manual runs.
type Scheduler struct {
	triggers map[Kind]*Trigger
	order    []Kind
	wg       sync.WaitGroup
}

func New(triggers ...*Trigger) *Scheduler {
	s := &Scheduler{triggers: make(map[Kind]*Trigger, len(triggers))}
	for _, t := range triggers {
		s.triggers[t.kind] = t
		s.order = append(s.order, t.kind)
	}
	return s
}

// Start launches one loop per trigger. The loops stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, k := range s.order {
		t := s.triggers[k]
		log.WithFields(log.Fields{"trigger": k, "first_run_in": t.nextDelay(time.Now())}).Info("trigger scheduled")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			t.loop(ctx)
		}()
	}
}

// Trigger runs kind now under the same no-overlap guard as scheduled runs.
func (s *Scheduler) Trigger(ctx context.Context, kind Kind) error {
	t, ok := s.triggers[kind]
	if !ok {
		return fmt.Errorf("unknown trigger %q", kind)
	}
	return t.Run(ctx, SourceManual)
}

func (s *Scheduler) Statuses() []Status {
	out := make([]Status, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.triggers[k].Status())
	}
	return out
}

// Wait blocks until the loops have exited and no run is in flight.
func (s *Scheduler) Wait() {
	s.wg.Wait()
	for _, t := range s.triggers {
		t.wait()
	}
}
