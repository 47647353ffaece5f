package processing

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/event"
	"github.com/Guizzs26/game_rsvp_bot/internal/keylock"
	"github.com/Guizzs26/game_rsvp_bot/internal/metrics"
	"github.com/Guizzs26/game_rsvp_bot/internal/model"
	"github.com/Guizzs26/game_rsvp_bot/internal/store"
)

type PollNotifier interface {
	RefreshPoll(ctx context.Context, pg model.PollWithGame)
	MarkClosed(ctx context.Context, pg model.PollWithGame)
}

type TallyPublisher interface {
	Publish(pollID int64, status model.PollStatus, tally model.Tally)
}

// Reconciler turns reaction events into poll responses. Events are sharded
// by message ref onto a fixed set of workers, so events for one poll are
// applied in arrival order while different polls proceed in parallel.
type Reconciler struct {
	consumer event.ReactionConsumer
	polls    store.PollStore
	notifier PollNotifier
	hub      TallyPublisher
	locks    *keylock.Arena[int64]
	metrics  *metrics.Metrics

	workers   int
	botUserID string
	now       func() time.Time
}

type Options struct {
	Workers int
	// BotUserID identifies the bot's own reactions, which are ignored.
	BotUserID string
}

func NewReconciler(c event.ReactionConsumer, polls store.PollStore, n PollNotifier, hub TallyPublisher,
	locks *keylock.Arena[int64], m *metrics.Metrics, opts Options) *Reconciler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Reconciler{
		consumer:  c,
		polls:     polls,
		notifier:  n,
		hub:       hub,
		locks:     locks,
		metrics:   m,
		workers:   opts.Workers,
		botUserID: opts.BotUserID,
		now:       time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	shards := make([]chan model.ReactionEvent, r.workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan model.ReactionEvent, 64)
		wg.Add(1)
		go func(in <-chan model.ReactionEvent) {
			defer wg.Done()
			for ev := range in {
				r.handleLogged(ctx, ev)
			}
		}(shards[i])
	}

	defer func() {
		for _, ch := range shards {
			close(ch)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("reconciler received signal to stop")
			return nil

		default:
			ev, err := r.consumer.ReadReaction(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				if errors.Is(err, event.ErrMalformedEvent) {
					r.metrics.ReactionsIgnored.WithLabelValues("malformed").Inc()
					continue
				}
				log.WithError(err).Error("error reading reaction")
				sleepCtx(ctx, time.Second)
				continue
			}

			select {
			case shards[shardFor(ev.MessageRef, r.workers)] <- ev:
			case <-ctx.Done():
			}
		}
	}
}

func shardFor(ref string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ref))
	return int(h.Sum32() % uint32(n))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (r *Reconciler) handleLogged(ctx context.Context, ev model.ReactionEvent) {
	entry := log.WithFields(log.Fields{"message_ref": ev.MessageRef, "user_id": ev.UserID, "emoji": ev.Emoji, "action": ev.Action})
	err := r.Handle(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrPollClosed):
		entry.WithError(err).Warn("reaction on closed poll rejected")
	case ctx.Err() != nil:
	default:
		entry.WithError(err).Error("error reconciling reaction")
	}
}

// Handle applies one reaction event. It returns an error wrapping
// store.ErrPollClosed when the poll no longer accepts responses; events that
// do not concern a poll are ignored without error.
func (r *Reconciler) Handle(ctx context.Context, ev model.ReactionEvent) error {
	start := time.Now()
	defer func() {
		r.metrics.ReconcileTime.Observe(time.Since(start).Seconds())
	}()

	response, ok := model.ResponseForEmoji(ev.Emoji)
	if !ok {
		r.metrics.ReactionsIgnored.WithLabelValues("emoji").Inc()
		return nil
	}
	if ev.Action != model.ReactionAdd && ev.Action != model.ReactionRemove {
		r.metrics.ReactionsIgnored.WithLabelValues("action").Inc()
		return nil
	}
	if r.botUserID != "" && ev.UserID == r.botUserID {
		r.metrics.ReactionsIgnored.WithLabelValues("self").Inc()
		return nil
	}

	pg, err := r.polls.GetPollByMessageRef(ctx, ev.MessageRef)
	if errors.Is(err, store.ErrPollNotFound) {
		r.metrics.ReactionsIgnored.WithLabelValues("unknown_message").Inc()
		return nil
	}
	if err != nil {
		return err
	}

	unlock := r.locks.Lock(pg.Poll.ID)
	defer unlock()

	// The lookup ran unlocked; a trigger may have closed or moved it since.
	poll, err := r.polls.GetPoll(ctx, pg.Poll.ID)
	if err != nil {
		return err
	}
	game, err := r.polls.GetGame(ctx, pg.Game.UID)
	if err != nil {
		return err
	}
	pg.Poll, pg.Game = *poll, *game

	if pg.Poll.Status == model.PollOpen && !r.now().Before(pg.Game.StartTime) {
		if err := r.polls.ClosePoll(ctx, pg.Poll.ID); err != nil {
			return err
		}
		pg.Poll.Status = model.PollClosed
		r.notifier.MarkClosed(ctx, *pg)
		log.WithField("poll_id", pg.Poll.ID).Info("poll closed, game has started")
	}

	var tally model.Tally
	switch ev.Action {
	case model.ReactionAdd:
		tally, err = r.polls.RecordResponse(ctx, pg.Poll.ID, ev.UserID, ev.Username, response)

	case model.ReactionRemove:
		current, gerr := r.polls.GetResponse(ctx, pg.Poll.ID, ev.UserID)
		if gerr != nil && !errors.Is(gerr, store.ErrResponseNotFound) {
			return gerr
		}
		if pg.Poll.Status != model.PollOpen {
			err = fmt.Errorf("%w: %d is %s", store.ErrPollClosed, pg.Poll.ID, pg.Poll.Status)
			break
		}
		// Removing an emoji that is no longer the user's answer is a no-op.
		if current == nil || current.Response != response {
			r.metrics.ReactionsIgnored.WithLabelValues("stale_removal").Inc()
			return nil
		}
		tally, err = r.polls.RemoveResponse(ctx, pg.Poll.ID, ev.UserID)
	}

	if errors.Is(err, store.ErrPollClosed) {
		r.metrics.ReactionsRejected.WithLabelValues("poll_closed").Inc()
		return err
	}
	if err != nil {
		r.metrics.ReactionsRejected.WithLabelValues("store").Inc()
		return err
	}

	r.metrics.ReactionsProcessed.WithLabelValues(string(ev.Action), string(response)).Inc()
	r.notifier.RefreshPoll(ctx, *pg)
	r.hub.Publish(pg.Poll.ID, pg.Poll.Status, tally)
	return nil
}
