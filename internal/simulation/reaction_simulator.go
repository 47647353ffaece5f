package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/event"
	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

var emojis = []string{model.EmojiYes, model.EmojiNo, model.EmojiIfNeeded, "🎉"}

// Simulator publishes synthetic reactions on existing poll messages. Every
// few events it makes a user change their mind or withdraw a reaction, so
// the last-reaction-wins path gets exercised.
type Simulator struct {
	publisher event.ReactionPublisher
	refs      []string
	users     int
	interval  time.Duration
	rng       *rand.Rand
	runID     string
}

func New(p event.ReactionPublisher, refs []string, users int, interval time.Duration) (*Simulator, error) {
	var known []string
	for _, r := range refs {
		if r != "" {
			known = append(known, r)
		}
	}
	if len(known) == 0 {
		return nil, errors.New("at least one poll message ref is required")
	}
	if users < 1 {
		users = 1
	}
	return &Simulator{
		publisher: p,
		refs:      known,
		users:     users,
		interval:  interval,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		runID:     uuid.NewString(),
	}, nil
}

type lastReaction struct {
	ref   string
	user  string
	emoji string
}

func (s *Simulator) Run(ctx context.Context) error {
	log.WithFields(log.Fields{"run_id": s.runID, "polls": len(s.refs), "users": s.users}).Info("simulation started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	const changeFrequency = 5
	var (
		counter int
		last    *lastReaction
	)

	for {
		select {
		case <-ctx.Done():
			log.Info("simulator received shutdown signal")
			return nil

		case <-ticker.C:
			counter++
			ev := s.next(counter%changeFrequency == 0, last)
			if ev.Action == model.ReactionAdd {
				last = &lastReaction{ref: ev.MessageRef, user: ev.UserID, emoji: ev.Emoji}
			}

			publishCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			log.WithFields(log.Fields{"run_id": s.runID, "message_ref": ev.MessageRef, "user_id": ev.UserID, "emoji": ev.Emoji, "action": ev.Action}).
				Info("publishing reaction")
			if err := s.publisher.PublishReaction(publishCtx, ev); err != nil {
				log.WithError(err).Error("failed to publish reaction")
			}
			cancel()
		}
	}
}

func (s *Simulator) next(revisit bool, last *lastReaction) model.ReactionEvent {
	ev := model.ReactionEvent{Action: model.ReactionAdd, Timestamp: time.Now().UTC()}

	if revisit && last != nil {
		ev.MessageRef = last.ref
		ev.UserID = last.user
		if s.rng.Intn(2) == 0 {
			ev.Action = model.ReactionRemove
			ev.Emoji = last.emoji
		} else {
			ev.Emoji = emojis[s.rng.Intn(3)]
		}
	} else {
		ev.MessageRef = s.refs[s.rng.Intn(len(s.refs))]
		ev.UserID = fmt.Sprintf("%d", 100000+s.rng.Intn(s.users))
		ev.Emoji = emojis[s.rng.Intn(len(emojis))]
	}
	ev.Username = "sim-" + ev.UserID
	return ev
}
