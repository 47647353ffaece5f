// Package notify renders poll state into chat actions. It is the only
// component that talks to the chat transport. Delivery failures are logged
// and never roll back ledger state.
package notify

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Guizzs26/game_rsvp_bot/internal/metrics"
	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

type Transport interface {
	Send(ctx context.Context, action model.ChatAction) error
}

type ResponseLister interface {
	ListResponses(ctx context.Context, pollID int64) ([]model.RSVP, error)
}

// TimeChange describes a moved game for AnnounceTimeChange.
type TimeChange struct {
	Old   time.Time
	New   time.Time
	Later bool
}

type Notifier struct {
	transport Transport
	responses ResponseLister
	limiter   *rate.Limiter
	channelID string
	loc       *time.Location
	metrics   *metrics.Metrics
	now       func() time.Time

	mu      sync.Mutex
	notices map[int64]string
}

func New(t Transport, responses ResponseLister, channelID string, loc *time.Location, rps float64, burst int, m *metrics.Metrics) *Notifier {
	return &Notifier{
		transport: t,
		responses: responses,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		channelID: channelID,
		loc:       loc,
		metrics:   m,
		now:       time.Now,
		notices:   make(map[int64]string),
	}
}

// CreatePoll posts the poll message with the three response reactions.
func (n *Notifier) CreatePoll(ctx context.Context, pg model.PollWithGame) {
	action := n.pollMessage(pg, nil)
	action.Kind = model.ActionCreatePoll
	action.Reactions = []string{model.EmojiYes, model.EmojiNo, model.EmojiIfNeeded}
	n.send(ctx, pg.Poll.ID, action)
}

// RefreshPoll re-renders the poll message from the current responses.
func (n *Notifier) RefreshPoll(ctx context.Context, pg model.PollWithGame) {
	rsvps, err := n.responses.ListResponses(ctx, pg.Poll.ID)
	if err != nil {
		log.WithError(err).WithField("poll_id", pg.Poll.ID).Error("error loading responses for poll refresh")
		return
	}
	action := n.pollMessage(pg, rsvps)
	action.Kind = model.ActionEditPoll
	n.send(ctx, pg.Poll.ID, action)
}

// MarkClosed re-renders the poll once it stops accepting responses.
func (n *Notifier) MarkClosed(ctx context.Context, pg model.PollWithGame) {
	pg.Poll.Status = model.PollClosed
	n.RefreshPoll(ctx, pg)
	n.forgetNotice(pg.Poll.ID)
}

// SendReminder replies to the poll mentioning userIDs. When channel is set
// the reply also addresses everyone who has not answered yet.
func (n *Notifier) SendReminder(ctx context.Context, pg model.PollWithGame, tally model.Tally, userIDs []string, channel bool) {
	mentions := append([]string(nil), userIDs...)
	if channel {
		mentions = append(mentions, model.ChannelAudience)
	}
	if len(mentions) == 0 {
		return
	}

	hours := int(pg.Game.StartTime.Sub(n.now()).Hours())
	n.send(ctx, pg.Poll.ID, model.ChatAction{
		Kind:     model.ActionReply,
		ReplyTo:  pg.Poll.MessageRef,
		Body:     reminderText("REMINDER", hours, tally, userIDs, channel),
		Mentions: mentions,
	})
}

// SendTestReminder posts a channel-wide reminder for pg outside the
// reminder schedule. Nothing is claimed, so regular reminders still go out.
func (n *Notifier) SendTestReminder(ctx context.Context, pg model.PollWithGame, tally model.Tally) {
	hours := int(pg.Game.StartTime.Sub(n.now()).Hours())
	n.send(ctx, pg.Poll.ID, model.ChatAction{
		Kind:     model.ActionReply,
		ReplyTo:  pg.Poll.MessageRef,
		Body:     reminderText("TEST REMINDER", hours, tally, nil, true),
		Mentions: []string{model.ChannelAudience},
	})
}

// AnnounceTimeChange updates the poll with a notice that replaces any earlier
// one and pings everyone who responded.
func (n *Notifier) AnnounceTimeChange(ctx context.Context, pg model.PollWithGame, change TimeChange) {
	n.mu.Lock()
	n.notices[pg.Poll.ID] = timeChangeNotice(change.Old.In(n.loc), change.New.In(n.loc), change.Later)
	n.mu.Unlock()

	rsvps, err := n.responses.ListResponses(ctx, pg.Poll.ID)
	if err != nil {
		log.WithError(err).WithField("poll_id", pg.Poll.ID).Error("error loading responses for time change")
		return
	}

	edit := n.pollMessage(pg, rsvps)
	edit.Kind = model.ActionEditPoll
	n.send(ctx, pg.Poll.ID, edit)

	if len(rsvps) == 0 {
		return
	}
	users := responderIDs(rsvps)
	n.send(ctx, pg.Poll.ID, model.ChatAction{
		Kind:     model.ActionReply,
		ReplyTo:  pg.Poll.MessageRef,
		Body:     timeChangeReply(pg.Game.TeamName, change.Old.In(n.loc), change.New.In(n.loc), users),
		Mentions: users,
	})
}

// AnnounceCancellation marks the poll cancelled and tells the responders.
func (n *Notifier) AnnounceCancellation(ctx context.Context, pg model.PollWithGame) {
	pg.Poll.Status = model.PollCancelled
	rsvps, err := n.responses.ListResponses(ctx, pg.Poll.ID)
	if err != nil {
		log.WithError(err).WithField("poll_id", pg.Poll.ID).Error("error loading responses for cancellation")
		return
	}

	edit := n.pollMessage(pg, rsvps)
	edit.Kind = model.ActionEditPoll
	n.send(ctx, pg.Poll.ID, edit)
	n.forgetNotice(pg.Poll.ID)

	users := responderIDs(rsvps)
	n.send(ctx, pg.Poll.ID, model.ChatAction{
		Kind:     model.ActionReply,
		ReplyTo:  pg.Poll.MessageRef,
		Body:     cancellationReply(pg.Game, n.loc, users),
		Mentions: users,
	})
}

func (n *Notifier) notice(pollID int64) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.notices[pollID]
}

func (n *Notifier) forgetNotice(pollID int64) {
	n.mu.Lock()
	delete(n.notices, pollID)
	n.mu.Unlock()
}

func (n *Notifier) send(ctx context.Context, pollID int64, action model.ChatAction) {
	action.ChannelID = n.channelID
	entry := log.WithFields(log.Fields{"poll_id": pollID, "kind": action.Kind})

	if err := n.limiter.Wait(ctx); err != nil {
		entry.WithError(err).Warn("chat action dropped while waiting for rate limiter")
		n.metrics.NotifierFailures.WithLabelValues(string(action.Kind)).Inc()
		return
	}

	if err := n.transport.Send(ctx, action); err != nil {
		entry.WithError(err).Error("error sending chat action")
		n.metrics.NotifierFailures.WithLabelValues(string(action.Kind)).Inc()
		return
	}
	n.metrics.NotifierSent.WithLabelValues(string(action.Kind)).Inc()
}

func responderIDs(rsvps []model.RSVP) []string {
	ids := make([]string, 0, len(rsvps))
	for _, r := range rsvps {
		ids = append(ids, r.UserID)
	}
	return ids
}
