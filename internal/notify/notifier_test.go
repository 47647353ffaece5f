package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/game_rsvp_bot/internal/metrics"
	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

type fakeTransport struct {
	mu      sync.Mutex
	actions []model.ChatAction
	err     error
}

func (f *fakeTransport) Send(_ context.Context, a model.ChatAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.actions = append(f.actions, a)
	return nil
}

func (f *fakeTransport) sent() []model.ChatAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ChatAction(nil), f.actions...)
}

type fakeResponses map[int64][]model.RSVP

func (f fakeResponses) ListResponses(_ context.Context, pollID int64) ([]model.RSVP, error) {
	return f[pollID], nil
}

func newTestNotifier(t *testing.T, tr Transport, rs ResponseLister) (*Notifier, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry(), "test")
	return New(tr, rs, "chan-1", time.UTC, 1000, 100, m), m
}

func samplePoll() model.PollWithGame {
	home := true
	return model.PollWithGame{
		Poll: model.Poll{ID: 1, GameUID: "g1", MessageRef: "ref-1", Status: model.PollOpen},
		Game: model.Game{
			UID:       "g1",
			TeamName:  "Otters",
			StartTime: time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC),
			Opponent:  "Wolves",
			Location:  "Rink 1",
			IsHome:    &home,
		},
	}
}

func TestCreatePoll(t *testing.T) {
	tr := &fakeTransport{}
	n, _ := newTestNotifier(t, tr, fakeResponses{})

	n.CreatePoll(context.Background(), samplePoll())

	sent := tr.sent()
	require.Len(t, sent, 1)
	a := sent[0]
	assert.Equal(t, model.ActionCreatePoll, a.Kind)
	assert.Equal(t, "chan-1", a.ChannelID)
	assert.Equal(t, "ref-1", a.MessageRef)
	assert.Equal(t, []string{model.EmojiYes, model.EmojiNo, model.EmojiIfNeeded}, a.Reactions)
	assert.Contains(t, a.Title, "Otters")
	assert.Contains(t, a.Body, "Opponent: Wolves")
	assert.Contains(t, a.Body, "Home game")
	require.Len(t, a.Fields, 3)
	assert.Equal(t, "None", a.Fields[0].Value)
}

func TestRefreshPoll_ListsMentionsAndFallsBackToCounts(t *testing.T) {
	var many []model.RSVP
	for i := 0; i < 80; i++ {
		many = append(many, model.RSVP{PollID: 1, UserID: fmt.Sprintf("1000000000000000%02d", i), Response: model.ResponseYes})
	}
	many = append(many, model.RSVP{PollID: 1, UserID: "42", Response: model.ResponseNo})

	tr := &fakeTransport{}
	n, _ := newTestNotifier(t, tr, fakeResponses{1: many})

	n.RefreshPoll(context.Background(), samplePoll())

	sent := tr.sent()
	require.Len(t, sent, 1)
	fields := sent[0].Fields
	assert.Equal(t, model.ActionEditPoll, sent[0].Kind)
	assert.Equal(t, "✅ Yes (80)", fields[0].Name)
	assert.Equal(t, "80 players", fields[0].Value)
	assert.Equal(t, "<@42>", fields[1].Value)
	assert.Equal(t, "None", fields[2].Value)
}

func TestSend_TransportFailureIsSwallowed(t *testing.T) {
	tr := &fakeTransport{err: errors.New("broker down")}
	n, m := newTestNotifier(t, tr, fakeResponses{})

	n.CreatePoll(context.Background(), samplePoll())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotifierFailures.WithLabelValues(string(model.ActionCreatePoll))))
}

func TestSendReminder(t *testing.T) {
	tr := &fakeTransport{}
	n, _ := newTestNotifier(t, tr, fakeResponses{})
	pg := samplePoll()
	n.now = func() time.Time { return pg.Game.StartTime.Add(-20 * time.Hour) }

	n.SendReminder(context.Background(), pg, model.Tally{Yes: 3, IfNeeded: 1}, []string{"7"}, true)

	sent := tr.sent()
	require.Len(t, sent, 1)
	a := sent[0]
	assert.Equal(t, model.ActionReply, a.Kind)
	assert.Equal(t, "ref-1", a.ReplyTo)
	assert.Equal(t, []string{"7", model.ChannelAudience}, a.Mentions)
	assert.Contains(t, a.Body, "approximately 20 hours")
	assert.Contains(t, a.Body, "✅ 3 | ❌ 0 | 🤷 1")
	assert.Contains(t, a.Body, "<@7>")

	n.SendReminder(context.Background(), pg, model.Tally{}, nil, false)
	assert.Len(t, tr.sent(), 1, "nothing to send without recipients")
}

func TestSendTestReminder(t *testing.T) {
	tr := &fakeTransport{}
	n, _ := newTestNotifier(t, tr, fakeResponses{})
	pg := samplePoll()
	n.now = func() time.Time { return pg.Game.StartTime.Add(-50 * time.Hour) }

	n.SendTestReminder(context.Background(), pg, model.Tally{})

	sent := tr.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ref-1", sent[0].ReplyTo)
	assert.Equal(t, []string{model.ChannelAudience}, sent[0].Mentions)
	assert.Contains(t, sent[0].Body, "**TEST REMINDER**: Game in approximately 50 hours")
	assert.Contains(t, sent[0].Body, "No responses yet!")
}

func TestAnnounceTimeChange_ReplacesNotice(t *testing.T) {
	tr := &fakeTransport{}
	rs := fakeResponses{1: {
		{PollID: 1, UserID: "7", Response: model.ResponseYes},
		{PollID: 1, UserID: "8", Response: model.ResponseNo},
	}}
	n, _ := newTestNotifier(t, tr, rs)
	pg := samplePoll()
	ctx := context.Background()

	first := pg.Game.StartTime.Add(30 * time.Minute)
	pg.Game.StartTime = first
	n.AnnounceTimeChange(ctx, pg, TimeChange{Old: first.Add(-30 * time.Minute), New: first, Later: true})

	sent := tr.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, model.ActionEditPoll, sent[0].Kind)
	assert.Contains(t, sent[0].Body, "from 07:00 PM to 07:30 PM (later)")
	assert.Equal(t, model.ActionReply, sent[1].Kind)
	assert.Equal(t, []string{"7", "8"}, sent[1].Mentions)
	assert.Contains(t, sent[1].Body, "**Old time**: 07:00 PM")

	second := first.Add(-2 * time.Hour)
	pg.Game.StartTime = second
	n.AnnounceTimeChange(ctx, pg, TimeChange{Old: first, New: second})

	n.RefreshPoll(ctx, pg)
	sent = tr.sent()
	last := sent[len(sent)-1]
	assert.Equal(t, 1, strings.Count(last.Body, "TIME CHANGE"))
	assert.Contains(t, last.Body, "(earlier)")

	n.MarkClosed(ctx, pg)
	sent = tr.sent()
	closed := sent[len(sent)-1]
	assert.Equal(t, "RSVPs closed", closed.Footer)
	assert.Contains(t, closed.Body, "TIME CHANGE")
}

func TestAnnounceTimeChange_NoReplyWithoutResponders(t *testing.T) {
	tr := &fakeTransport{}
	n, _ := newTestNotifier(t, tr, fakeResponses{})
	pg := samplePoll()

	n.AnnounceTimeChange(context.Background(), pg, TimeChange{Old: pg.Game.StartTime, New: pg.Game.StartTime.Add(time.Hour), Later: true})

	sent := tr.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, model.ActionEditPoll, sent[0].Kind)
}

func TestAnnounceCancellation(t *testing.T) {
	tr := &fakeTransport{}
	n, _ := newTestNotifier(t, tr, fakeResponses{1: {{PollID: 1, UserID: "7", Response: model.ResponseYes}}})

	n.AnnounceCancellation(context.Background(), samplePoll())

	sent := tr.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Game cancelled", sent[0].Footer)
	assert.Equal(t, []string{"7"}, sent[1].Mentions)
	assert.Contains(t, sent[1].Body, "no longer in the calendar")
}
