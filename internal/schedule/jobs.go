package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/changes"
	"github.com/Guizzs26/game_rsvp_bot/internal/config"
	"github.com/Guizzs26/game_rsvp_bot/internal/feed"
	"github.com/Guizzs26/game_rsvp_bot/internal/keylock"
	"github.com/Guizzs26/game_rsvp_bot/internal/metrics"
	"github.com/Guizzs26/game_rsvp_bot/internal/model"
	"github.com/Guizzs26/game_rsvp_bot/internal/notify"
	"github.com/Guizzs26/game_rsvp_bot/internal/store"
)

var (
	ErrInvalidTeam    = errors.New("invalid team index")
	ErrNoUpcomingGame = errors.New("no upcoming game")
	ErrInvalidDays    = errors.New("invalid days ahead")
)

// OpenedPoll is a poll returned by a manual command; Created is false when
// the game already had one.
type OpenedPoll struct {
	model.PollWithGame
	Created bool
}

type SnapshotBuilder interface {
	Build(ctx context.Context, team model.TeamFeed) (*feed.Snapshot, error)
}

type ChangeDetector interface {
	Detect(ctx context.Context, team string, candidates []model.Game) ([]changes.Change, error)
}

type Ledger interface {
	ListGamesNeedingPoll(ctx context.Context, from, until time.Time) ([]model.Game, error)
	NextGameForTeam(ctx context.Context, team string, after time.Time) (*model.Game, error)
	ListGamesByTeam(ctx context.Context, team string) ([]model.Game, error)
	OpenPoll(ctx context.Context, gameUID string) (*model.Poll, bool, error)
	GetPollByGame(ctx context.Context, gameUID string) (*model.Poll, error)
	GetPoll(ctx context.Context, pollID int64) (*model.Poll, error)
	ListOpenPolls(ctx context.Context) ([]model.PollWithGame, error)
	ClosePoll(ctx context.Context, pollID int64) error
	CancelPoll(ctx context.Context, pollID int64) error
	ListResponses(ctx context.Context, pollID int64) ([]model.RSVP, error)
	Tally(ctx context.Context, pollID int64) (model.Tally, error)
	ClaimReminders(ctx context.Context, pollID int64, userIDs []string, at time.Time) ([]string, error)
}

type Notifier interface {
	CreatePoll(ctx context.Context, pg model.PollWithGame)
	MarkClosed(ctx context.Context, pg model.PollWithGame)
	SendReminder(ctx context.Context, pg model.PollWithGame, tally model.Tally, userIDs []string, channel bool)
	SendTestReminder(ctx context.Context, pg model.PollWithGame, tally model.Tally)
	AnnounceTimeChange(ctx context.Context, pg model.PollWithGame, change notify.TimeChange)
	AnnounceCancellation(ctx context.Context, pg model.PollWithGame)
}

type TallyPublisher interface {
	Publish(pollID int64, status model.PollStatus, tally model.Tally)
}

type JobsConfig struct {
	Feeds         []model.TeamFeed
	PollLeadTime  time.Duration
	ReminderLead  time.Duration
	MissingPolicy config.MissingGamePolicy
	// Location decides which calendar day CreatePollsOn targets.
	Location *time.Location
}

// Jobs holds the work behind each trigger. Feed fetching and classification
// run without locks; only poll mutations take the poll's lock.
type Jobs struct {
	cfg      JobsConfig
	feeds    SnapshotBuilder
	detector ChangeDetector
	ledger   Ledger
	notifier Notifier
	hub      TallyPublisher
	locks    *keylock.Arena[int64]
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewJobs(cfg JobsConfig, feeds SnapshotBuilder, detector ChangeDetector, ledger Ledger, n Notifier,
	hub TallyPublisher, locks *keylock.Arena[int64], m *metrics.Metrics) *Jobs {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Jobs{
		cfg:      cfg,
		feeds:    feeds,
		detector: detector,
		ledger:   ledger,
		notifier: n,
		hub:      hub,
		locks:    locks,
		metrics:  m,
		now:      time.Now,
	}
}

// CreatePolls syncs every feed and opens a poll for each stored game that
// starts within the poll lead time and has none yet.
func (j *Jobs) CreatePolls(ctx context.Context) error {
	syncErr := j.syncAll(ctx)

	now := j.now()
	games, err := j.ledger.ListGamesNeedingPoll(ctx, now, now.Add(j.cfg.PollLeadTime))
	if err != nil {
		return errors.Join(syncErr, err)
	}

	var errs []error
	for _, g := range games {
		if _, _, err := j.openPoll(ctx, g); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(append(errs, syncErr)...)
}

// CheckChanges syncs every feed. Moved and missing games are announced as
// part of the sync.
func (j *Jobs) CheckChanges(ctx context.Context) error {
	return j.syncAll(ctx)
}

// SendReminders closes polls whose game has started and reminds the
// if-needed responders and the channel for games starting soon. Each
// recipient is claimed before sending, so nobody is reminded twice.
func (j *Jobs) SendReminders(ctx context.Context) error {
	polls, err := j.ledger.ListOpenPolls(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, pg := range polls {
		if err := j.remindOrClose(ctx, pg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (j *Jobs) remindOrClose(ctx context.Context, pg model.PollWithGame) error {
	entry := log.WithFields(log.Fields{"poll_id": pg.Poll.ID, "game_uid": pg.Game.UID})
	now := j.now()

	if !now.Before(pg.Game.StartTime) {
		return j.closePoll(ctx, pg)
	}
	if pg.Game.StartTime.After(now.Add(j.cfg.ReminderLead)) {
		return nil
	}

	unlock := j.locks.Lock(pg.Poll.ID)
	defer unlock()

	rsvps, err := j.ledger.ListResponses(ctx, pg.Poll.ID)
	if err != nil {
		return err
	}
	candidates := []string{}
	for _, r := range rsvps {
		if r.Response == model.ResponseIfNeeded {
			candidates = append(candidates, r.UserID)
		}
	}
	candidates = append(candidates, model.ChannelAudience)

	claimed, err := j.ledger.ClaimReminders(ctx, pg.Poll.ID, candidates, now)
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		return nil
	}

	tally, err := j.ledger.Tally(ctx, pg.Poll.ID)
	if err != nil {
		return err
	}

	users := make([]string, 0, len(claimed))
	channel := false
	for _, id := range claimed {
		if id == model.ChannelAudience {
			channel = true
			continue
		}
		users = append(users, id)
	}

	j.notifier.SendReminder(ctx, pg, tally, users, channel)
	j.metrics.RemindersSent.Add(float64(len(claimed)))
	entry.WithFields(log.Fields{"users": len(users), "channel": channel}).Info("reminder sent")
	return nil
}

func (j *Jobs) closePoll(ctx context.Context, pg model.PollWithGame) error {
	unlock := j.locks.Lock(pg.Poll.ID)
	defer unlock()

	// a reaction may have closed it since the poll list was read
	current, err := j.ledger.GetPoll(ctx, pg.Poll.ID)
	if err != nil {
		return err
	}
	if !current.AcceptsResponses() {
		return nil
	}

	if err := j.ledger.ClosePoll(ctx, pg.Poll.ID); err != nil {
		return err
	}
	pg.Poll.Status = model.PollClosed
	j.notifier.MarkClosed(ctx, pg)

	if tally, err := j.ledger.Tally(ctx, pg.Poll.ID); err == nil {
		j.hub.Publish(pg.Poll.ID, pg.Poll.Status, tally)
	}
	log.WithFields(log.Fields{"poll_id": pg.Poll.ID, "game_uid": pg.Game.UID}).Info("poll closed, game has started")
	return nil
}

// TestPoll opens a poll for the soonest upcoming game of one team, ignoring
// the lead time. An existing poll is returned with created=false.
func (j *Jobs) TestPoll(ctx context.Context, teamIndex int) (*model.PollWithGame, bool, error) {
	if teamIndex < 0 || teamIndex >= len(j.cfg.Feeds) {
		return nil, false, fmt.Errorf("%w: %d, available teams: 0-%d", ErrInvalidTeam, teamIndex, len(j.cfg.Feeds)-1)
	}
	team := j.cfg.Feeds[teamIndex]

	if err := j.syncTeam(ctx, team); err != nil {
		return nil, false, err
	}

	g, err := j.ledger.NextGameForTeam(ctx, team.Name, j.now())
	if errors.Is(err, store.ErrGameNotFound) {
		return nil, false, fmt.Errorf("%w for %s", ErrNoUpcomingGame, team.Name)
	}
	if err != nil {
		return nil, false, err
	}

	return j.openPoll(ctx, *g)
}

// CreatePollsOn opens polls for every upcoming game on the local calendar
// day daysAhead days from today, regardless of the lead time. It returns the
// targeted day and one entry per game found on it.
func (j *Jobs) CreatePollsOn(ctx context.Context, daysAhead int) (time.Time, []OpenedPoll, error) {
	if daysAhead < 0 {
		return time.Time{}, nil, fmt.Errorf("%w: %d", ErrInvalidDays, daysAhead)
	}

	now := j.now()
	local := now.In(j.cfg.Location)
	day := time.Date(local.Year(), local.Month(), local.Day()+daysAhead, 0, 0, 0, 0, j.cfg.Location)
	next := day.AddDate(0, 0, 1)

	syncErr := j.syncAll(ctx)

	var (
		opened []OpenedPoll
		errs   []error
	)
	for _, team := range j.cfg.Feeds {
		games, err := j.ledger.ListGamesByTeam(ctx, team.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, g := range games {
			if g.Missing || !g.StartTime.After(now) || g.StartTime.Before(day) || !g.StartTime.Before(next) {
				continue
			}
			pg, created, err := j.openPoll(ctx, g)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			opened = append(opened, OpenedPoll{PollWithGame: *pg, Created: created})
		}
	}
	return day, opened, errors.Join(append(errs, syncErr)...)
}

// TestReminder posts a reminder for the open poll whose game starts next.
// Reminder claims are left untouched.
func (j *Jobs) TestReminder(ctx context.Context) (*model.PollWithGame, error) {
	polls, err := j.ledger.ListOpenPolls(ctx)
	if err != nil {
		return nil, err
	}

	now := j.now()
	var next *model.PollWithGame
	for i := range polls {
		pg := &polls[i]
		if !pg.Game.StartTime.After(now) {
			continue
		}
		if next == nil || pg.Game.StartTime.Before(next.Game.StartTime) {
			next = pg
		}
	}
	if next == nil {
		return nil, ErrNoUpcomingGame
	}

	unlock := j.locks.Lock(next.Poll.ID)
	defer unlock()

	tally, err := j.ledger.Tally(ctx, next.Poll.ID)
	if err != nil {
		return nil, err
	}
	j.notifier.SendTestReminder(ctx, *next, tally)
	log.WithFields(log.Fields{"poll_id": next.Poll.ID, "game_uid": next.Game.UID}).Info("test reminder sent")
	return next, nil
}

func (j *Jobs) openPoll(ctx context.Context, g model.Game) (*model.PollWithGame, bool, error) {
	poll, created, err := j.ledger.OpenPoll(ctx, g.UID)
	if err != nil {
		return nil, false, fmt.Errorf("opening poll for %s: %w", g.UID, err)
	}
	pg := &model.PollWithGame{Poll: *poll, Game: g}
	if created {
		j.notifier.CreatePoll(ctx, *pg)
		j.metrics.PollsOpened.Inc()
		log.WithFields(log.Fields{"poll_id": poll.ID, "game_uid": g.UID, "team": g.TeamName}).Info("poll opened")
	}
	return pg, created, nil
}

func (j *Jobs) syncAll(ctx context.Context) error {
	var errs []error
	for _, team := range j.cfg.Feeds {
		if err := j.syncTeam(ctx, team); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// syncTeam brings the stored games of one team in line with its feed. An
// unreachable or malformed feed is logged and skipped; the next tick
// retries it.
func (j *Jobs) syncTeam(ctx context.Context, team model.TeamFeed) error {
	entry := log.WithField("team", team.Name)

	snap, err := j.feeds.Build(ctx, team)
	if err != nil {
		reason := "unavailable"
		if errors.Is(err, feed.ErrFeedMalformed) {
			reason = "malformed"
		}
		j.metrics.FeedFailures.WithLabelValues(team.Name, reason).Inc()
		entry.WithError(err).Warn("feed snapshot failed, keeping stored games")
		return nil
	}

	applied, err := j.detector.Detect(ctx, team.Name, snap.Games)
	if err != nil {
		return fmt.Errorf("applying changes for %s: %w", team.Name, err)
	}

	moved := changes.Filter(applied, changes.TimeChanged)
	missing := changes.Filter(applied, changes.Missing)
	entry.WithFields(log.Fields{
		"new":     len(changes.Filter(applied, changes.New)),
		"moved":   len(moved),
		"missing": len(missing),
		"skipped": snap.Skipped,
	}).Debug("feed synced")

	var errs []error
	for _, c := range moved {
		errs = append(errs, j.announceTimeChange(ctx, c))
	}
	for _, c := range missing {
		errs = append(errs, j.handleMissing(ctx, c))
	}
	return errors.Join(errs...)
}

func (j *Jobs) announceTimeChange(ctx context.Context, c changes.Change) error {
	poll, err := j.ledger.GetPollByGame(ctx, c.Game.UID)
	if errors.Is(err, store.ErrPollNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !poll.AcceptsResponses() {
		return nil
	}

	unlock := j.locks.Lock(poll.ID)
	defer unlock()

	j.notifier.AnnounceTimeChange(ctx, model.PollWithGame{Poll: *poll, Game: c.Game}, notify.TimeChange{
		Old:   c.Old,
		New:   c.New,
		Later: c.Direction == changes.Later,
	})
	return nil
}

func (j *Jobs) handleMissing(ctx context.Context, c changes.Change) error {
	entry := log.WithFields(log.Fields{"game_uid": c.Game.UID, "team": c.Game.TeamName, "policy": j.cfg.MissingPolicy})

	poll, err := j.ledger.GetPollByGame(ctx, c.Game.UID)
	if errors.Is(err, store.ErrPollNotFound) {
		entry.Info("missing game has no poll")
		return nil
	}
	if err != nil {
		return err
	}

	if j.cfg.MissingPolicy != config.MissingCancel || !poll.AcceptsResponses() {
		entry.WithField("poll_id", poll.ID).Warn("game missing from feed, leaving poll as is")
		return nil
	}

	unlock := j.locks.Lock(poll.ID)
	defer unlock()

	if err := j.ledger.CancelPoll(ctx, poll.ID); err != nil {
		return err
	}
	poll.Status = model.PollCancelled
	j.notifier.AnnounceCancellation(ctx, model.PollWithGame{Poll: *poll, Game: c.Game})
	if tally, err := j.ledger.Tally(ctx, poll.ID); err == nil {
		j.hub.Publish(poll.ID, poll.Status, tally)
	}
	entry.WithField("poll_id", poll.ID).Warn("game missing from feed, poll cancelled")
	return nil
}
