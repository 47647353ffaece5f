package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

var (
	// ErrFeedUnavailable covers network failures and non-2xx responses.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrFeedMalformed covers bodies that are not parseable iCalendar data.
	ErrFeedMalformed = errors.New("feed malformed")
)

const maxFeedBytes = 8 << 20

// Snapshot is the normalized list of upcoming games of one team feed.
type Snapshot struct {
	Team      model.TeamFeed
	Games     []model.Game
	Skipped   int
	Cancelled int
	FetchedAt time.Time
}

type Builder struct {
	client  *http.Client
	loc     *time.Location
	horizon time.Duration
	now     func() time.Time
}

type Option func(*Builder)

func WithHTTPClient(c *http.Client) Option {
	return func(b *Builder) { b.client = c }
}

func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a Builder that interprets floating times in loc and
// expands recurring events up to horizon into the future.
func NewBuilder(loc *time.Location, horizon, timeout time.Duration, opts ...Option) *Builder {
	b := &Builder{
		client:  &http.Client{Timeout: timeout},
		loc:     loc,
		horizon: horizon,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build fetches and parses one team feed. Entries without a UID or start
// time are skipped and counted; they never fail the whole snapshot.
func (b *Builder) Build(ctx context.Context, team model.TeamFeed) (*Snapshot, error) {
	body, err := b.fetch(ctx, team.URL)
	if err != nil {
		return nil, err
	}

	now := b.now()
	p := &parser{loc: b.loc, team: team.Name, from: now, until: now.Add(b.horizon)}
	games, err := p.parse(body)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(games, func(i, j int) bool {
		return games[i].StartTime.Before(games[j].StartTime)
	})

	snap := &Snapshot{
		Team:      team,
		Games:     games,
		Skipped:   p.stats.skipped,
		Cancelled: p.stats.cancelled,
		FetchedAt: now,
	}
	p.stats.log(team.Name, len(games))
	return snap, nil
}

func (b *Builder) fetch(ctx context.Context, rawURL string) (string, error) {
	url := normalizeURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: building request for %s: %w", ErrFeedUnavailable, url, err)
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: GET %s: %w", ErrFeedUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: GET %s: status %d", ErrFeedUnavailable, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading body of %s: %w", ErrFeedUnavailable, url, err)
	}

	bodyStr := string(body)
	if err := validateICalFormat(bodyStr); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFeedMalformed, url, err)
	}
	return bodyStr, nil
}

func normalizeURL(u string) string {
	if strings.HasPrefix(u, "webcal://") {
		return "https://" + strings.TrimPrefix(u, "webcal://")
	}
	return u
}

func validateICalFormat(bodyStr string) error {
	upperBody := strings.ToUpper(strings.TrimSpace(bodyStr))
	if strings.HasPrefix(upperBody, "<!DOCTYPE") || strings.HasPrefix(upperBody, "<HTML") {
		return errors.New("received HTML instead of iCalendar data, check if the URL requires authentication")
	}

	if !strings.HasPrefix(upperBody, "BEGIN:VCALENDAR") {
		preview := strings.TrimSpace(bodyStr)
		if len(preview) > 100 {
			preview = preview[:100]
		}
		return fmt.Errorf("expected BEGIN:VCALENDAR, got: %q", preview)
	}
	return nil
}

type parseStats struct {
	events     int
	skipped    int
	cancelled  int
	past       int
	duplicates int
}

func (s *parseStats) log(team string, included int) {
	log.WithFields(log.Fields{
		"team":       team,
		"events":     s.events,
		"included":   included,
		"skipped":    s.skipped,
		"cancelled":  s.cancelled,
		"past":       s.past,
		"duplicates": s.duplicates,
	}).Info("feed snapshot built")
}
