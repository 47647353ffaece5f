package changes

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
	"github.com/Guizzs26/game_rsvp_bot/internal/store"
)

type Kind string

const (
	New         Kind = "new"
	Unchanged   Kind = "unchanged"
	TimeChanged Kind = "time_changed"
	Missing     Kind = "missing"
)

type Direction string

const (
	Earlier Direction = "earlier"
	Later   Direction = "later"
)

// Change is the classification of one game between a feed snapshot and the
// ledger. Old and New are only set for TimeChanged.
type Change struct {
	Kind      Kind
	Game      model.Game
	Old       time.Time
	New       time.Time
	Direction Direction
}

// Classify compares freshly fetched games with the stored games of the same
// team. Stored games that already started, or were already flagged missing,
// are never reported as Missing.
func Classify(candidates, stored []model.Game, now time.Time, threshold time.Duration) []Change {
	byUID := make(map[string]model.Game, len(stored))
	for _, g := range stored {
		byUID[g.UID] = g
	}

	seen := make(map[string]bool, len(candidates))
	changes := make([]Change, 0, len(candidates))

	for _, c := range candidates {
		seen[c.UID] = true
		prev, ok := byUID[c.UID]
		if !ok {
			changes = append(changes, Change{Kind: New, Game: c})
			continue
		}

		delta := c.StartTime.Sub(prev.LastKnownStartTime)
		if delta.Abs() <= threshold {
			c.LastKnownStartTime = prev.LastKnownStartTime
			changes = append(changes, Change{Kind: Unchanged, Game: c})
			continue
		}

		dir := Later
		if delta < 0 {
			dir = Earlier
		}
		c.LastKnownStartTime = prev.LastKnownStartTime
		changes = append(changes, Change{
			Kind:      TimeChanged,
			Game:      c,
			Old:       prev.LastKnownStartTime,
			New:       c.StartTime,
			Direction: dir,
		})
	}

	for _, g := range stored {
		if seen[g.UID] || g.Missing || !g.StartTime.After(now) {
			continue
		}
		changes = append(changes, Change{Kind: Missing, Game: g})
	}

	return changes
}

type Detector struct {
	games     store.GameStore
	threshold time.Duration
	now       func() time.Time
}

func NewDetector(games store.GameStore, threshold time.Duration) *Detector {
	return &Detector{games: games, threshold: threshold, now: time.Now}
}

// Detect classifies a team's snapshot against the ledger and applies it.
func (d *Detector) Detect(ctx context.Context, team string, candidates []model.Game) ([]Change, error) {
	stored, err := d.games.ListGamesByTeam(ctx, team)
	if err != nil {
		return nil, fmt.Errorf("error loading stored games for %s: %w", team, err)
	}
	return d.Apply(ctx, Classify(candidates, stored, d.now(), d.threshold))
}

// Apply persists classified changes and returns the ones this call actually
// applied. Changes lost to a concurrent writer are dropped, so a moved game
// is announced by exactly one caller.
func (d *Detector) Apply(ctx context.Context, changes []Change) ([]Change, error) {
	applied := make([]Change, 0, len(changes))

	for _, c := range changes {
		entry := log.WithFields(log.Fields{"game_uid": c.Game.UID, "team": c.Game.TeamName, "change": c.Kind})

		switch c.Kind {
		case New:
			err := d.games.InsertGame(ctx, c.Game)
			if errors.Is(err, store.ErrDuplicateGame) {
				entry.Warn("game inserted concurrently, skipping")
				continue
			}
			if err != nil {
				return applied, err
			}

		case Unchanged:
			if err := d.games.RefreshGame(ctx, c.Game); err != nil {
				return applied, err
			}

		case TimeChanged:
			won, err := d.games.UpdateGameTime(ctx, c.Game.UID, c.Old, c.New)
			if err != nil {
				return applied, err
			}
			if !won {
				entry.Info("time change already applied, skipping")
				continue
			}
			c.Game.LastKnownStartTime = c.New
			entry.WithFields(log.Fields{"old": c.Old, "new": c.New, "direction": c.Direction}).
				Info("game time changed")

		case Missing:
			if err := d.games.MarkGameMissing(ctx, c.Game.UID); err != nil {
				return applied, err
			}
			c.Game.Missing = true
			entry.Warn("game no longer present in feed")
		}

		applied = append(applied, c)
	}

	return applied, nil
}

// Filter returns the changes of the given kind.
func Filter(changes []Change, kind Kind) []Change {
	var out []Change
	for _, c := range changes {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
