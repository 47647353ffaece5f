package feed

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

// expandRecurrence produces one game per occurrence of rule inside
// (from, until]. The rule is evaluated in dtstart's own zone so wall-clock
// recurrences survive DST changes; occurrences are then moved to the
// location of base.StartTime. Instances get a UID derived from the base UID
// and the occurrence instant so each stays stable across fetches.
func expandRecurrence(base model.Game, dtstart time.Time, rule string, exdates map[int64]bool, from, until time.Time) ([]model.Game, error) {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("parsing RRULE %q: %w", rule, err)
	}
	opt.Dtstart = dtstart

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("building RRULE %q: %w", rule, err)
	}

	loc := base.StartTime.Location()
	var games []model.Game
	for _, occ := range r.Between(from, until, false) {
		if exdates[occ.Unix()] {
			continue
		}
		occ = occ.In(loc)
		instance := base
		instance.UID = base.UID + "-" + occ.UTC().Format(time.RFC3339)
		instance.StartTime = occ
		instance.LastKnownStartTime = occ
		games = append(games, instance)
	}
	return games, nil
}
