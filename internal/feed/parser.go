package feed

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

type parser struct {
	loc   *time.Location
	team  string
	from  time.Time
	until time.Time
	stats parseStats
}

func (p *parser) parse(body string) ([]model.Game, error) {
	decoder := ical.NewDecoder(strings.NewReader(body))
	games := []model.Game{}
	seen := make(map[string]bool)

	for {
		cal, err := decoder.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decoding calendar: %w", ErrFeedMalformed, err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			p.stats.events++

			for _, g := range p.gamesFromEvent(comp) {
				if seen[g.UID] {
					p.stats.duplicates++
					continue
				}
				seen[g.UID] = true
				games = append(games, g)
			}
		}
	}

	return games, nil
}

func (p *parser) gamesFromEvent(comp *ical.Component) []model.Game {
	normalizeComponentTimezones(comp)

	uid := propValue(comp, ical.PropUID)
	summary := propValue(comp, ical.PropSummary)

	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if uid == "" || startProp == nil {
		p.stats.skipped++
		log.WithFields(log.Fields{"team": p.team, "uid": uid, "summary": summary}).
			Warn("skipping feed entry without uid or start time")
		return nil
	}

	dtstart, err := p.parseDateTime(startProp)
	if err != nil {
		p.stats.skipped++
		log.WithError(err).WithFields(log.Fields{"team": p.team, "uid": uid}).
			Warn("skipping feed entry with unparseable start time")
		return nil
	}

	if isCancelled(propValue(comp, ical.PropStatus), summary) {
		p.stats.cancelled++
		return nil
	}

	location := propValue(comp, ical.PropLocation)
	if location == "" {
		location = "TBD"
	}

	start := dtstart.In(p.loc)
	base := model.Game{
		UID:                uid,
		TeamName:           p.team,
		StartTime:          start,
		LastKnownStartTime: start,
		Summary:            summary,
		Location:           location,
		Opponent:           extractOpponent(summary, p.team),
		IsHome:             isHomeGame(summary, p.team),
	}

	if rruleProp := comp.Props.Get(ical.PropRecurrenceRule); rruleProp != nil {
		instances, err := expandRecurrence(base, dtstart, rruleProp.Value, p.exceptionDates(comp), p.from, p.until)
		if err != nil {
			p.stats.skipped++
			log.WithError(err).WithFields(log.Fields{"team": p.team, "uid": uid}).
				Warn("skipping feed entry with unsupported recurrence")
			return nil
		}
		return instances
	}

	if !start.After(p.from) {
		p.stats.past++
		return nil
	}
	return []model.Game{base}
}

// parseDateTime reads a DTSTART-like property and keeps the zone it was
// written in: UTC for "Z" values, the TZID otherwise. Floating times and
// DATE values are placed in the configured location.
func (p *parser) parseDateTime(prop *ical.Prop) (time.Time, error) {
	if t, err := prop.DateTime(p.loc); err == nil {
		return t, nil
	}

	if t, err := time.Parse("20060102T150405Z", prop.Value); err == nil {
		return t, nil
	}
	formats := []string{
		"20060102T150405",
		"20060102",
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, prop.Value, p.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime value %q", prop.Value)
}

func (p *parser) exceptionDates(comp *ical.Component) map[int64]bool {
	out := make(map[int64]bool)
	for _, ex := range comp.Props.Values(ical.PropExceptionDates) {
		for _, v := range strings.Split(ex.Value, ",") {
			single := ical.NewProp(ical.PropExceptionDates)
			single.Value = v
			single.Params = ex.Params
			if t, err := p.parseDateTime(single); err == nil {
				out[t.Unix()] = true
			}
		}
	}
	return out
}

func propValue(comp *ical.Component, name string) string {
	if prop := comp.Props.Get(name); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func isCancelled(status, summary string) bool {
	if strings.EqualFold(status, "CANCELLED") {
		return true
	}
	clean := nonAlnum.ReplaceAllString(strings.ToLower(summary), "")
	return strings.HasPrefix(clean, "canceled") || strings.HasPrefix(clean, "cancelled")
}
