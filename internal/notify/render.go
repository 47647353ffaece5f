package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

// Chat platforms cap embed field values at 1024 characters.
const maxFieldLen = 1024

func mention(userID string) string {
	if userID == model.ChannelAudience {
		return "@here"
	}
	return "<@" + userID + ">"
}

func (n *Notifier) pollMessage(pg model.PollWithGame, rsvps []model.RSVP) model.ChatAction {
	g := pg.Game
	start := g.StartTime.In(n.loc)

	opponent := g.Opponent
	if opponent == "" {
		opponent = "TBD"
	}
	location := g.Location
	if location == "" {
		location = "TBD"
	}

	body := fmt.Sprintf("**%s**\n\nOpponent: %s\nLocation: %s", start.Format("Monday, January 02 at 03:04 PM"), opponent, location)
	if g.IsHome != nil {
		if *g.IsHome {
			body += "\nHome game"
		} else {
			body += "\nAway game"
		}
	}
	if notice := n.notice(pg.Poll.ID); notice != "" {
		body += "\n\n" + notice
	}

	footer := "React with ✅, ❌, or 🤷 to RSVP"
	switch pg.Poll.Status {
	case model.PollClosed:
		footer = "RSVPs closed"
	case model.PollCancelled:
		footer = "Game cancelled"
	}

	return model.ChatAction{
		MessageRef: pg.Poll.MessageRef,
		Title:      fmt.Sprintf("🏒 %s - Game RSVP", g.TeamName),
		Body:       body,
		Fields:     responseFields(rsvps),
		Footer:     footer,
		Timestamp:  &start,
	}
}

func responseFields(rsvps []model.RSVP) []model.ChatField {
	groups := map[model.Response][]string{}
	for _, r := range rsvps {
		groups[r.Response] = append(groups[r.Response], mention(r.UserID))
	}

	field := func(label string, r model.Response) model.ChatField {
		users := groups[r]
		value := "None"
		if len(users) > 0 {
			value = strings.Join(users, "\n")
		}
		if len(value) > maxFieldLen {
			value = fmt.Sprintf("%d players", len(users))
		}
		return model.ChatField{
			Name:   fmt.Sprintf("%s %s (%d)", model.EmojiForResponse(r), label, len(users)),
			Value:  value,
			Inline: true,
		}
	}

	return []model.ChatField{
		field("Yes", model.ResponseYes),
		field("No", model.ResponseNo),
		field("If needed", model.ResponseIfNeeded),
	}
}

func reminderText(heading string, hours int, tally model.Tally, userIDs []string, channel bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ **%s**: Game in approximately %d hours!\n\n", heading, hours)
	fmt.Fprintf(&b, "Current RSVPs: ✅ %d | ❌ %d | 🤷 %d\n\n", tally.Yes, tally.No, tally.IfNeeded)

	if len(userIDs) > 0 {
		mentions := make([]string, 0, len(userIDs))
		for _, id := range userIDs {
			mentions = append(mentions, mention(id))
		}
		fmt.Fprintf(&b, "You said if needed, can you confirm? %s\n", strings.Join(mentions, " "))
	}
	if channel {
		if tally.Total() == 0 {
			b.WriteString(mention(model.ChannelAudience) + " No responses yet! Please react to the poll above!")
		} else {
			b.WriteString(mention(model.ChannelAudience) + " If you haven't responded yet, please react to the poll above!")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func timeChangeNotice(from, to time.Time, later bool) string {
	dir := "earlier"
	if later {
		dir = "later"
	}
	return fmt.Sprintf("⚠️ **TIME CHANGE**: Game moved from %s to %s (%s)", from.Format("03:04 PM"), to.Format("03:04 PM"), dir)
}

func timeChangeReply(team string, from, to time.Time, users []string) string {
	mentions := make([]string, 0, len(users))
	for _, id := range users {
		mentions = append(mentions, mention(id))
	}

	var b strings.Builder
	b.WriteString("🔔 **Game time has changed!**\n\n")
	fmt.Fprintf(&b, "**%s** game on %s\n", team, to.Format("January 02"))
	fmt.Fprintf(&b, "**Old time**: %s\n", from.Format("03:04 PM"))
	fmt.Fprintf(&b, "**New time**: %s\n\n", to.Format("03:04 PM"))
	fmt.Fprintf(&b, "Please check if you can still make it: %s", strings.Join(mentions, " "))
	return b.String()
}

func cancellationReply(g model.Game, loc *time.Location, users []string) string {
	msg := fmt.Sprintf("❌ **Game removed from the schedule**: %s game on %s is no longer in the calendar.",
		g.TeamName, g.StartTime.In(loc).Format("Monday, January 02 at 03:04 PM"))
	if len(users) == 0 {
		return msg
	}
	mentions := make([]string, 0, len(users))
	for _, id := range users {
		mentions = append(mentions, mention(id))
	}
	return msg + "\n\n" + strings.Join(mentions, " ")
}
