package feed

import "strings"

// Summaries follow the "AWAY @ HOME" convention used by league calendars.
func splitMatchup(summary string) (away, home string, ok bool) {
	parts := strings.Split(summary, " @ ")
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

// extractOpponent returns the other side of the matchup, or the whole summary
// when the team cannot be located in it.
func extractOpponent(summary, team string) string {
	away, home, ok := splitMatchup(summary)
	if !ok || team == "" {
		return summary
	}
	t := strings.ToLower(team)
	switch {
	case strings.Contains(strings.ToLower(home), t):
		return away
	case strings.Contains(strings.ToLower(away), t):
		return home
	}
	return summary
}

func isHomeGame(summary, team string) *bool {
	_, home, ok := splitMatchup(summary)
	if !ok || team == "" {
		return nil
	}
	isHome := strings.Contains(strings.ToLower(home), strings.ToLower(team))
	return &isHome
}
