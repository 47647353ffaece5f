package model

import "time"

type TeamFeed struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Game is one scheduled match sourced from a team's calendar feed.
//
// StartTime follows the latest feed value. LastKnownStartTime is the last
// time that was accepted as the game's schedule and only moves when a change
// larger than the noise threshold is detected.
type Game struct {
	UID                string    `json:"game_uid"`
	TeamName           string    `json:"team_name"`
	StartTime          time.Time `json:"start_time"`
	LastKnownStartTime time.Time `json:"last_known_start_time"`
	Summary            string    `json:"summary"`
	Location           string    `json:"location"`
	Opponent           string    `json:"opponent"`
	IsHome             *bool     `json:"is_home,omitempty"`
	Missing            bool      `json:"missing"`
	UpdatedAt          time.Time `json:"updated_at"`
}
