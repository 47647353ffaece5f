package model

import "time"

type PollStatus string

const (
	PollOpen      PollStatus = "open"
	PollClosed    PollStatus = "closed"
	PollCancelled PollStatus = "cancelled"
)

type Poll struct {
	ID         int64      `json:"poll_id"`
	GameUID    string     `json:"game_uid"`
	MessageRef string     `json:"message_ref"`
	CreatedAt  time.Time  `json:"created_at"`
	Status     PollStatus `json:"status"`
}

func (p *Poll) AcceptsResponses() bool {
	return p.Status == PollOpen
}

// PollWithGame is a poll joined with the game it was opened for.
type PollWithGame struct {
	Poll Poll
	Game Game
}
