package model

import "time"

type Response string

const (
	ResponseYes      Response = "yes"
	ResponseNo       Response = "no"
	ResponseIfNeeded Response = "if_needed"
)

func (r Response) Valid() bool {
	switch r {
	case ResponseYes, ResponseNo, ResponseIfNeeded:
		return true
	}
	return false
}

type RSVP struct {
	PollID    int64     `json:"poll_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Response  Response  `json:"response"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tally is always derived from the stored RSVPs of a poll.
type Tally struct {
	Yes      int `json:"yes"`
	No       int `json:"no"`
	IfNeeded int `json:"if_needed"`
}

func (t Tally) Total() int {
	return t.Yes + t.No + t.IfNeeded
}

func (t *Tally) Add(r Response, n int) {
	switch r {
	case ResponseYes:
		t.Yes += n
	case ResponseNo:
		t.No += n
	case ResponseIfNeeded:
		t.IfNeeded += n
	}
}

// ChannelAudience is the reminder key used for the channel-wide reminder
// addressed to members who have not responded.
const ChannelAudience = "@channel"
