package model

import "time"

type ReactionAction string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

// ReactionEvent is a reaction added to or removed from a poll message, as
// relayed by the chat transport bridge.
type ReactionEvent struct {
	MessageRef string         `json:"message_ref"`
	UserID     string         `json:"user_id"`
	Username   string         `json:"username"`
	Emoji      string         `json:"emoji"`
	Action     ReactionAction `json:"action"`
	Timestamp  time.Time      `json:"timestamp"`
}

const (
	EmojiYes      = "✅"
	EmojiNo       = "❌"
	EmojiIfNeeded = "🤷"
)

var emojiResponses = map[string]Response{
	EmojiYes:      ResponseYes,
	EmojiNo:       ResponseNo,
	EmojiIfNeeded: ResponseIfNeeded,
}

// ResponseForEmoji maps a reaction emoji to an RSVP response. Unrecognized
// emoji report false.
func ResponseForEmoji(emoji string) (Response, bool) {
	r, ok := emojiResponses[emoji]
	return r, ok
}

// EmojiForResponse is the reaction that records r.
func EmojiForResponse(r Response) string {
	for e, resp := range emojiResponses {
		if resp == r {
			return e
		}
	}
	return ""
}
