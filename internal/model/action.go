package model

import "time"

type ChatActionKind string

const (
	ActionCreatePoll ChatActionKind = "create_poll"
	ActionEditPoll   ChatActionKind = "edit_poll"
	ActionReply      ChatActionKind = "reply"
)

type ChatField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// ChatAction is an outbound instruction for the chat transport bridge.
// MessageRef identifies the poll message; replies carry it in ReplyTo.
type ChatAction struct {
	Kind       ChatActionKind `json:"kind"`
	ChannelID  string         `json:"channel_id"`
	MessageRef string         `json:"message_ref,omitempty"`
	ReplyTo    string         `json:"reply_to,omitempty"`
	Title      string         `json:"title,omitempty"`
	Body       string         `json:"body"`
	Fields     []ChatField    `json:"fields,omitempty"`
	Footer     string         `json:"footer,omitempty"`
	Mentions   []string       `json:"mentions,omitempty"`
	Reactions  []string       `json:"reactions,omitempty"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
}
