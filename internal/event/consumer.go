package event

import (
	"context"
	"errors"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

// ErrMalformedEvent marks a message that could not be decoded. The message
// is consumed and the caller moves on.
var ErrMalformedEvent = errors.New("malformed reaction event")

type ReactionConsumer interface {
	ReadReaction(ctx context.Context) (model.ReactionEvent, error)
	Close() error
}
