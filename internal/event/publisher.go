package event

import (
	"context"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

type ReactionPublisher interface {
	PublishReaction(ctx context.Context, ev model.ReactionEvent) error
	Close() error
}

type ActionPublisher interface {
	Send(ctx context.Context, action model.ChatAction) error
	Close() error
}
