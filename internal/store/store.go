package store

import (
	"context"
	"errors"
	"time"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

var (
	ErrPollNotFound = errors.New("poll not found")
	ErrPollClosed   = errors.New("poll closed")
	ErrGameNotFound = errors.New("game not found")
	// ErrDuplicateGame is returned when an insert loses the race to another
	// writer. Callers treat it as a no-op.
	ErrDuplicateGame    = errors.New("game already stored")
	ErrResponseNotFound = errors.New("response not found")
)

// PollStore is the subset of the ledger used by the reaction path.
type PollStore interface {
	GetPollByMessageRef(ctx context.Context, ref string) (*model.PollWithGame, error)
	GetPoll(ctx context.Context, pollID int64) (*model.Poll, error)
	GetGame(ctx context.Context, uid string) (*model.Game, error)
	GetResponse(ctx context.Context, pollID int64, userID string) (*model.RSVP, error)
	RecordResponse(ctx context.Context, pollID int64, userID, username string, r model.Response) (model.Tally, error)
	RemoveResponse(ctx context.Context, pollID int64, userID string) (model.Tally, error)
	ListResponses(ctx context.Context, pollID int64) ([]model.RSVP, error)
	ClosePoll(ctx context.Context, pollID int64) error
}

// GameStore is the subset of the ledger used by change detection.
type GameStore interface {
	ListGamesByTeam(ctx context.Context, team string) ([]model.Game, error)
	InsertGame(ctx context.Context, g model.Game) error
	RefreshGame(ctx context.Context, g model.Game) error
	UpdateGameTime(ctx context.Context, uid string, expected, next time.Time) (bool, error)
	MarkGameMissing(ctx context.Context, uid string) error
}

// Lease is a named, expiring mutual exclusion shared between replicas.
type Lease interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, name, token string) error
}
