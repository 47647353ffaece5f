package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

const pollColumns = `p.poll_id, p.game_uid, p.message_ref, p.created_at, p.status`

func scanPoll(row rowScanner) (model.Poll, error) {
	var p model.Poll
	err := row.Scan(&p.ID, &p.GameUID, &p.MessageRef, &p.CreatedAt, &p.Status)
	return p, err
}

// OpenPoll returns the poll for gameUID, creating it with a fresh message
// ref when none exists. created is true only for the call that inserted the
// row, so concurrent callers announce the poll exactly once.
func (l *Ledger) OpenPoll(ctx context.Context, gameUID string) (*model.Poll, bool, error) {
	var (
		poll    model.Poll
		created bool
	)
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM games WHERE game_uid = ?`, gameUID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrGameNotFound, gameUID)
		}
		if err != nil {
			return fmt.Errorf("error checking game %s: %w", gameUID, err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO polls (game_uid, message_ref, created_at, status)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(game_uid) DO NOTHING`,
			gameUID, uuid.NewString(), utc(l.now()), model.PollOpen)
		if err != nil {
			return fmt.Errorf("error inserting poll for %s: %w", gameUID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error reading insert result: %w", err)
		}
		created = n == 1

		row := tx.QueryRowContext(ctx, `SELECT `+pollColumns+` FROM polls p WHERE p.game_uid = ?`, gameUID)
		if poll, err = scanPoll(row); err != nil {
			return fmt.Errorf("error reading poll for %s: %w", gameUID, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &poll, created, nil
}

func (l *Ledger) GetPoll(ctx context.Context, pollID int64) (*model.Poll, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+pollColumns+` FROM polls p WHERE p.poll_id = ?`, pollID)
	p, err := scanPoll(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrPollNotFound, pollID)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting poll %d: %w", pollID, err)
	}
	return &p, nil
}

func (l *Ledger) GetPollByGame(ctx context.Context, gameUID string) (*model.Poll, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+pollColumns+` FROM polls p WHERE p.game_uid = ?`, gameUID)
	p, err := scanPoll(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: game %s", ErrPollNotFound, gameUID)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting poll for game %s: %w", gameUID, err)
	}
	return &p, nil
}

func scanPollWithGame(row rowScanner) (model.PollWithGame, error) {
	var pg model.PollWithGame
	g, err := scanGame(row, &pg.Poll.ID, &pg.Poll.GameUID, &pg.Poll.MessageRef, &pg.Poll.CreatedAt, &pg.Poll.Status)
	if err != nil {
		return model.PollWithGame{}, err
	}
	pg.Game = g
	return pg, nil
}

func (l *Ledger) GetPollByMessageRef(ctx context.Context, ref string) (*model.PollWithGame, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+gameColumns+`, `+pollColumns+`
		FROM polls p JOIN games g ON g.game_uid = p.game_uid
		WHERE p.message_ref = ?`, ref)
	pg, err := scanPollWithGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %s", ErrPollNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting poll for message %s: %w", ref, err)
	}
	return &pg, nil
}

func (l *Ledger) ListOpenPolls(ctx context.Context) ([]model.PollWithGame, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT `+gameColumns+`, `+pollColumns+`
		FROM polls p JOIN games g ON g.game_uid = p.game_uid
		WHERE p.status = ?
		ORDER BY g.start_time`, model.PollOpen)
	if err != nil {
		return nil, fmt.Errorf("error querying open polls: %w", err)
	}
	defer rows.Close()

	var polls []model.PollWithGame
	for rows.Next() {
		pg, err := scanPollWithGame(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning poll: %w", err)
		}
		polls = append(polls, pg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating polls: %w", err)
	}
	return polls, nil
}

// ClosePoll moves an open poll to closed. Closing an already closed or
// cancelled poll is a no-op.
func (l *Ledger) ClosePoll(ctx context.Context, pollID int64) error {
	return l.finishPoll(ctx, pollID, model.PollClosed)
}

// CancelPoll is used when a game disappears from its feed.
func (l *Ledger) CancelPoll(ctx context.Context, pollID int64) error {
	return l.finishPoll(ctx, pollID, model.PollCancelled)
}

func (l *Ledger) finishPoll(ctx context.Context, pollID int64, status model.PollStatus) error {
	return l.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := pollStatus(ctx, tx, pollID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE polls SET status = ? WHERE poll_id = ? AND status = ?`,
			status, pollID, model.PollOpen)
		if err != nil {
			return fmt.Errorf("error setting poll %d to %s: %w", pollID, status, err)
		}
		return nil
	})
}

func pollStatus(ctx context.Context, tx *sql.Tx, pollID int64) (model.PollStatus, error) {
	var status model.PollStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM polls WHERE poll_id = ?`, pollID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %d", ErrPollNotFound, pollID)
	}
	if err != nil {
		return "", fmt.Errorf("error reading poll %d: %w", pollID, err)
	}
	return status, nil
}
