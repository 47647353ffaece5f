package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

// RecordResponse stores the user's latest response and returns the tally
// after the write. Closed and cancelled polls reject the change.
func (l *Ledger) RecordResponse(ctx context.Context, pollID int64, userID, username string, r model.Response) (model.Tally, error) {
	if !r.Valid() {
		return model.Tally{}, fmt.Errorf("invalid response %q", r)
	}

	var tally model.Tally
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireOpen(ctx, tx, pollID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO rsvps (poll_id, user_id, username, response, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(poll_id, user_id) DO UPDATE SET
				username = excluded.username,
				response = excluded.response,
				updated_at = excluded.updated_at`,
			pollID, userID, username, r, utc(l.now()))
		if err != nil {
			return fmt.Errorf("error upserting response for poll %d: %w", pollID, err)
		}

		tally, err = tallyTx(ctx, tx, pollID)
		return err
	})
	return tally, err
}

// RemoveResponse deletes the user's response if there is one.
func (l *Ledger) RemoveResponse(ctx context.Context, pollID int64, userID string) (model.Tally, error) {
	var tally model.Tally
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireOpen(ctx, tx, pollID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM rsvps WHERE poll_id = ? AND user_id = ?`, pollID, userID); err != nil {
			return fmt.Errorf("error removing response for poll %d: %w", pollID, err)
		}

		var err error
		tally, err = tallyTx(ctx, tx, pollID)
		return err
	})
	return tally, err
}

func (l *Ledger) Tally(ctx context.Context, pollID int64) (model.Tally, error) {
	var tally model.Tally
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := pollStatus(ctx, tx, pollID); err != nil {
			return err
		}
		var err error
		tally, err = tallyTx(ctx, tx, pollID)
		return err
	})
	return tally, err
}

func (l *Ledger) GetResponse(ctx context.Context, pollID int64, userID string) (*model.RSVP, error) {
	var r model.RSVP
	err := l.db.QueryRowContext(ctx, `
		SELECT poll_id, user_id, username, response, updated_at
		FROM rsvps WHERE poll_id = ? AND user_id = ?`, pollID, userID).
		Scan(&r.PollID, &r.UserID, &r.Username, &r.Response, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: poll %d user %s", ErrResponseNotFound, pollID, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting response: %w", err)
	}
	return &r, nil
}

func (l *Ledger) ListResponses(ctx context.Context, pollID int64) ([]model.RSVP, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT poll_id, user_id, username, response, updated_at
		FROM rsvps WHERE poll_id = ?
		ORDER BY updated_at, user_id`, pollID)
	if err != nil {
		return nil, fmt.Errorf("error querying responses: %w", err)
	}
	defer rows.Close()

	var out []model.RSVP
	for rows.Next() {
		var r model.RSVP
		if err := rows.Scan(&r.PollID, &r.UserID, &r.Username, &r.Response, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning response: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating responses: %w", err)
	}
	return out, nil
}

func requireOpen(ctx context.Context, tx *sql.Tx, pollID int64) error {
	status, err := pollStatus(ctx, tx, pollID)
	if err != nil {
		return err
	}
	if status != model.PollOpen {
		return fmt.Errorf("%w: %d is %s", ErrPollClosed, pollID, status)
	}
	return nil
}

func tallyTx(ctx context.Context, tx *sql.Tx, pollID int64) (model.Tally, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT response, COUNT(*) FROM rsvps WHERE poll_id = ? GROUP BY response`, pollID)
	if err != nil {
		return model.Tally{}, fmt.Errorf("error counting responses: %w", err)
	}
	defer rows.Close()

	var tally model.Tally
	for rows.Next() {
		var (
			r model.Response
			n int
		)
		if err := rows.Scan(&r, &n); err != nil {
			return model.Tally{}, fmt.Errorf("error scanning tally: %w", err)
		}
		tally.Add(r, n)
	}
	if err := rows.Err(); err != nil {
		return model.Tally{}, fmt.Errorf("error iterating tally: %w", err)
	}
	return tally, nil
}
