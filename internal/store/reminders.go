package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ClaimReminders records a reminder for each user and returns the ones that
// had not been reminded before. Claiming happens before sending, which makes
// reminders at most once even if the send later fails.
func (l *Ledger) ClaimReminders(ctx context.Context, pollID int64, userIDs []string, at time.Time) ([]string, error) {
	var claimed []string
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := pollStatus(ctx, tx, pollID); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO reminders (poll_id, user_id, sent_at) VALUES (?, ?, ?)
			ON CONFLICT(poll_id, user_id) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("error preparing reminder insert: %w", err)
		}
		defer stmt.Close()

		for _, id := range userIDs {
			res, err := stmt.ExecContext(ctx, pollID, id, utc(at))
			if err != nil {
				return fmt.Errorf("error claiming reminder for %s: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("error reading claim result: %w", err)
			}
			if n == 1 {
				claimed = append(claimed, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
