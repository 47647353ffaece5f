package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

const gameColumns = `g.game_uid, g.team_name, g.start_time, g.last_known_start_time,
	g.summary, g.location, g.opponent, g.is_home, g.missing, g.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner, extra ...any) (model.Game, error) {
	var (
		g      model.Game
		isHome sql.NullBool
	)
	dest := append([]any{
		&g.UID, &g.TeamName, &g.StartTime, &g.LastKnownStartTime,
		&g.Summary, &g.Location, &g.Opponent, &isHome, &g.Missing, &g.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Game{}, err
	}
	if isHome.Valid {
		v := isHome.Bool
		g.IsHome = &v
	}
	return g, nil
}

func nullableBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// InsertGame stores a first sighting. A game that is already present yields
// ErrDuplicateGame and leaves the row untouched.
func (l *Ledger) InsertGame(ctx context.Context, g model.Game) error {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO games (game_uid, team_name, start_time, last_known_start_time,
			summary, location, opponent, is_home, missing, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(game_uid) DO NOTHING`,
		g.UID, g.TeamName, utc(g.StartTime), utc(g.StartTime),
		g.Summary, g.Location, g.Opponent, nullableBool(g.IsHome), utc(l.now()))
	if err != nil {
		return fmt.Errorf("error inserting game %s: %w", g.UID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading insert result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateGame, g.UID)
	}
	return nil
}

func (l *Ledger) GetGame(ctx context.Context, uid string) (*model.Game, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games g WHERE g.game_uid = ?`, uid)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting game %s: %w", uid, err)
	}
	return &g, nil
}

func (l *Ledger) ListGamesByTeam(ctx context.Context, team string) ([]model.Game, error) {
	return l.queryGames(ctx, `SELECT `+gameColumns+` FROM games g
		WHERE g.team_name = ? ORDER BY g.start_time`, team)
}

// ListGamesNeedingPoll returns games starting in (from, until] that have no
// poll yet and are still present in their feed.
func (l *Ledger) ListGamesNeedingPoll(ctx context.Context, from, until time.Time) ([]model.Game, error) {
	return l.queryGames(ctx, `SELECT `+gameColumns+` FROM games g
		LEFT JOIN polls p ON p.game_uid = g.game_uid
		WHERE p.poll_id IS NULL AND g.missing = 0
			AND g.start_time > ? AND g.start_time <= ?
		ORDER BY g.start_time`, utc(from), utc(until))
}

// NextGameForTeam returns the soonest game of team starting after t.
func (l *Ledger) NextGameForTeam(ctx context.Context, team string, t time.Time) (*model.Game, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games g
		WHERE g.team_name = ? AND g.missing = 0 AND g.start_time > ?
		ORDER BY g.start_time LIMIT 1`, team, utc(t))
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no upcoming game for %s", ErrGameNotFound, team)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting next game for %s: %w", team, err)
	}
	return &g, nil
}

func (l *Ledger) queryGames(ctx context.Context, query string, args ...any) ([]model.Game, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}
	return games, nil
}

// RefreshGame copies the latest feed fields onto a stored game. The accepted
// start time is not touched, and a reappearing game loses its missing flag.
func (l *Ledger) RefreshGame(ctx context.Context, g model.Game) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE games SET start_time = ?, summary = ?, location = ?, opponent = ?,
			is_home = ?, missing = 0, updated_at = ?
		WHERE game_uid = ?`,
		utc(g.StartTime), g.Summary, g.Location, g.Opponent, nullableBool(g.IsHome), utc(l.now()), g.UID)
	if err != nil {
		return fmt.Errorf("error refreshing game %s: %w", g.UID, err)
	}
	return expectOneRow(res, fmt.Errorf("%w: %s", ErrGameNotFound, g.UID))
}

// UpdateGameTime moves both start times to next only if the accepted start
// time still equals expected. It reports whether this call won.
func (l *Ledger) UpdateGameTime(ctx context.Context, uid string, expected, next time.Time) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		UPDATE games SET start_time = ?, last_known_start_time = ?, missing = 0, updated_at = ?
		WHERE game_uid = ? AND last_known_start_time = ?`,
		utc(next), utc(next), utc(l.now()), uid, utc(expected))
	if err != nil {
		return false, fmt.Errorf("error updating time of game %s: %w", uid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading update result: %w", err)
	}
	return n == 1, nil
}

func (l *Ledger) MarkGameMissing(ctx context.Context, uid string) error {
	res, err := l.db.ExecContext(ctx, `UPDATE games SET missing = 1, updated_at = ? WHERE game_uid = ?`,
		utc(l.now()), uid)
	if err != nil {
		return fmt.Errorf("error marking game %s missing: %w", uid, err)
	}
	return expectOneRow(res, fmt.Errorf("%w: %s", ErrGameNotFound, uid))
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading update result: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
