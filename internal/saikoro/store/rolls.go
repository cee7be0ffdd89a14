package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// RollDie is one rolled die as persisted in roll history.
type RollDie struct {
	ID     string `json:"id"`
	Sides  int    `json:"sides"`
	Result int    `json:"result"`
}

// RollResult is the confirmed outcome of a roll.
type RollResult struct {
	Total       int   `json:"total"`
	Values      []int `json:"values"`
	EffectSides int   `json:"effect_sides"`
}

// Roll is one roll session. Outcome is empty while the session is active;
// Result is only set for confirmed sessions.
type Roll struct {
	SessionID  string
	Transport  string
	Actor      string
	Notation   string
	Dice       []RollDie
	Hitches    int
	Outcome    string
	Result     *RollResult
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// CreateRoll records a started session.
func (s *Store) CreateRoll(ctx context.Context, r *Roll) error {
	diceJSON, err := json.Marshal(r.Dice)
	if err != nil {
		return fmt.Errorf("failed to marshal dice: %w", err)
	}
	started := r.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rolls (session_id, transport, actor, notation, dice_json, hitches, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.SessionID, r.Transport, r.Actor, r.Notation, string(diceJSON), r.Hitches, started.UTC())
	if err != nil {
		return fmt.Errorf("failed to create roll: %w", err)
	}
	return nil
}

// FinishRoll records how a session ended. result may be nil for sessions
// that were not confirmed. Finishing an already finished roll is an error.
func (s *Store) FinishRoll(ctx context.Context, sessionID, outcome string, result *RollResult) error {
	var total, effect sql.NullInt64
	var values sql.NullString
	if result != nil {
		b, err := json.Marshal(result.Values)
		if err != nil {
			return fmt.Errorf("failed to marshal values: %w", err)
		}
		total = sql.NullInt64{Int64: int64(result.Total), Valid: true}
		effect = sql.NullInt64{Int64: int64(result.EffectSides), Valid: true}
		values = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE rolls
		SET outcome = ?, total = ?, values_json = ?, effect_sides = ?, finished_at = ?
		WHERE session_id = ? AND outcome IS NULL
	`, outcome, total, values, effect, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to finish roll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish roll: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("roll %q: %w", sessionID, ErrNotFound)
	}
	return nil
}

const rollColumns = `session_id, transport, actor, notation, dice_json, hitches, outcome,
	total, values_json, effect_sides, started_at, finished_at`

// GetRoll returns one roll by session ID.
func (s *Store) GetRoll(ctx context.Context, sessionID string) (*Roll, error) {
	rolls, err := s.queryRolls(ctx, `SELECT `+rollColumns+` FROM rolls WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	if len(rolls) == 0 {
		return nil, fmt.Errorf("roll %q: %w", sessionID, ErrNotFound)
	}
	return rolls[0], nil
}

// ListRollsByActor returns an actor's most recent rolls, newest first.
func (s *Store) ListRollsByActor(ctx context.Context, actor string, limit int) ([]*Roll, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryRolls(ctx, `SELECT `+rollColumns+` FROM rolls WHERE actor = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`, actor, limit)
}

// CountRolls returns the number of rolls recorded with the given outcome;
// an empty outcome counts rolls that are still open.
func (s *Store) CountRolls(ctx context.Context, outcome string) (int, error) {
	var n int
	var err error
	if outcome == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rolls WHERE outcome IS NULL`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rolls WHERE outcome = ?`, outcome).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count rolls: %w", err)
	}
	return n, nil
}

func (s *Store) queryRolls(ctx context.Context, query string, args ...any) ([]*Roll, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rolls: %w", err)
	}
	defer rows.Close()

	var out []*Roll
	for rows.Next() {
		var (
			r               Roll
			diceJSON        string
			outcome, values sql.NullString
			total, effect   sql.NullInt64
		)
		if err := rows.Scan(
			&r.SessionID, &r.Transport, &r.Actor, &r.Notation, &diceJSON, &r.Hitches, &outcome,
			&total, &values, &effect, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan roll: %w", err)
		}
		if err := json.Unmarshal([]byte(diceJSON), &r.Dice); err != nil {
			return nil, fmt.Errorf("roll %q: bad dice_json: %w", r.SessionID, err)
		}
		r.Outcome = outcome.String
		if total.Valid {
			r.Result = &RollResult{Total: int(total.Int64), EffectSides: int(effect.Int64)}
			if values.Valid {
				if err := json.Unmarshal([]byte(values.String), &r.Result.Values); err != nil {
					return nil, fmt.Errorf("roll %q: bad values_json: %w", r.SessionID, err)
				}
			}
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rolls: %w", err)
	}
	return out, nil
}
