// File: repositories/roster_repository.go
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/field-booking-system/models"
	"github.com/lib/pq"
)

var (
	ErrRosterEntryNotFound = errors.New("roster entry not found")
	ErrRosterEntryConflict = errors.New("user already on roster")
	ErrRosterInvalidParent = errors.New("invalid roster parent reference")
	ErrRosterInvalidUser   = errors.New("invalid roster user reference")
)

type RosterRepository interface {
	Create(ctx context.Context, exec SQLExecutor, entry *models.RosterEntry) error
	FindByReservationAndUser(ctx context.Context, reservationID, userID int) (*models.RosterEntry, error)
	FindByMatchAndUser(ctx context.Context, matchID, userID int) (*models.RosterEntry, error)
	ListByReservation(ctx context.Context, reservationID int) ([]*models.RosterEntry, error)
	ListByMatch(ctx context.Context, matchID int) ([]*models.RosterEntry, error)
	ListMatchIDsByUser(ctx context.Context, userID int) ([]int, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	UpdateTeamSide(ctx context.Context, exec SQLExecutor, id int, side models.TeamSide) error
	CountByReservation(ctx context.Context, reservationID int) (int, error)
}

type postgresRosterRepository struct {
	db *sql.DB
}

func NewPostgresRosterRepository(db *sql.DB) RosterRepository {
	return &postgresRosterRepository{db: db}
}

func (r *postgresRosterRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const rosterColumns = `
	id, reservation_id, match_id, user_id, display_name, position, team_side,
	is_captain, status, joined_at`

func scanRosterEntry(rowScanner interface {
	Scan(dest ...interface{}) error
}, e *models.RosterEntry) error {
	return rowScanner.Scan(
		&e.ID, &e.ReservationID, &e.MatchID, &e.UserID, &e.DisplayName,
		&e.Position, &e.TeamSide, &e.IsCaptain, &e.Status, &e.JoinedAt,
	)
}

func (r *postgresRosterRepository) Create(ctx context.Context, exec SQLExecutor, e *models.RosterEntry) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO roster_entries (
			reservation_id, match_id, user_id, display_name, position,
			team_side, is_captain, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, joined_at`

	err := executor.QueryRowContext(ctx, query,
		e.ReservationID, e.MatchID, e.UserID, e.DisplayName, e.Position,
		e.TeamSide, e.IsCaptain, e.Status,
	).Scan(&e.ID, &e.JoinedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation: (reservation_id, user_id) / (match_id, user_id)
				return ErrRosterEntryConflict
			case "23503": // foreign_key_violation
				if pqErr.Constraint == "roster_entries_user_id_fkey" {
					return ErrRosterInvalidUser
				}
				return ErrRosterInvalidParent
			}
		}
		return fmt.Errorf("failed to create roster entry: %w", err)
	}
	return nil
}

func (r *postgresRosterRepository) FindByReservationAndUser(ctx context.Context, reservationID, userID int) (*models.RosterEntry, error) {
	query := `SELECT` + rosterColumns + ` FROM roster_entries WHERE reservation_id = $1 AND user_id = $2`
	return r.findOne(ctx, query, reservationID, userID)
}

func (r *postgresRosterRepository) FindByMatchAndUser(ctx context.Context, matchID, userID int) (*models.RosterEntry, error) {
	query := `SELECT` + rosterColumns + ` FROM roster_entries WHERE match_id = $1 AND user_id = $2`
	return r.findOne(ctx, query, matchID, userID)
}

func (r *postgresRosterRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.RosterEntry, error) {
	e := &models.RosterEntry{}
	err := scanRosterEntry(r.db.QueryRowContext(ctx, query, args...), e)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRosterEntryNotFound
		}
		return nil, fmt.Errorf("failed to find roster entry: %w", err)
	}
	return e, nil
}

func (r *postgresRosterRepository) ListByReservation(ctx context.Context, reservationID int) ([]*models.RosterEntry, error) {
	query := `SELECT` + rosterColumns + `
		FROM roster_entries WHERE reservation_id = $1 ORDER BY joined_at ASC`
	return r.list(ctx, query, reservationID)
}

func (r *postgresRosterRepository) ListByMatch(ctx context.Context, matchID int) ([]*models.RosterEntry, error) {
	query := `SELECT` + rosterColumns + `
		FROM roster_entries WHERE match_id = $1 ORDER BY joined_at ASC`
	return r.list(ctx, query, matchID)
}

func (r *postgresRosterRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list roster entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.RosterEntry, 0)
	for rows.Next() {
		e := &models.RosterEntry{}
		if scanErr := scanRosterEntry(rows, e); scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *postgresRosterRepository) ListMatchIDsByUser(ctx context.Context, userID int) ([]int, error) {
	query := `SELECT match_id FROM roster_entries WHERE user_id = $1 AND match_id IS NOT NULL`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list match ids for user %d: %w", userID, err)
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, scanErr
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postgresRosterRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM roster_entries WHERE id = $1`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete roster entry %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRosterEntryNotFound)
}

func (r *postgresRosterRepository) UpdateTeamSide(ctx context.Context, exec SQLExecutor, id int, side models.TeamSide) error {
	executor := r.getExecutor(exec)
	query := `UPDATE roster_entries SET team_side = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, side, id)
	if err != nil {
		return fmt.Errorf("failed to update team side for roster entry %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRosterEntryNotFound)
}

func (r *postgresRosterRepository) CountByReservation(ctx context.Context, reservationID int) (int, error) {
	query := `SELECT COUNT(*) FROM roster_entries WHERE reservation_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, reservationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count roster entries: %w", err)
	}
	return count, nil
}
