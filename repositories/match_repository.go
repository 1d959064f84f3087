package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/field-booking-system/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchInvalidField   = errors.New("invalid field reference for match")
	ErrMatchInvalidSlot    = errors.New("invalid slot reference for match")
	ErrMatchInvalidCreator = errors.New("invalid creator reference for match")
	ErrMatchTeamFull       = errors.New("match team is full")
	ErrMatchStatusConflict = errors.New("match status changed concurrently")
)

type ListMatchesFilter struct {
	Status     *models.MatchStatus
	Type       *models.MatchType
	SkillLevel *models.SkillLevel
	Public     *bool
	FieldID    *int
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	List(ctx context.Context, filter ListMatchesFilter) ([]models.Match, error)

	TransitionStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.MatchStatus) error

	// AddPlayerToSide атомарно инкрементирует счётчик стороны; условие по
	// max_players_per_team в том же UPDATE. ErrMatchTeamFull при нуле строк.
	AddPlayerToSide(ctx context.Context, exec SQLExecutor, id int, side models.TeamSide) error
	RemovePlayerFromSide(ctx context.Context, exec SQLExecutor, id int, side models.TeamSide) error
	SetTeamCounts(ctx context.Context, exec SQLExecutor, id int, teamA, teamB int) error

	SetResult(ctx context.Context, exec SQLExecutor, id int, scoreA, scoreB int, winner models.MatchWinner, completedAt time.Time) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error

	// Выборки для планировщика и рекомендателя.
	ListOpenForRegistration(ctx context.Context, now time.Time) ([]models.Match, error)
	ListFormingPastSlotStart(ctx context.Context, now time.Time) ([]models.Match, error)
	ListFormingReadyToConfirm(ctx context.Context, notBefore time.Time) ([]models.Match, error)
	ListFormingUnbalanced(ctx context.Context, minDiff int) ([]models.Match, error)
	ListCompletedByUserSince(ctx context.Context, userID int, since time.Time) ([]models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `
	id, creator_id, field_id, slot_id, title, type, skill_level, public, status,
	max_players_per_team, min_players_to_start, current_players_team_a,
	current_players_team_b, registration_deadline, entry_fee, auto_start,
	score_team_a, score_team_b, winner_team, completed_at, created_at`

func scanMatch(rowScanner interface {
	Scan(dest ...interface{}) error
}, m *models.Match) error {
	return rowScanner.Scan(
		&m.ID, &m.CreatorID, &m.FieldID, &m.SlotID, &m.Title, &m.Type,
		&m.SkillLevel, &m.Public, &m.Status, &m.MaxPlayersPerTeam,
		&m.MinPlayersToStart, &m.CurrentPlayersTeamA, &m.CurrentPlayersTeamB,
		&m.RegistrationDeadline, &m.EntryFee, &m.AutoStart,
		&m.ScoreTeamA, &m.ScoreTeamB, &m.WinnerTeam, &m.CompletedAt, &m.CreatedAt,
	)
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches (
			creator_id, field_id, slot_id, title, type, skill_level, public,
			status, max_players_per_team, min_players_to_start,
			current_players_team_a, current_players_team_b,
			registration_deadline, entry_fee, auto_start
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		m.CreatorID, m.FieldID, m.SlotID, m.Title, m.Type, m.SkillLevel, m.Public,
		m.Status, m.MaxPlayersPerTeam, m.MinPlayersToStart,
		m.CurrentPlayersTeamA, m.CurrentPlayersTeamB,
		m.RegistrationDeadline, m.EntryFee, m.AutoStart,
	).Scan(&m.ID, &m.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			switch pqErr.Constraint {
			case "matches_field_id_fkey":
				return ErrMatchInvalidField
			case "matches_slot_id_fkey":
				return ErrMatchInvalidSlot
			case "matches_creator_id_fkey":
				return ErrMatchInvalidCreator
			}
		}
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1`

	m := &models.Match{}
	if err := scanMatch(r.db.QueryRowContext(ctx, query, id), m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) List(ctx context.Context, filter ListMatchesFilter) ([]models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	if filter.Type != nil {
		query += fmt.Sprintf(" AND type = $%d", argID)
		args = append(args, *filter.Type)
		argID++
	}
	if filter.SkillLevel != nil {
		query += fmt.Sprintf(" AND skill_level = $%d", argID)
		args = append(args, *filter.SkillLevel)
		argID++
	}
	if filter.Public != nil {
		query += fmt.Sprintf(" AND public = $%d", argID)
		args = append(args, *filter.Public)
		argID++
	}
	if filter.FieldID != nil {
		query += fmt.Sprintf(" AND field_id = $%d", argID)
		args = append(args, *filter.FieldID)
		argID++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND registration_deadline >= $%d", argID)
		args = append(args, *filter.From)
		argID++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND registration_deadline < $%d", argID)
		args = append(args, *filter.To)
		argID++
	}

	query += " ORDER BY registration_deadline ASC, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()
	return collectMatches(rows)
}

func (r *postgresMatchRepository) TransitionStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.MatchStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE matches SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to transition match %d to %s: %w", id, to, err)
	}
	return checkAffectedRows(result, ErrMatchStatusConflict)
}

func (r *postgresMatchRepository) AddPlayerToSide(ctx context.Context, exec SQLExecutor, id int, side models.TeamSide) error {
	executor := r.getExecutor(exec)
	column := sideColumn(side)
	query := fmt.Sprintf(`
		UPDATE matches SET %s = %s + 1
		WHERE id = $1 AND status = 'forming' AND %s < max_players_per_team`,
		column, column, column)

	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to add player to match %d side %s: %w", id, side, err)
	}
	return checkAffectedRows(result, ErrMatchTeamFull)
}

func (r *postgresMatchRepository) RemovePlayerFromSide(ctx context.Context, exec SQLExecutor, id int, side models.TeamSide) error {
	executor := r.getExecutor(exec)
	column := sideColumn(side)
	query := fmt.Sprintf(`UPDATE matches SET %s = GREATEST(%s - 1, 0) WHERE id = $1`, column, column)

	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to remove player from match %d side %s: %w", id, side, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) SetTeamCounts(ctx context.Context, exec SQLExecutor, id int, teamA, teamB int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE matches SET current_players_team_a = $1, current_players_team_b = $2 WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, teamA, teamB, id)
	if err != nil {
		return fmt.Errorf("failed to set team counts for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) SetResult(ctx context.Context, exec SQLExecutor, id int, scoreA, scoreB int, winner models.MatchWinner, completedAt time.Time) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches
		SET status = 'completed', score_team_a = $1, score_team_b = $2,
		    winner_team = $3, completed_at = $4
		WHERE id = $5 AND status = 'in_progress'`

	result, err := executor.ExecContext(ctx, query, scoreA, scoreB, winner, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to set result for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchStatusConflict)
}

func (r *postgresMatchRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) ListOpenForRegistration(ctx context.Context, now time.Time) ([]models.Match, error) {
	query := `SELECT` + matchColumns + `
		FROM matches
		WHERE status = 'forming' AND public = TRUE AND registration_deadline > $1
		ORDER BY registration_deadline ASC`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list open matches: %w", err)
	}
	defer rows.Close()
	return collectMatches(rows)
}

func (r *postgresMatchRepository) ListFormingPastSlotStart(ctx context.Context, now time.Time) ([]models.Match, error) {
	query := `SELECT` + matchPrefixedColumns() + `
		FROM matches m
		JOIN slots s ON s.id = m.slot_id
		WHERE m.status = 'forming' AND s.start_time <= $1`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list forming matches past slot start: %w", err)
	}
	defer rows.Close()
	return collectMatches(rows)
}

func (r *postgresMatchRepository) ListFormingReadyToConfirm(ctx context.Context, notBefore time.Time) ([]models.Match, error) {
	query := `SELECT` + matchPrefixedColumns() + `
		FROM matches m
		JOIN slots s ON s.id = m.slot_id
		WHERE m.status = 'forming'
		  AND m.current_players_team_a + m.current_players_team_b >= m.min_players_to_start
		  AND s.start_time >= $1`

	rows, err := r.db.QueryContext(ctx, query, notBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches ready to confirm: %w", err)
	}
	defer rows.Close()
	return collectMatches(rows)
}

func (r *postgresMatchRepository) ListFormingUnbalanced(ctx context.Context, minDiff int) ([]models.Match, error) {
	query := `SELECT` + matchColumns + `
		FROM matches
		WHERE status = 'forming'
		  AND ABS(current_players_team_a - current_players_team_b) >= $1`

	rows, err := r.db.QueryContext(ctx, query, minDiff)
	if err != nil {
		return nil, fmt.Errorf("failed to list unbalanced matches: %w", err)
	}
	defer rows.Close()
	return collectMatches(rows)
}

func (r *postgresMatchRepository) ListCompletedByUserSince(ctx context.Context, userID int, since time.Time) ([]models.Match, error) {
	query := `SELECT` + matchPrefixedColumns() + `
		FROM matches m
		JOIN roster_entries re ON re.match_id = m.id
		WHERE re.user_id = $1 AND m.status = 'completed' AND m.completed_at >= $2
		ORDER BY m.completed_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed matches for user %d: %w", userID, err)
	}
	defer rows.Close()
	return collectMatches(rows)
}

func sideColumn(side models.TeamSide) string {
	if side == models.TeamSideB {
		return "current_players_team_b"
	}
	return "current_players_team_a"
}

func matchPrefixedColumns() string {
	return `
	m.id, m.creator_id, m.field_id, m.slot_id, m.title, m.type, m.skill_level,
	m.public, m.status, m.max_players_per_team, m.min_players_to_start,
	m.current_players_team_a, m.current_players_team_b, m.registration_deadline,
	m.entry_fee, m.auto_start, m.score_team_a, m.score_team_b, m.winner_team,
	m.completed_at, m.created_at`
}

func collectMatches(rows *sql.Rows) ([]models.Match, error) {
	matches := make([]models.Match, 0)
	for rows.Next() {
		var m models.Match
		if err := scanMatch(rows, &m); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
