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
	ErrReservationNotFound       = errors.New("reservation not found")
	ErrReservationCodeConflict   = errors.New("reservation reference code conflict")
	ErrReservationInvalidUser    = errors.New("invalid user reference")
	ErrReservationInvalidSlot    = errors.New("invalid slot reference")
	ErrReservationStatusConflict = errors.New("reservation status changed concurrently")
)

type ListReservationsFilter struct {
	UserID *int
	SlotID *int
	Status *models.ReservationStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type ReservationRepository interface {
	Create(ctx context.Context, exec SQLExecutor, reservation *models.Reservation) error
	GetByID(ctx context.Context, id int) (*models.Reservation, error)
	GetByReferenceCode(ctx context.Context, code string) (*models.Reservation, error)
	List(ctx context.Context, filter ListReservationsFilter) ([]models.Reservation, error)

	// TransitionStatus переводит бронь из from в to одним условным UPDATE.
	// Ноль затронутых строк означает либо отсутствие брони, либо конкурентную
	// смену статуса; различение — за вызывающим.
	TransitionStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.ReservationStatus) error

	SetConfirmed(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
	SetPaidAmount(ctx context.Context, exec SQLExecutor, id int, amount float64) error
	SetCancelled(ctx context.Context, exec SQLExecutor, id int, status models.ReservationStatus, reason string, at time.Time) error

	HasActiveForUserAndSlot(ctx context.Context, userID, slotID int) (bool, error)

	// CountCreatedSince — запасной счётчик суточного лимита на случай
	// недоступности Redis.
	CountCreatedSince(ctx context.Context, userID int, since time.Time) (int, error)

	ListStalePending(ctx context.Context, deadline time.Time) ([]models.Reservation, error)
	ListPendingExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Reservation, error)
}

type postgresReservationRepository struct {
	db *sql.DB
}

func NewPostgresReservationRepository(db *sql.DB) ReservationRepository {
	return &postgresReservationRepository{db: db}
}

func (r *postgresReservationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const reservationColumns = `
	id, user_id, slot_id, type, status, number_of_players, total_amount,
	paid_amount, reference_code, confirmation_deadline, confirmed_at,
	cancelled_at, cancellation_reason, created_at`

// Статусы, в которых бронь удерживает места слота.
const activeReservationStatuses = `('pending', 'awaiting_payment', 'confirmed')`

func scanReservation(rowScanner interface {
	Scan(dest ...interface{}) error
}, b *models.Reservation) error {
	return rowScanner.Scan(
		&b.ID, &b.UserID, &b.SlotID, &b.Type, &b.Status, &b.NumberOfPlayers,
		&b.TotalAmount, &b.PaidAmount, &b.ReferenceCode, &b.ConfirmationDeadline,
		&b.ConfirmedAt, &b.CancelledAt, &b.CancellationReason, &b.CreatedAt,
	)
}

func (r *postgresReservationRepository) Create(ctx context.Context, exec SQLExecutor, b *models.Reservation) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO reservations (
			user_id, slot_id, type, status, number_of_players, total_amount,
			paid_amount, reference_code, confirmation_deadline
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		b.UserID, b.SlotID, b.Type, b.Status, b.NumberOfPlayers, b.TotalAmount,
		b.PaidAmount, b.ReferenceCode, b.ConfirmationDeadline,
	).Scan(&b.ID, &b.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				return ErrReservationCodeConflict
			case "23503": // foreign_key_violation
				switch pqErr.Constraint {
				case "reservations_user_id_fkey":
					return ErrReservationInvalidUser
				case "reservations_slot_id_fkey":
					return ErrReservationInvalidSlot
				}
			}
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (r *postgresReservationRepository) GetByID(ctx context.Context, id int) (*models.Reservation, error) {
	query := `SELECT` + reservationColumns + ` FROM reservations WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *postgresReservationRepository) GetByReferenceCode(ctx context.Context, code string) (*models.Reservation, error) {
	query := `SELECT` + reservationColumns + ` FROM reservations WHERE reference_code = $1`
	return r.findOne(ctx, query, code)
}

func (r *postgresReservationRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Reservation, error) {
	b := &models.Reservation{}
	err := scanReservation(r.db.QueryRowContext(ctx, query, args...), b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	return b, nil
}

func (r *postgresReservationRepository) List(ctx context.Context, filter ListReservationsFilter) ([]models.Reservation, error) {
	query := `SELECT` + reservationColumns + ` FROM reservations WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argID)
		args = append(args, *filter.UserID)
		argID++
	}
	if filter.SlotID != nil {
		query += fmt.Sprintf(" AND slot_id = $%d", argID)
		args = append(args, *filter.SlotID)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argID)
		args = append(args, *filter.From)
		argID++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argID)
		args = append(args, *filter.To)
		argID++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

func (r *postgresReservationRepository) TransitionStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.ReservationStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE reservations SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to transition reservation %d to %s: %w", id, to, err)
	}
	return checkAffectedRows(result, ErrReservationStatusConflict)
}

func (r *postgresReservationRepository) SetConfirmed(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	executor := r.getExecutor(exec)
	query := `UPDATE reservations SET confirmed_at = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to set reservation %d confirmed_at: %w", id, err)
	}
	return checkAffectedRows(result, ErrReservationNotFound)
}

func (r *postgresReservationRepository) SetPaidAmount(ctx context.Context, exec SQLExecutor, id int, amount float64) error {
	executor := r.getExecutor(exec)
	query := `UPDATE reservations SET paid_amount = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("failed to set reservation %d paid amount: %w", id, err)
	}
	return checkAffectedRows(result, ErrReservationNotFound)
}

func (r *postgresReservationRepository) SetCancelled(ctx context.Context, exec SQLExecutor, id int, status models.ReservationStatus, reason string, at time.Time) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE reservations
		SET status = $1, cancellation_reason = $2, cancelled_at = $3
		WHERE id = $4 AND status IN ` + activeReservationStatuses
	result, err := executor.ExecContext(ctx, query, status, reason, at, id)
	if err != nil {
		return fmt.Errorf("failed to cancel reservation %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrReservationStatusConflict)
}

func (r *postgresReservationRepository) HasActiveForUserAndSlot(ctx context.Context, userID, slotID int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE user_id = $1 AND slot_id = $2
			  AND status IN ` + activeReservationStatuses + `
		)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, slotID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check active reservation: %w", err)
	}
	return exists, nil
}

func (r *postgresReservationRepository) CountCreatedSince(ctx context.Context, userID int, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM reservations WHERE user_id = $1 AND created_at >= $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reservations: %w", err)
	}
	return count, nil
}

func (r *postgresReservationRepository) ListStalePending(ctx context.Context, deadline time.Time) ([]models.Reservation, error) {
	query := `SELECT` + reservationColumns + `
		FROM reservations
		WHERE status = 'pending' AND confirmation_deadline < $1
		ORDER BY confirmation_deadline ASC`

	rows, err := r.db.QueryContext(ctx, query, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending reservations: %w", err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

func (r *postgresReservationRepository) ListPendingExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Reservation, error) {
	query := `SELECT` + reservationColumns + `
		FROM reservations
		WHERE status = 'pending'
		  AND confirmation_deadline >= $1 AND confirmation_deadline < $2
		ORDER BY confirmation_deadline ASC`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring reservations: %w", err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

func collectReservations(rows *sql.Rows) ([]models.Reservation, error) {
	reservations := make([]models.Reservation, 0)
	for rows.Next() {
		var b models.Reservation
		if err := scanReservation(rows, &b); err != nil {
			return nil, err
		}
		reservations = append(reservations, b)
	}
	return reservations, rows.Err()
}
