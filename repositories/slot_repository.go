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
	ErrSlotNotFound         = errors.New("slot not found")
	ErrSlotCapacityExceeded = errors.New("slot capacity exceeded")
	ErrSlotNotBookable      = errors.New("slot is not accepting bookings")
	ErrSlotInUse            = errors.New("slot has active bookings")
	ErrSlotInvalidField     = errors.New("invalid field reference")
)

type ListSlotsFilter struct {
	FieldID *int
	Status  *models.SlotStatus
	From    *time.Time
	To      *time.Time
	Premium *bool
	Limit   int
	Offset  int
}

type SlotRepository interface {
	Create(ctx context.Context, slot *models.Slot) error
	GetByID(ctx context.Context, id int) (*models.Slot, error)
	List(ctx context.Context, filter ListSlotsFilter) ([]models.Slot, error)

	// ReserveCapacity атомарно занимает seats мест: условный UPDATE со
	// сравнением счётчика в том же стейтменте, без check-then-act.
	ReserveCapacity(ctx context.Context, exec SQLExecutor, id int, seats int) error
	// ReleaseCapacity атомарно освобождает seats мест (счётчик не уходит ниже нуля).
	ReleaseCapacity(ctx context.Context, exec SQLExecutor, id int, seats int) error

	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.SlotStatus) error
	Delete(ctx context.Context, id int) error
	ListExpiredUnbooked(ctx context.Context, before time.Time) ([]models.Slot, error)
}

type postgresSlotRepository struct {
	db *sql.DB
}

func NewPostgresSlotRepository(db *sql.DB) SlotRepository {
	return &postgresSlotRepository{db: db}
}

func (r *postgresSlotRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const slotColumns = `
	id, field_id, start_time, end_time, price, max_capacity, current_bookings,
	status, premium, cancellation_deadline_hours, created_at`

func scanSlot(rowScanner interface {
	Scan(dest ...interface{}) error
}, s *models.Slot) error {
	return rowScanner.Scan(
		&s.ID, &s.FieldID, &s.StartTime, &s.EndTime, &s.Price, &s.MaxCapacity,
		&s.CurrentBookings, &s.Status, &s.Premium, &s.CancellationDeadlineHours,
		&s.CreatedAt,
	)
}

func (r *postgresSlotRepository) Create(ctx context.Context, s *models.Slot) error {
	executor := r.getExecutor(nil)
	query := `
		INSERT INTO slots (
			field_id, start_time, end_time, price, max_capacity,
			status, premium, cancellation_deadline_hours
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, current_bookings, created_at`

	err := executor.QueryRowContext(ctx, query,
		s.FieldID, s.StartTime, s.EndTime, s.Price, s.MaxCapacity,
		s.Status, s.Premium, s.CancellationDeadlineHours,
	).Scan(&s.ID, &s.CurrentBookings, &s.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return ErrSlotInvalidField
		}
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (r *postgresSlotRepository) GetByID(ctx context.Context, id int) (*models.Slot, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + slotColumns + ` FROM slots WHERE id = $1`

	s := &models.Slot{}
	if err := scanSlot(executor.QueryRowContext(ctx, query, id), s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to get slot %d: %w", id, err)
	}
	return s, nil
}

func (r *postgresSlotRepository) List(ctx context.Context, filter ListSlotsFilter) ([]models.Slot, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + slotColumns + ` FROM slots WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.FieldID != nil {
		query += fmt.Sprintf(" AND field_id = $%d", argID)
		args = append(args, *filter.FieldID)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND start_time >= $%d", argID)
		args = append(args, *filter.From)
		argID++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND start_time < $%d", argID)
		args = append(args, *filter.To)
		argID++
	}
	if filter.Premium != nil {
		query += fmt.Sprintf(" AND premium = $%d", argID)
		args = append(args, *filter.Premium)
		argID++
	}

	query += " ORDER BY start_time ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	slots := make([]models.Slot, 0)
	for rows.Next() {
		var s models.Slot
		if scanErr := scanSlot(rows, &s); scanErr != nil {
			return nil, scanErr
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (r *postgresSlotRepository) ReserveCapacity(ctx context.Context, exec SQLExecutor, id int, seats int) error {
	executor := r.getExecutor(exec)
	// Счётчик и статус меняются одним условным UPDATE: два конкурентных
	// вызова, вместе превышающие max_capacity, не могут пройти оба.
	query := `
		UPDATE slots SET
			current_bookings = current_bookings + $2,
			status = CASE
				WHEN current_bookings + $2 >= max_capacity THEN 'full'
				ELSE 'reserved'
			END
		WHERE id = $1
		  AND status IN ('available', 'reserved')
		  AND current_bookings + $2 <= max_capacity`

	result, err := executor.ExecContext(ctx, query, id, seats)
	if err != nil {
		return fmt.Errorf("failed to reserve capacity for slot %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// 0 строк: слот не существует, закрыт администратором или переполнен.
	slot, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	if slot.Status == models.SlotStatusMaintenance || slot.Status == models.SlotStatusCancelled {
		return ErrSlotNotBookable
	}
	return ErrSlotCapacityExceeded
}

func (r *postgresSlotRepository) ReleaseCapacity(ctx context.Context, exec SQLExecutor, id int, seats int) error {
	executor := r.getExecutor(exec)
	// Административные статусы не пересчитываются, счётчик уменьшается всегда.
	query := `
		UPDATE slots SET
			current_bookings = GREATEST(current_bookings - $2, 0),
			status = CASE
				WHEN status IN ('maintenance', 'cancelled') THEN status
				WHEN GREATEST(current_bookings - $2, 0) >= max_capacity THEN 'full'
				WHEN GREATEST(current_bookings - $2, 0) > 0 THEN 'reserved'
				ELSE 'available'
			END
		WHERE id = $1`

	result, err := executor.ExecContext(ctx, query, id, seats)
	if err != nil {
		return fmt.Errorf("failed to release capacity for slot %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrSlotNotFound)
}

func (r *postgresSlotRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.SlotStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE slots SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update slot %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrSlotNotFound)
}

func (r *postgresSlotRepository) Delete(ctx context.Context, id int) error {
	executor := r.getExecutor(nil)
	// Удаление разрешено только для слотов без активных броней.
	query := `DELETE FROM slots WHERE id = $1 AND current_bookings = 0`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete slot %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return getErr
	}
	return ErrSlotInUse
}

func (r *postgresSlotRepository) ListExpiredUnbooked(ctx context.Context, before time.Time) ([]models.Slot, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + slotColumns + `
		FROM slots
		WHERE end_time < $1 AND current_bookings = 0
		  AND status NOT IN ('maintenance')`

	rows, err := executor.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired slots: %w", err)
	}
	defer rows.Close()

	slots := make([]models.Slot, 0)
	for rows.Next() {
		var s models.Slot
		if scanErr := scanSlot(rows, &s); scanErr != nil {
			return nil, scanErr
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}
