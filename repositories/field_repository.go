package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/field-booking-system/models"
)

var ErrFieldNotFound = errors.New("field not found")

type FieldRepository interface {
	Create(ctx context.Context, field *models.Field) error
	GetByID(ctx context.Context, id int) (*models.Field, error)
	List(ctx context.Context, limit, offset int) ([]models.Field, error)
}

type postgresFieldRepository struct {
	db *sql.DB
}

func NewPostgresFieldRepository(db *sql.DB) FieldRepository {
	return &postgresFieldRepository{db: db}
}

func (r *postgresFieldRepository) Create(ctx context.Context, f *models.Field) error {
	query := `
		INSERT INTO fields (name, city, capacity, indoor)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, f.Name, f.City, f.Capacity, f.Indoor).
		Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create field: %w", err)
	}
	return nil
}

func (r *postgresFieldRepository) GetByID(ctx context.Context, id int) (*models.Field, error) {
	query := `SELECT id, name, city, capacity, indoor, created_at FROM fields WHERE id = $1`

	f := &models.Field{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&f.ID, &f.Name, &f.City, &f.Capacity, &f.Indoor, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFieldNotFound
		}
		return nil, fmt.Errorf("failed to get field %d: %w", id, err)
	}
	return f, nil
}

func (r *postgresFieldRepository) List(ctx context.Context, limit, offset int) ([]models.Field, error) {
	query := `SELECT id, name, city, capacity, indoor, created_at FROM fields ORDER BY id`
	args := []interface{}{}
	argID := 1

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, limit)
		argID++
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	defer rows.Close()

	fields := make([]models.Field, 0)
	for rows.Next() {
		var f models.Field
		if scanErr := rows.Scan(&f.ID, &f.Name, &f.City, &f.Capacity, &f.Indoor, &f.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}
