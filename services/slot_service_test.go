package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/field-booking-system/models"
	"github.com/Dosada05/field-booking-system/repositories"
	"github.com/Dosada05/field-booking-system/services"
)

func TestCreateSlot_Validation(t *testing.T) {
	repo := &fakeSlotRepo{
		CreateFn: func(ctx context.Context, slot *models.Slot) error { return nil },
	}
	svc := services.NewSlotService(repo)
	start := time.Now().Add(time.Hour)

	tests := []struct {
		name string
		slot models.Slot
	}{
		{"end before start", models.Slot{StartTime: start, EndTime: start.Add(-time.Hour), MaxCapacity: 10}},
		{"zero capacity", models.Slot{StartTime: start, EndTime: start.Add(time.Hour), MaxCapacity: 0}},
		{"negative price", models.Slot{StartTime: start, EndTime: start.Add(time.Hour), MaxCapacity: 10, Price: -1}},
		{"negative cancellation deadline", models.Slot{StartTime: start, EndTime: start.Add(time.Hour), MaxCapacity: 10, CancellationDeadlineHours: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CreateSlot(context.Background(), &tt.slot)
			assert.ErrorIs(t, err, services.ErrValidation)
		})
	}
}

func TestCreateSlot_ForcesAvailableStatus(t *testing.T) {
	var created *models.Slot
	repo := &fakeSlotRepo{
		CreateFn: func(ctx context.Context, slot *models.Slot) error {
			created = slot
			return nil
		},
	}
	svc := services.NewSlotService(repo)
	start := time.Now().Add(time.Hour)

	slot := &models.Slot{StartTime: start, EndTime: start.Add(time.Hour), MaxCapacity: 10, Status: models.SlotStatusFull}
	require.NoError(t, svc.CreateSlot(context.Background(), slot))
	assert.Equal(t, models.SlotStatusAvailable, created.Status)
}

func TestCancelSlot_WithActiveBookings(t *testing.T) {
	repo := &fakeSlotRepo{
		GetByIDFn: func(ctx context.Context, id int) (*models.Slot, error) {
			return &models.Slot{ID: id, CurrentBookings: 3, Status: models.SlotStatusReserved}, nil
		},
	}
	svc := services.NewSlotService(repo)

	err := svc.CancelSlot(context.Background(), 1)
	assert.ErrorIs(t, err, services.ErrSlotHasBookings)
	assert.ErrorIs(t, err, services.ErrStateViolation)
}

func TestReopenSlot_RecomputesStatusFromCounter(t *testing.T) {
	var updated models.SlotStatus
	repo := &fakeSlotRepo{
		GetByIDFn: func(ctx context.Context, id int) (*models.Slot, error) {
			return &models.Slot{ID: id, Status: models.SlotStatusMaintenance, MaxCapacity: 10, CurrentBookings: 4}, nil
		},
		UpdateStatusFn: func(ctx context.Context, exec repositories.SQLExecutor, id int, status models.SlotStatus) error {
			updated = status
			return nil
		},
	}
	svc := services.NewSlotService(repo)

	require.NoError(t, svc.ReopenSlot(context.Background(), 1))
	assert.Equal(t, models.SlotStatusReserved, updated)
}

func TestReopenSlot_NotAdministrative(t *testing.T) {
	repo := &fakeSlotRepo{
		GetByIDFn: func(ctx context.Context, id int) (*models.Slot, error) {
			return &models.Slot{ID: id, Status: models.SlotStatusAvailable, MaxCapacity: 10}, nil
		},
	}
	svc := services.NewSlotService(repo)

	err := svc.ReopenSlot(context.Background(), 1)
	assert.ErrorIs(t, err, services.ErrStateViolation)
}

func TestDeleteSlot_InUse(t *testing.T) {
	repo := &fakeSlotRepo{
		DeleteFn: func(ctx context.Context, id int) error {
			return repositories.ErrSlotInUse
		},
	}
	svc := services.NewSlotService(repo)

	err := svc.DeleteSlot(context.Background(), 1)
	assert.ErrorIs(t, err, services.ErrSlotHasBookings)
}

func TestPruneExpired_IsolatesFailures(t *testing.T) {
	repo := &fakeSlotRepo{
		ListExpiredUnbookedFn: func(ctx context.Context, before time.Time) ([]models.Slot, error) {
			return []models.Slot{{ID: 1}, {ID: 2}, {ID: 3}}, nil
		},
		DeleteFn: func(ctx context.Context, id int) error {
			if id == 2 {
				return repositories.ErrSlotInUse
			}
			return nil
		},
	}
	svc := services.NewSlotService(repo)

	pruned, errs := svc.PruneExpired(context.Background(), time.Now())
	assert.Equal(t, 2, pruned)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], repositories.ErrSlotInUse)
}

func TestReserveCapacity_SeatsMustBePositive(t *testing.T) {
	svc := services.NewSlotService(&fakeSlotRepo{})

	assert.ErrorIs(t, svc.ReserveCapacity(context.Background(), 1, 0), services.ErrValidation)
	assert.ErrorIs(t, svc.ReleaseCapacity(context.Background(), 1, -1), services.ErrValidation)
}
