package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/field-booking-system/models"
	"github.com/Dosada05/field-booking-system/repositories"
	"github.com/Dosada05/field-booking-system/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bookableSlot(id, capacity, booked int) *models.Slot {
	return &models.Slot{
		ID:                        id,
		FieldID:                   1,
		StartTime:                 time.Now().Add(48 * time.Hour),
		EndTime:                   time.Now().Add(50 * time.Hour),
		Price:                     100,
		MaxCapacity:               capacity,
		CurrentBookings:           booked,
		Status:                    models.SlotStatusAvailable,
		CancellationDeadlineHours: 24,
	}
}

type reservationServiceDeps struct {
	reservationRepo *fakeReservationRepo
	slotRepo        *fakeSlotRepo
	tx              *fakeTxRunner
	ledger          *fakeLedger
	limiter         *fakeLimiter
	publisher       *capturePublisher
}

func newReservationService(t *testing.T, slot *models.Slot) (*services.ReservationService, *reservationServiceDeps) {
	t.Helper()
	ledger := newFakeLedger(slot.ID, slot.MaxCapacity-slot.CurrentBookings)
	deps := &reservationServiceDeps{
		reservationRepo: &fakeReservationRepo{
			CreateFn: func(ctx context.Context, exec repositories.SQLExecutor, r *models.Reservation) error {
				r.ID = 1
				return nil
			},
			HasActiveForUserAndSlotFn: func(ctx context.Context, userID, slotID int) (bool, error) {
				return false, nil
			},
			CountCreatedSinceFn: func(ctx context.Context, userID int, since time.Time) (int, error) {
				return 0, nil
			},
			SetCancelledFn: func(ctx context.Context, exec repositories.SQLExecutor, id int, status models.ReservationStatus, reason string, at time.Time) error {
				return nil
			},
		},
		slotRepo: &fakeSlotRepo{
			GetByIDFn: func(ctx context.Context, id int) (*models.Slot, error) {
				if slot == nil || slot.ID != id {
					return nil, repositories.ErrSlotNotFound
				}
				copied := *slot
				return &copied, nil
			},
			// Транзакционный возврат мест отражаем в ledger, чтобы тесты
			// считали занятые места в одном месте.
			ReleaseCapacityFn: func(ctx context.Context, exec repositories.SQLExecutor, id, seats int) error {
				return ledger.ReleaseCapacity(ctx, id, seats)
			},
		},
		tx:        &fakeTxRunner{exec: txMarker{}},
		ledger:    ledger,
		limiter:   &fakeLimiter{allowed: true},
		publisher: &capturePublisher{},
	}
	svc := services.NewReservationService(
		deps.reservationRepo, deps.slotRepo, deps.tx, deps.ledger, deps.limiter,
		deps.publisher, testLogger(), services.ReservationConfig{},
	)
	return svc, deps
}

func TestCreateReservation_Success(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, deps := newReservationService(t, slot)

	reservation, err := svc.Create(context.Background(), services.CreateReservationParams{
		UserID:  7,
		SlotID:  10,
		Type:    models.ReservationTypeTeam,
		Players: 5,
	})

	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, reservation.Status)
	assert.Equal(t, 5, reservation.NumberOfPlayers)
	assert.Regexp(t, `^RES-[0-9A-F]{8}$`, reservation.ReferenceCode)
	assert.False(t, reservation.ConfirmationDeadline.IsZero())
	assert.Equal(t, 5, deps.ledger.usedSeats(10))
}

func TestCreateReservation_TypeMinimum(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, _ := newReservationService(t, slot)

	_, err := svc.Create(context.Background(), services.CreateReservationParams{
		UserID:  7,
		SlotID:  10,
		Type:    models.ReservationTypeTeam,
		Players: 3,
	})

	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestCreateReservation_Duplicate(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, deps := newReservationService(t, slot)
	deps.reservationRepo.HasActiveForUserAndSlotFn = func(ctx context.Context, userID, slotID int) (bool, error) {
		return true, nil
	}

	_, err := svc.Create(context.Background(), services.CreateReservationParams{
		UserID: 7, SlotID: 10, Type: models.ReservationTypeIndividual, Players: 1,
	})

	assert.ErrorIs(t, err, services.ErrDuplicateReservation)
	assert.ErrorIs(t, err, services.ErrConflict)
	assert.Zero(t, deps.ledger.usedSeats(10))
}

func TestCreateReservation_RateLimited(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, deps := newReservationService(t, slot)
	deps.limiter.allowed = false

	_, err := svc.Create(context.Background(), services.CreateReservationParams{
		UserID: 7, SlotID: 10, Type: models.ReservationTypeIndividual, Players: 1,
	})

	assert.ErrorIs(t, err, services.ErrRateLimitExceeded)
	assert.Zero(t, deps.ledger.usedSeats(10))
}

func TestCreateReservation_LimiterFailOpen(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, deps := newReservationService(t, slot)
	deps.limiter.allowed = false
	deps.limiter.err = errors.New("redis down")

	_, err := svc.Create(context.Background(), services.CreateReservationParams{
		UserID: 7, SlotID: 10, Type: models.ReservationTypeIndividual, Players: 1,
	})

	assert.NoError(t, err)
}

func TestCreateReservation_ReleasesSeatsWhenInsertFails(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, deps := newReservationService(t, slot)
	deps.reservationRepo.CreateFn = func(ctx context.Context, exec repositories.SQLExecutor, r *models.Reservation) error {
		return errors.New("insert failed")
	}

	_, err := svc.Create(context.Background(), services.CreateReservationParams{
		UserID: 7, SlotID: 10, Type: models.ReservationTypeIndividual, Players: 2,
	})

	assert.Error(t, err)
	assert.Zero(t, deps.ledger.usedSeats(10))
	// Сорвавшаяся попытка возвращает суточную квоту.
	assert.Equal(t, 1, deps.limiter.revokeCount())
}

func TestCreateReservation_CapacityRaceLoserGetsServiceError(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, deps := newReservationService(t, slot)
	deps.ledger.failNext = repositories.ErrSlotCapacityExceeded

	_, err := svc.Create(context.Background(), services.CreateReservationParams{
		UserID: 7, SlotID: 10, Type: models.ReservationTypeIndividual, Players: 2,
	})

	assert.ErrorIs(t, err, services.ErrSlotCapacity)
	assert.ErrorIs(t, err, services.ErrCapacity)
	assert.Equal(t, 1, deps.limiter.revokeCount())
}

func TestCreateReservation_LimiterDownFallsBackToDatabaseCount(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, deps := newReservationService(t, slot)
	deps.limiter.err = errors.New("redis down")
	deps.reservationRepo.CountCreatedSinceFn = func(ctx context.Context, userID int, since time.Time) (int, error) {
		assert.Equal(t, time.UTC, since.Location())
		return services.DefaultDailyReservationCap, nil
	}

	_, err := svc.Create(context.Background(), services.CreateReservationParams{
		UserID: 7, SlotID: 10, Type: models.ReservationTypeIndividual, Players: 1,
	})

	assert.ErrorIs(t, err, services.ErrRateLimitExceeded)
	assert.Zero(t, deps.ledger.usedSeats(10))
}

// Конкурентные создания, вместе превышающие ёмкость, не могут пройти оба:
// часть получает отказ по ёмкости, занятые места не превышают лимит.
func TestCreateReservation_ConcurrentCapacity(t *testing.T) {
	slot := bookableSlot(10, 4, 0)
	svc, deps := newReservationService(t, slot)
	// Проверку AvailableSpots по снапшоту слота обходим: свободных мест
	// формально хватает каждому, гонку разрешает только ledger.
	slot.CurrentBookings = 0

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), services.CreateReservationParams{
				UserID: userID, SlotID: 10, Type: models.ReservationTypeIndividual, Players: 2,
			})
			results <- err
		}(i + 100)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, services.ErrCapacity)
		}
	}
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 4, deps.ledger.usedSeats(10))
	// Проигравшие гонку не тратят суточную квоту.
	assert.Equal(t, 2, deps.limiter.revokeCount())
}

func TestConfirm_AfterDeadline(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, deps := newReservationService(t, slot)
	deps.reservationRepo.GetByIDFn = func(ctx context.Context, id int) (*models.Reservation, error) {
		return &models.Reservation{
			ID:                   id,
			SlotID:               10,
			Status:               models.ReservationPending,
			ConfirmationDeadline: time.Now().Add(-time.Minute),
		}, nil
	}

	err := svc.Confirm(context.Background(), 1)
	assert.ErrorIs(t, err, services.ErrReservationExpired)
	assert.ErrorIs(t, err, services.ErrExpired)
}

func TestMarkPaid_IdempotentWhenConfirmed(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, deps := newReservationService(t, slot)
	deps.reservationRepo.GetByIDFn = func(ctx context.Context, id int) (*models.Reservation, error) {
		return &models.Reservation{ID: id, Status: models.ReservationConfirmed}, nil
	}

	assert.NoError(t, svc.MarkPaid(context.Background(), 1, 100))
}

func TestMarkPaid_TerminalState(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, deps := newReservationService(t, slot)
	deps.reservationRepo.GetByIDFn = func(ctx context.Context, id int) (*models.Reservation, error) {
		return &models.Reservation{ID: id, Status: models.ReservationExpired}, nil
	}

	err := svc.MarkPaid(context.Background(), 1, 100)
	assert.ErrorIs(t, err, services.ErrReservationTerminal)
	assert.ErrorIs(t, err, services.ErrStateViolation)
}

func TestCancel_DeadlinePassed(t *testing.T) {
	slot := bookableSlot(10, 10, 2)
	slot.StartTime = time.Now().Add(2 * time.Hour) // дедлайн отмены (за 24ч) уже позади
	svc, deps := newReservationService(t, slot)
	deps.reservationRepo.GetByIDFn = func(ctx context.Context, id int) (*models.Reservation, error) {
		return &models.Reservation{
			ID: id, SlotID: 10, Status: models.ReservationConfirmed, NumberOfPlayers: 2,
		}, nil
	}

	err := svc.Cancel(context.Background(), 1, "changed plans")
	assert.ErrorIs(t, err, services.ErrCancellationDeadline)
}

func TestCancelByEstablishment_IgnoresDeadline(t *testing.T) {
	slot := bookableSlot(10, 10, 2)
	slot.StartTime = time.Now().Add(2 * time.Hour)
	svc, deps := newReservationService(t, slot)
	deps.ledger.used[10] = 2

	cancelled := false
	deps.reservationRepo.GetByIDFn = func(ctx context.Context, id int) (*models.Reservation, error) {
		return &models.Reservation{
			ID: id, SlotID: 10, Status: models.ReservationConfirmed, NumberOfPlayers: 2,
		}, nil
	}
	deps.reservationRepo.SetCancelledFn = func(ctx context.Context, exec repositories.SQLExecutor, id int, status models.ReservationStatus, reason string, at time.Time) error {
		cancelled = true
		assert.Equal(t, models.ReservationCancelledByEstablishment, status)
		return nil
	}

	require.NoError(t, svc.CancelByEstablishment(context.Background(), 1, "field flooded"))
	assert.True(t, cancelled)
	assert.Zero(t, deps.ledger.usedSeats(10))
}

// Смена статуса и возврат мест при отмене должны идти через один executor
// транзакции: обе операции получают executor, выданный транзакцией.
func TestCancel_StatusAndReleaseShareTransaction(t *testing.T) {
	slot := bookableSlot(10, 10, 2)
	svc, deps := newReservationService(t, slot)
	deps.ledger.used[10] = 2
	deps.reservationRepo.GetByIDFn = func(ctx context.Context, id int) (*models.Reservation, error) {
		return &models.Reservation{
			ID: id, SlotID: 10, Status: models.ReservationConfirmed, NumberOfPlayers: 2,
		}, nil
	}

	var cancelExec, releaseExec repositories.SQLExecutor
	deps.reservationRepo.SetCancelledFn = func(ctx context.Context, exec repositories.SQLExecutor, id int, status models.ReservationStatus, reason string, at time.Time) error {
		cancelExec = exec
		return nil
	}
	deps.slotRepo.ReleaseCapacityFn = func(ctx context.Context, exec repositories.SQLExecutor, id, seats int) error {
		releaseExec = exec
		return nil
	}

	require.NoError(t, svc.Cancel(context.Background(), 1, "changed plans"))

	assert.Equal(t, 1, deps.tx.calls)
	assert.Equal(t, txMarker{}, cancelExec)
	assert.Equal(t, txMarker{}, releaseExec)
}

// Сбой возврата мест откатывает и смену статуса: замыкание транзакции
// возвращает ошибку, бронь не считается отменённой.
func TestCancel_ReleaseFailureAbortsTransaction(t *testing.T) {
	slot := bookableSlot(10, 10, 2)
	svc, deps := newReservationService(t, slot)
	deps.reservationRepo.GetByIDFn = func(ctx context.Context, id int) (*models.Reservation, error) {
		return &models.Reservation{
			ID: id, SlotID: 10, Status: models.ReservationConfirmed, NumberOfPlayers: 2,
		}, nil
	}
	deps.slotRepo.ReleaseCapacityFn = func(ctx context.Context, exec repositories.SQLExecutor, id, seats int) error {
		return errors.New("connection reset")
	}

	err := svc.Cancel(context.Background(), 1, "changed plans")
	assert.Error(t, err)
	assert.Equal(t, 1, deps.tx.calls)
}

func TestGetByReference(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, deps := newReservationService(t, slot)
	deps.reservationRepo.GetByReferenceCodeFn = func(ctx context.Context, code string) (*models.Reservation, error) {
		if code != "RES-AAAA1111" {
			return nil, repositories.ErrReservationNotFound
		}
		return &models.Reservation{ID: 5, ReferenceCode: code}, nil
	}

	reservation, err := svc.GetByReference(context.Background(), "RES-AAAA1111")
	require.NoError(t, err)
	assert.Equal(t, 5, reservation.ID)

	_, err = svc.GetByReference(context.Background(), "RES-MISSING0")
	assert.ErrorIs(t, err, services.ErrReservationNotFound)
}

func TestExpireStale_SkipsConcurrentTransitions(t *testing.T) {
	slot := bookableSlot(10, 10, 4)
	svc, deps := newReservationService(t, slot)
	deps.ledger.used[10] = 4

	stale := []models.Reservation{
		{ID: 1, SlotID: 10, Status: models.ReservationPending, NumberOfPlayers: 2},
		{ID: 2, SlotID: 10, Status: models.ReservationPending, NumberOfPlayers: 2},
	}
	deps.reservationRepo.ListStalePendingFn = func(ctx context.Context, deadline time.Time) ([]models.Reservation, error) {
		return stale, nil
	}
	deps.reservationRepo.TransitionStatusFn = func(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.ReservationStatus) error {
		if id == 2 {
			// Бронь успели подтвердить между выборкой и переводом.
			return repositories.ErrReservationStatusConflict
		}
		assert.Equal(t, models.ReservationPending, from)
		assert.Equal(t, models.ReservationExpired, to)
		return nil
	}

	expired, errs := svc.ExpireStale(context.Background(), time.Now())

	assert.Equal(t, 1, expired)
	assert.Empty(t, errs)
	// Места вернула только реально просроченная бронь.
	assert.Equal(t, 2, deps.ledger.usedSeats(10))
}

func TestNotifyExpiringSoon_PublishesEvents(t *testing.T) {
	slot := bookableSlot(10, 10, 0)
	svc, deps := newReservationService(t, slot)
	deadline := time.Now().Add(20 * time.Minute)
	deps.reservationRepo.ListPendingExpiringBetweenFn = func(ctx context.Context, from, to time.Time) ([]models.Reservation, error) {
		return []models.Reservation{
			{ID: 5, UserID: 7, Status: models.ReservationPending, ConfirmationDeadline: deadline, ReferenceCode: "RES-AAAA1111"},
		}, nil
	}

	require.NoError(t, svc.NotifyExpiringSoon(context.Background(), time.Now(), 30*time.Minute))

	published := deps.publisher.byType("reservation_expiring_soon")
	require.Len(t, published, 1)
	assert.Equal(t, 5, published[0].ReservationID)
	assert.Equal(t, []int{7}, published[0].Recipients)
}
