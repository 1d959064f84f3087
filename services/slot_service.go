package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Dosada05/field-booking-system/models"
	"github.com/Dosada05/field-booking-system/repositories"
)

// CapacityLedger атомарно мутирует счётчик занятых мест слота. Пути отмены
// и истечения брони обращаются к репозиторию слотов напрямую: там смена
// статуса и возврат мест идут в одной транзакции.
type CapacityLedger interface {
	ReserveCapacity(ctx context.Context, slotID, seats int) error
	ReleaseCapacity(ctx context.Context, slotID, seats int) error
	AvailableSpots(ctx context.Context, slotID int) (int, error)
}

// SlotService инкапсулирует учёт ёмкости и административные переходы слотов.
type SlotService struct {
	slotRepo repositories.SlotRepository
}

func NewSlotService(slotRepo repositories.SlotRepository) *SlotService {
	return &SlotService{slotRepo: slotRepo}
}

// CreateSlot создаёт слот оператором.
func (s *SlotService) CreateSlot(ctx context.Context, slot *models.Slot) error {
	if err := validateSlotInterval(slot.StartTime, slot.EndTime); err != nil {
		return err
	}
	if slot.MaxCapacity <= 0 {
		return fmt.Errorf("%w: max capacity must be positive", ErrValidation)
	}
	if slot.Price < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}
	if slot.CancellationDeadlineHours < 0 {
		return fmt.Errorf("%w: cancellation deadline cannot be negative", ErrValidation)
	}

	slot.Status = models.SlotStatusAvailable
	if err := s.slotRepo.Create(ctx, slot); err != nil {
		return mapSlotRepoError(err)
	}
	return nil
}

func (s *SlotService) GetSlot(ctx context.Context, id int) (*models.Slot, error) {
	slot, err := s.slotRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapSlotRepoError(err)
	}
	return slot, nil
}

func (s *SlotService) ListSlots(ctx context.Context, filter repositories.ListSlotsFilter) ([]models.Slot, error) {
	return s.slotRepo.List(ctx, filter)
}

// ReserveCapacity атомарно занимает места; два конкурентных вызова, вместе
// превышающие ёмкость, не могут пройти оба (условный UPDATE в репозитории).
func (s *SlotService) ReserveCapacity(ctx context.Context, slotID, seats int) error {
	if seats <= 0 {
		return fmt.Errorf("%w: seats must be positive", ErrValidation)
	}
	if err := s.slotRepo.ReserveCapacity(ctx, nil, slotID, seats); err != nil {
		return mapSlotRepoError(err)
	}
	return nil
}

// ReleaseCapacity освобождает места; счётчик не уходит ниже нуля.
func (s *SlotService) ReleaseCapacity(ctx context.Context, slotID, seats int) error {
	if seats <= 0 {
		return fmt.Errorf("%w: seats must be positive", ErrValidation)
	}
	if err := s.slotRepo.ReleaseCapacity(ctx, nil, slotID, seats); err != nil {
		return mapSlotRepoError(err)
	}
	return nil
}

func (s *SlotService) AvailableSpots(ctx context.Context, slotID int) (int, error) {
	slot, err := s.slotRepo.GetByID(ctx, slotID)
	if err != nil {
		return 0, mapSlotRepoError(err)
	}
	return slot.AvailableSpots(), nil
}

// SetMaintenance переводит слот в административный статус обслуживания.
func (s *SlotService) SetMaintenance(ctx context.Context, slotID int) error {
	if err := s.slotRepo.UpdateStatus(ctx, nil, slotID, models.SlotStatusMaintenance); err != nil {
		return mapSlotRepoError(err)
	}
	return nil
}

// CancelSlot отменяет слот. Отмена при живых бронях запрещена: сначала брони
// должны быть отменены заведением.
func (s *SlotService) CancelSlot(ctx context.Context, slotID int) error {
	slot, err := s.slotRepo.GetByID(ctx, slotID)
	if err != nil {
		return mapSlotRepoError(err)
	}
	if slot.CurrentBookings > 0 {
		return ErrSlotHasBookings
	}
	if err := s.slotRepo.UpdateStatus(ctx, nil, slotID, models.SlotStatusCancelled); err != nil {
		return mapSlotRepoError(err)
	}
	return nil
}

// ReopenSlot возвращает слот из административного статуса; статус
// пересчитывается из счётчика.
func (s *SlotService) ReopenSlot(ctx context.Context, slotID int) error {
	slot, err := s.slotRepo.GetByID(ctx, slotID)
	if err != nil {
		return mapSlotRepoError(err)
	}
	if slot.Status != models.SlotStatusMaintenance && slot.Status != models.SlotStatusCancelled {
		return fmt.Errorf("%w: slot is not in an administrative state", ErrStateViolation)
	}

	// Снимаем липкий административный статус и пересчитываем из счётчика.
	slot.Status = models.SlotStatusAvailable
	if err := s.slotRepo.UpdateStatus(ctx, nil, slotID, slot.DerivedStatus()); err != nil {
		return mapSlotRepoError(err)
	}
	return nil
}

// DeleteSlot удаляет слот; разрешено только при нулевом счётчике броней.
func (s *SlotService) DeleteSlot(ctx context.Context, slotID int) error {
	if err := s.slotRepo.Delete(ctx, slotID); err != nil {
		return mapSlotRepoError(err)
	}
	return nil
}

// PruneExpired удаляет прошедшие слоты без броней. Возвращает число удалённых.
// Ошибка по одному слоту не прерывает проход (вызывается планировщиком).
func (s *SlotService) PruneExpired(ctx context.Context, now time.Time) (int, []error) {
	slots, err := s.slotRepo.ListExpiredUnbooked(ctx, now)
	if err != nil {
		return 0, []error{err}
	}

	var pruneErrs []error
	pruned := 0
	for _, slot := range slots {
		if err := s.slotRepo.Delete(ctx, slot.ID); err != nil {
			pruneErrs = append(pruneErrs, fmt.Errorf("slot %d: %w", slot.ID, err))
			continue
		}
		pruned++
	}
	return pruned, pruneErrs
}
