package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/field-booking-system/events"
	"github.com/Dosada05/field-booking-system/models"
	"github.com/Dosada05/field-booking-system/repositories"
	"github.com/google/uuid"
)

const (
	// DefaultConfirmationWindow — срок подтверждения брони с момента создания.
	DefaultConfirmationWindow = 2 * time.Hour
	// DefaultDailyReservationCap — лимит броней на пользователя в сутки.
	DefaultDailyReservationCap = 3
)

// RateLimiter ограничивает число броней пользователя за сутки.
// Реализация — limits.RedisDailyLimiter. Allow инкрементирует счётчик до
// записи брони, поэтому сорвавшаяся попытка обязана вернуть квоту через
// Revoke.
type RateLimiter interface {
	Allow(ctx context.Context, userID int, limit int) (bool, error)
	Revoke(ctx context.Context, userID int) error
}

type ReservationConfig struct {
	ConfirmationWindow time.Duration
	DailyCap           int
}

func (c ReservationConfig) withDefaults() ReservationConfig {
	if c.ConfirmationWindow <= 0 {
		c.ConfirmationWindow = DefaultConfirmationWindow
	}
	if c.DailyCap <= 0 {
		c.DailyCap = DefaultDailyReservationCap
	}
	return c
}

// ReservationService инкапсулирует жизненный цикл брони. Создание занимает
// места через CapacityLedger с компенсацией при сбое; отмена и истечение
// меняют статус и возвращают места в одной транзакции.
type ReservationService struct {
	reservationRepo repositories.ReservationRepository
	slotRepo        repositories.SlotRepository
	tx              repositories.TxRunner
	ledger          CapacityLedger
	limiter         RateLimiter
	publisher       events.Publisher
	logger          *slog.Logger
	cfg             ReservationConfig
}

func NewReservationService(
	reservationRepo repositories.ReservationRepository,
	slotRepo repositories.SlotRepository,
	tx repositories.TxRunner,
	ledger CapacityLedger,
	limiter RateLimiter,
	publisher events.Publisher,
	logger *slog.Logger,
	cfg ReservationConfig,
) *ReservationService {
	return &ReservationService{
		reservationRepo: reservationRepo,
		slotRepo:        slotRepo,
		tx:              tx,
		ledger:          ledger,
		limiter:         limiter,
		publisher:       publisher,
		logger:          logger,
		cfg:             cfg.withDefaults(),
	}
}

type CreateReservationParams struct {
	UserID  int
	SlotID  int
	Type    models.ReservationType
	Players int
}

// Create создаёт бронь в статусе pending с дедлайном подтверждения.
// Места слота занимаются атомарно; при сбое записи брони занятые места
// возвращаются (компенсирующее действие, а не откат транзакции).
func (s *ReservationService) Create(ctx context.Context, params CreateReservationParams) (*models.Reservation, error) {
	if !params.Type.Valid() {
		return nil, ErrInvalidReservationType
	}
	if params.Players < params.Type.MinPlayers() {
		return nil, fmt.Errorf("%w: type %s requires at least %d players",
			ErrNotEnoughPlayers, params.Type, params.Type.MinPlayers())
	}

	slot, err := s.slotRepo.GetByID(ctx, params.SlotID)
	if err != nil {
		return nil, mapSlotRepoError(err)
	}

	now := time.Now()
	if !slot.StartTime.After(now) {
		return nil, ErrSlotInPast
	}
	if slot.Status == models.SlotStatusMaintenance || slot.Status == models.SlotStatusCancelled {
		return nil, ErrSlotNotBookable
	}
	if slot.AvailableSpots() < params.Players {
		return nil, ErrSlotCapacity
	}

	duplicate, err := s.reservationRepo.HasActiveForUserAndSlot(ctx, params.UserID, params.SlotID)
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicate reservation: %w", err)
	}
	if duplicate {
		return nil, ErrDuplicateReservation
	}

	if err := s.checkDailyCap(ctx, params.UserID, now); err != nil {
		return nil, err
	}

	// Занимаем места до записи брони: проигравший гонку получит ErrSlotCapacity.
	if err := s.ledger.ReserveCapacity(ctx, params.SlotID, params.Players); err != nil {
		s.revokeQuota(ctx, params.UserID)
		return nil, mapSlotRepoError(err)
	}

	reservation := &models.Reservation{
		UserID:               params.UserID,
		SlotID:               params.SlotID,
		Type:                 params.Type,
		Status:               models.ReservationPending,
		NumberOfPlayers:      params.Players,
		TotalAmount:          CalculateTotalAmount(slot, params.Type, params.Players),
		ReferenceCode:        newReferenceCode(),
		ConfirmationDeadline: now.Add(s.cfg.ConfirmationWindow),
	}

	if err := s.reservationRepo.Create(ctx, nil, reservation); err != nil {
		if releaseErr := s.ledger.ReleaseCapacity(ctx, params.SlotID, params.Players); releaseErr != nil {
			s.logger.Error("failed to release capacity after create failure",
				slog.Int("slot_id", params.SlotID), slog.Any("error", releaseErr))
		}
		s.revokeQuota(ctx, params.UserID)
		return nil, mapReservationRepoError(err)
	}
	return reservation, nil
}

// checkDailyCap инкрементирует суточный счётчик лимитера. При недоступном
// Redis лимит проверяется по числу броней в БД за текущие сутки UTC; если и
// эта проверка падает, бронь пропускается (fail-open).
func (s *ReservationService) checkDailyCap(ctx context.Context, userID int, now time.Time) error {
	allowed, err := s.limiter.Allow(ctx, userID, s.cfg.DailyCap)
	if err == nil {
		if !allowed {
			return ErrRateLimitExceeded
		}
		return nil
	}

	s.logger.Warn("rate limiter unavailable, falling back to database count",
		slog.Int("user_id", userID), slog.Any("error", err))
	startOfDay := now.UTC().Truncate(24 * time.Hour)
	count, countErr := s.reservationRepo.CountCreatedSince(ctx, userID, startOfDay)
	if countErr != nil {
		s.logger.Warn("daily cap fallback failed, allowing reservation",
			slog.Int("user_id", userID), slog.Any("error", countErr))
		return nil
	}
	if count >= s.cfg.DailyCap {
		return ErrRateLimitExceeded
	}
	return nil
}

// revokeQuota возвращает единицу суточной квоты после сорвавшейся попытки.
func (s *ReservationService) revokeQuota(ctx context.Context, userID int) {
	if err := s.limiter.Revoke(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke daily quota",
			slog.Int("user_id", userID), slog.Any("error", err))
	}
}

func (s *ReservationService) GetByID(ctx context.Context, id int) (*models.Reservation, error) {
	reservation, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapReservationRepoError(err)
	}
	return reservation, nil
}

// GetByReference находит бронь по человекочитаемому коду (RES-XXXXXXXX).
func (s *ReservationService) GetByReference(ctx context.Context, code string) (*models.Reservation, error) {
	reservation, err := s.reservationRepo.GetByReferenceCode(ctx, code)
	if err != nil {
		return nil, mapReservationRepoError(err)
	}
	return reservation, nil
}

func (s *ReservationService) List(ctx context.Context, filter repositories.ListReservationsFilter) ([]models.Reservation, error) {
	return s.reservationRepo.List(ctx, filter)
}

// Confirm переводит pending-бронь в ожидание оплаты. После дедлайна
// подтверждение невозможно: бронь подберёт ближайший проход ExpireStale.
func (s *ReservationService) Confirm(ctx context.Context, id int) error {
	reservation, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if reservation.Status != models.ReservationPending {
		if reservation.Status.IsTerminal() {
			return ErrReservationTerminal
		}
		return ErrReservationNotPending
	}
	if time.Now().After(reservation.ConfirmationDeadline) {
		return ErrReservationExpired
	}

	if err := s.reservationRepo.TransitionStatus(ctx, nil, id,
		models.ReservationPending, models.ReservationAwaitingPayment); err != nil {
		return mapReservationRepoError(err)
	}
	return nil
}

// MarkPaid — единственная точка входа для платёжного коллаборатора.
// Идемпотентна: повторный вызов по уже подтверждённой брони — no-op.
func (s *ReservationService) MarkPaid(ctx context.Context, id int, amount float64) error {
	reservation, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	switch reservation.Status {
	case models.ReservationConfirmed:
		return nil
	case models.ReservationAwaitingPayment:
		if err := s.reservationRepo.SetPaidAmount(ctx, nil, id, amount); err != nil {
			return mapReservationRepoError(err)
		}
		if err := s.reservationRepo.TransitionStatus(ctx, nil, id,
			models.ReservationAwaitingPayment, models.ReservationConfirmed); err != nil {
			return mapReservationRepoError(err)
		}
		return s.reservationRepo.SetConfirmed(ctx, nil, id, time.Now())
	default:
		return ErrReservationTerminal
	}
}

// Cancel — пользовательская отмена. Запрещена для конечных статусов и после
// дедлайна отмены слота. Смена статуса и возврат мест идут в одной
// транзакции; условный UPDATE статуса съедает повторные вызовы.
func (s *ReservationService) Cancel(ctx context.Context, id int, reason string) error {
	return s.cancel(ctx, id, reason, models.ReservationCancelled, false)
}

// CancelByEstablishment — отмена заведением; дедлайн отмены не применяется.
func (s *ReservationService) CancelByEstablishment(ctx context.Context, id int, reason string) error {
	return s.cancel(ctx, id, reason, models.ReservationCancelledByEstablishment, true)
}

func (s *ReservationService) cancel(ctx context.Context, id int, reason string, status models.ReservationStatus, ignoreDeadline bool) error {
	reservation, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if reservation.Status.IsTerminal() {
		return ErrReservationTerminal
	}

	if !ignoreDeadline {
		slot, err := s.slotRepo.GetByID(ctx, reservation.SlotID)
		if err != nil {
			return mapSlotRepoError(err)
		}
		if time.Now().After(slot.CancellationDeadline()) {
			return ErrCancellationDeadline
		}
	}

	return s.terminateAndRelease(ctx, reservation, status, reason)
}

// Reject — отклонение pending-брони оператором.
func (s *ReservationService) Reject(ctx context.Context, id int, reason string) error {
	reservation, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if reservation.Status != models.ReservationPending {
		return ErrReservationNotPending
	}
	return s.terminateAndRelease(ctx, reservation, models.ReservationRejected, reason)
}

// terminateAndRelease переводит бронь в конечный статус и возвращает места
// слоту одной транзакцией: частичного исхода (статус сменён, места утекли)
// быть не может.
func (s *ReservationService) terminateAndRelease(ctx context.Context, reservation *models.Reservation, status models.ReservationStatus, reason string) error {
	return s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.reservationRepo.SetCancelled(ctx, exec, reservation.ID, status, reason, time.Now()); err != nil {
			return mapReservationRepoError(err)
		}
		if err := s.slotRepo.ReleaseCapacity(ctx, exec, reservation.SlotID, reservation.NumberOfPlayers); err != nil {
			return mapSlotRepoError(err)
		}
		return nil
	})
}

// Complete закрывает подтверждённую и оплаченную бронь после окончания слота.
func (s *ReservationService) Complete(ctx context.Context, id int) error {
	reservation, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if reservation.Status != models.ReservationConfirmed {
		return ErrReservationNotConfirmed
	}
	if !reservation.IsPaid() {
		return ErrReservationNotPaid
	}

	slot, err := s.slotRepo.GetByID(ctx, reservation.SlotID)
	if err != nil {
		return mapSlotRepoError(err)
	}
	if time.Now().Before(slot.EndTime) {
		return ErrReservationNotFinished
	}

	if err := s.reservationRepo.TransitionStatus(ctx, nil, id,
		models.ReservationConfirmed, models.ReservationCompleted); err != nil {
		return mapReservationRepoError(err)
	}
	return nil
}

// ExpireStale переводит просроченные pending-брони в expired и возвращает
// места. Перевод статуса и возврат мест — одна транзакция на бронь, так что
// повторные проходы и конкурентные подтверждения не освобождают места
// дважды; сбой по одной брони не прерывает проход.
func (s *ReservationService) ExpireStale(ctx context.Context, now time.Time) (int, []error) {
	stale, err := s.reservationRepo.ListStalePending(ctx, now)
	if err != nil {
		return 0, []error{fmt.Errorf("failed to list stale reservations: %w", err)}
	}

	var sweepErrs []error
	expired := 0
	for _, reservation := range stale {
		err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
			if err := s.reservationRepo.TransitionStatus(ctx, exec, reservation.ID,
				models.ReservationPending, models.ReservationExpired); err != nil {
				return mapReservationRepoError(err)
			}
			if err := s.slotRepo.ReleaseCapacity(ctx, exec, reservation.SlotID, reservation.NumberOfPlayers); err != nil {
				return mapSlotRepoError(err)
			}
			return nil
		})
		if err != nil {
			// Конкурентный переход (подтверждение или второй проход) — пропускаем.
			if !errors.Is(err, ErrConcurrentStatusChange) {
				sweepErrs = append(sweepErrs, fmt.Errorf("reservation %d: %w", reservation.ID, err))
			}
			continue
		}
		expired++
	}
	return expired, sweepErrs
}

// NotifyExpiringSoon публикует reservation_expiring_soon для pending-броней,
// чей дедлайн наступает в ближайшие lead.
func (s *ReservationService) NotifyExpiringSoon(ctx context.Context, now time.Time, lead time.Duration) error {
	expiring, err := s.reservationRepo.ListPendingExpiringBetween(ctx, now, now.Add(lead))
	if err != nil {
		return fmt.Errorf("failed to list expiring reservations: %w", err)
	}
	for _, reservation := range expiring {
		s.publisher.Publish(events.Event{
			Type:          events.ReservationExpiringSoon,
			ReservationID: reservation.ID,
			Recipients:    []int{reservation.UserID},
			Payload: map[string]any{
				"confirmation_deadline": reservation.ConfirmationDeadline,
				"reference_code":        reservation.ReferenceCode,
			},
		})
	}
	return nil
}

// newReferenceCode генерирует человекочитаемый код брони вида RES-1A2B3C4D.
func newReferenceCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "RES-" + raw[:8]
}
