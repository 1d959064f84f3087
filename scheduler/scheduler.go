package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/field-booking-system/models"
	"github.com/Dosada05/field-booking-system/repositories"
)

// Intervals задаёт периодичность фоновых задач.
type Intervals struct {
	ReservationExpiry time.Duration // просрочка pending-броней + предупреждения
	SlotPruning       time.Duration // удаление прошедших пустых слотов
	MatchAutoCancel   time.Duration // отмена несобравшихся матчей после старта слота
	MatchAutoConfirm  time.Duration // автоподтверждение собравшихся матчей
	MatchRebalance    time.Duration // выравнивание перекошенных составов
}

// DefaultIntervals — периодичность по умолчанию.
func DefaultIntervals() Intervals {
	return Intervals{
		ReservationExpiry: time.Minute,
		SlotPruning:       time.Hour,
		MatchAutoCancel:   5 * time.Minute,
		MatchAutoConfirm:  5 * time.Minute,
		MatchRebalance:    10 * time.Minute,
	}
}

func (i Intervals) withDefaults() Intervals {
	d := DefaultIntervals()
	if i.ReservationExpiry <= 0 {
		i.ReservationExpiry = d.ReservationExpiry
	}
	if i.SlotPruning <= 0 {
		i.SlotPruning = d.SlotPruning
	}
	if i.MatchAutoCancel <= 0 {
		i.MatchAutoCancel = d.MatchAutoCancel
	}
	if i.MatchAutoConfirm <= 0 {
		i.MatchAutoConfirm = d.MatchAutoConfirm
	}
	if i.MatchRebalance <= 0 {
		i.MatchRebalance = d.MatchRebalance
	}
	return i
}

const (
	// ExpiringSoonLead — за сколько до дедлайна подтверждения слать напоминание.
	ExpiringSoonLead = 30 * time.Minute
	// AutoConfirmLead — минимальный запас до старта слота для автоподтверждения.
	AutoConfirmLead = time.Hour
	// RebalanceMinDiff — разница численности сторон, после которой матч выравнивается.
	RebalanceMinDiff = 2
)

// ReservationMaintainer — то, что планировщику нужно от сервиса броней.
type ReservationMaintainer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, []error)
	NotifyExpiringSoon(ctx context.Context, now time.Time, lead time.Duration) error
}

// SlotMaintainer — то, что планировщику нужно от сервиса слотов.
type SlotMaintainer interface {
	PruneExpired(ctx context.Context, now time.Time) (int, []error)
}

// MatchMaintainer — то, что планировщику нужно от сервиса матчей.
type MatchMaintainer interface {
	Cancel(ctx context.Context, matchID int, reason string) error
	Confirm(ctx context.Context, matchID int) error
	Rebalance(ctx context.Context, matchID int) error
}

// Scheduler гоняет фоновые задачи жизненного цикла: каждая в своей горутине
// со своим тикером, сбой одной сущности не останавливает обход остальных.
type Scheduler struct {
	reservations ReservationMaintainer
	slots        SlotMaintainer
	matches      MatchMaintainer
	matchRepo    repositories.MatchRepository
	intervals    Intervals
	logger       *slog.Logger
}

func New(
	reservations ReservationMaintainer,
	slots SlotMaintainer,
	matches MatchMaintainer,
	matchRepo repositories.MatchRepository,
	intervals Intervals,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		reservations: reservations,
		slots:        slots,
		matches:      matches,
		matchRepo:    matchRepo,
		intervals:    intervals.withDefaults(),
		logger:       logger,
	}
}

// Run блокируется до отмены контекста. Каждая задача выполняется сразу при
// старте, дальше по тикеру.
func (s *Scheduler) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return s.loop(ctx, "reservation_expiry", s.intervals.ReservationExpiry, s.runReservationExpiry)
	})
	group.Go(func() error {
		return s.loop(ctx, "slot_pruning", s.intervals.SlotPruning, s.runSlotPruning)
	})
	group.Go(func() error {
		return s.loop(ctx, "match_auto_cancel", s.intervals.MatchAutoCancel, s.runMatchAutoCancel)
	})
	group.Go(func() error {
		return s.loop(ctx, "match_auto_confirm", s.intervals.MatchAutoConfirm, s.runMatchAutoConfirm)
	})
	group.Go(func() error {
		return s.loop(ctx, "match_rebalance", s.intervals.MatchRebalance, s.runMatchRebalance)
	})

	return group.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("scheduler job started", slog.String("job", name), slog.Duration("interval", interval))

	// Первый прогон сразу при старте, дальше по тикеру.
	if err := job(ctx); err != nil {
		s.logger.Error("scheduler job failed", slog.String("job", name), slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler job stopped", slog.String("job", name))
			return ctx.Err()
		case <-ticker.C:
			if err := job(ctx); err != nil {
				s.logger.Error("scheduler job failed", slog.String("job", name), slog.Any("error", err))
			}
		}
	}
}

func (s *Scheduler) runReservationExpiry(ctx context.Context) error {
	now := time.Now()
	expired, errs := s.reservations.ExpireStale(ctx, now)
	for _, err := range errs {
		s.logger.Error("failed to expire reservation", slog.Any("error", err))
	}
	if expired > 0 {
		s.logger.Info("expired stale reservations", slog.Int("count", expired))
	}
	return s.reservations.NotifyExpiringSoon(ctx, now, ExpiringSoonLead)
}

func (s *Scheduler) runSlotPruning(ctx context.Context) error {
	pruned, errs := s.slots.PruneExpired(ctx, time.Now())
	for _, err := range errs {
		s.logger.Error("failed to prune slot", slog.Any("error", err))
	}
	if pruned > 0 {
		s.logger.Info("pruned expired slots", slog.Int("count", pruned))
	}
	return nil
}

// runMatchAutoCancel отменяет forming-матчи, чей слот уже начался: минимум
// игроков так и не набрался.
func (s *Scheduler) runMatchAutoCancel(ctx context.Context) error {
	matches, err := s.matchRepo.ListFormingPastSlotStart(ctx, time.Now())
	if err != nil {
		return err
	}
	for i := range matches {
		match := &matches[i]
		if err := s.matches.Cancel(ctx, match.ID, "not enough players before slot start"); err != nil {
			s.logger.Error("failed to auto-cancel match",
				slog.Int("match_id", match.ID), slog.Any("error", err))
		}
	}
	return nil
}

// runMatchAutoConfirm подтверждает собравшие минимум матчи, до старта слота
// которых остался хотя бы час.
func (s *Scheduler) runMatchAutoConfirm(ctx context.Context) error {
	matches, err := s.matchRepo.ListFormingReadyToConfirm(ctx, time.Now().Add(AutoConfirmLead))
	if err != nil {
		return err
	}
	for i := range matches {
		match := &matches[i]
		if !match.CanStart() {
			continue
		}
		if err := s.matches.Confirm(ctx, match.ID); err != nil {
			s.logger.Error("failed to auto-confirm match",
				slog.Int("match_id", match.ID), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Scheduler) runMatchRebalance(ctx context.Context) error {
	matches, err := s.matchRepo.ListFormingUnbalanced(ctx, RebalanceMinDiff)
	if err != nil {
		return err
	}
	for i := range matches {
		match := &matches[i]
		if match.Status != models.MatchStatusForming {
			continue
		}
		if err := s.matches.Rebalance(ctx, match.ID); err != nil {
			s.logger.Error("failed to rebalance match",
				slog.Int("match_id", match.ID), slog.Any("error", err))
		}
	}
	return nil
}
