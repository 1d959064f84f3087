// File: field-booking-system/services/helpers.go
package services

import (
	"errors"
	"time"

	"github.com/Dosada05/field-booking-system/models"
	"github.com/Dosada05/field-booking-system/repositories"
)

// --- Общие хелперы ---

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func validateSlotInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return ErrSlotInvalidInterval
	}
	return nil
}

// isValidMatchTransition проверяет переход по графу статусов матча.
// Конечные статусы переходов не имеют; повтор текущего статуса не переход.
func isValidMatchTransition(current, next models.MatchStatus) bool {
	allowedTransitions := map[models.MatchStatus][]models.MatchStatus{
		models.MatchStatusForming:    {models.MatchStatusConfirmed, models.MatchStatusCancelled, models.MatchStatusPostponed},
		models.MatchStatusConfirmed:  {models.MatchStatusInProgress, models.MatchStatusCancelled},
		models.MatchStatusInProgress: {models.MatchStatusCompleted},
		models.MatchStatusCompleted:  {},
		models.MatchStatusCancelled:  {},
		models.MatchStatusPostponed:  {},
	}
	for _, allowed := range allowedTransitions[current] {
		if next == allowed {
			return true
		}
	}
	return false
}

// mapSlotRepoError переводит ошибки репозитория слотов в ошибки ядра.
func mapSlotRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrSlotNotFound):
		return ErrSlotNotFound
	case errors.Is(err, repositories.ErrSlotCapacityExceeded):
		return ErrSlotCapacity
	case errors.Is(err, repositories.ErrSlotNotBookable):
		return ErrSlotNotBookable
	case errors.Is(err, repositories.ErrSlotInUse):
		return ErrSlotHasBookings
	default:
		return err
	}
}

func mapReservationRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrReservationNotFound):
		return ErrReservationNotFound
	case errors.Is(err, repositories.ErrReservationStatusConflict):
		return ErrConcurrentStatusChange
	default:
		return err
	}
}

func mapMatchRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrMatchNotFound):
		return ErrMatchNotFound
	case errors.Is(err, repositories.ErrMatchStatusConflict):
		return ErrConcurrentStatusChange
	case errors.Is(err, repositories.ErrMatchTeamFull):
		return ErrMatchFull
	default:
		return err
	}
}
