package services

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок ядра. Каждая конкретная ошибка оборачивает ровно один
// вид, чтобы граница (HTTP, gRPC — вне ядра) классифицировала их через
// errors.Is и строила ответ: Conflict можно повторить, Expired — нет.
var (
	ErrNotFound       = errors.New("requested resource not found")
	ErrValidation     = errors.New("validation failed")
	ErrCapacity       = errors.New("capacity exceeded")
	ErrConflict       = errors.New("conflicting operation")
	ErrExpired        = errors.New("deadline passed")
	ErrStateViolation = errors.New("operation illegal for current state")
)

// Ошибки слотов и ёмкости
var (
	ErrSlotNotFound        = fmt.Errorf("%w: slot", ErrNotFound)
	ErrSlotCapacity        = fmt.Errorf("%w: not enough spots in slot", ErrCapacity)
	ErrSlotNotBookable     = fmt.Errorf("%w: slot is not accepting bookings", ErrValidation)
	ErrSlotInPast          = fmt.Errorf("%w: slot start time is in the past", ErrValidation)
	ErrSlotHasBookings     = fmt.Errorf("%w: slot still has active bookings", ErrStateViolation)
	ErrSlotInvalidInterval = fmt.Errorf("%w: slot end time must be after start time", ErrValidation)
	ErrFieldNotFound       = fmt.Errorf("%w: field", ErrNotFound)
)

// Ошибки жизненного цикла брони
var (
	ErrReservationNotFound     = fmt.Errorf("%w: reservation", ErrNotFound)
	ErrDuplicateReservation    = fmt.Errorf("%w: user already holds a reservation for this slot", ErrConflict)
	ErrRateLimitExceeded       = fmt.Errorf("%w: daily reservation limit reached", ErrValidation)
	ErrInvalidReservationType  = fmt.Errorf("%w: unknown reservation type", ErrValidation)
	ErrNotEnoughPlayers        = fmt.Errorf("%w: player count below type minimum", ErrValidation)
	ErrReservationExpired      = fmt.Errorf("%w: confirmation deadline passed", ErrExpired)
	ErrReservationTerminal     = fmt.Errorf("%w: reservation is in a terminal state", ErrStateViolation)
	ErrReservationNotPending   = fmt.Errorf("%w: reservation is not pending", ErrStateViolation)
	ErrReservationNotConfirmed = fmt.Errorf("%w: reservation is not confirmed", ErrStateViolation)
	ErrReservationNotPaid      = fmt.Errorf("%w: reservation is not fully paid", ErrStateViolation)
	ErrReservationNotFinished  = fmt.Errorf("%w: slot has not ended yet", ErrStateViolation)
	ErrCancellationDeadline    = fmt.Errorf("%w: slot cancellation deadline passed", ErrExpired)
	ErrConcurrentStatusChange  = fmt.Errorf("%w: status changed concurrently, retry", ErrConflict)
)

// Ошибки ростера
var (
	ErrMemberNotFound  = fmt.Errorf("%w: roster member", ErrNotFound)
	ErrAlreadyMember   = fmt.Errorf("%w: user is already on the roster", ErrConflict)
	ErrParentFull      = fmt.Errorf("%w: roster is full", ErrCapacity)
	ErrParentFinalized = fmt.Errorf("%w: roster can no longer be modified", ErrStateViolation)
)

// Ошибки матчей
var (
	ErrMatchNotFound      = fmt.Errorf("%w: match", ErrNotFound)
	ErrMatchFull          = fmt.Errorf("%w: both teams are full", ErrCapacity)
	ErrRegistrationClosed = fmt.Errorf("%w: match registration closed", ErrExpired)
	ErrMatchNotForming    = fmt.Errorf("%w: match is not forming", ErrStateViolation)
	ErrMatchNotConfirmed  = fmt.Errorf("%w: match is not confirmed", ErrStateViolation)
	ErrMatchNotInProgress = fmt.Errorf("%w: match is not in progress", ErrStateViolation)
	ErrMatchNotReady      = fmt.Errorf("%w: not enough players to start", ErrValidation)
	ErrCreatorCannotLeave = fmt.Errorf("%w: creator must cancel the match instead of leaving", ErrValidation)
	ErrFieldTooSmall      = fmt.Errorf("%w: field capacity below required team sizes", ErrValidation)
	ErrTeamNotFound       = fmt.Errorf("%w: team", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("%w: user", ErrNotFound)
)
