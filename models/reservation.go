package models

import "time"

// ReservationStatus представляет статусы брони, соответствующие ENUM в БД.
type ReservationStatus string

const (
	ReservationPending                  ReservationStatus = "pending"
	ReservationAwaitingPayment          ReservationStatus = "awaiting_payment"
	ReservationConfirmed                ReservationStatus = "confirmed"
	ReservationCompleted                ReservationStatus = "completed"
	ReservationCancelled                ReservationStatus = "cancelled"
	ReservationCancelledByEstablishment ReservationStatus = "cancelled_by_establishment"
	ReservationExpired                  ReservationStatus = "expired"
	ReservationRejected                 ReservationStatus = "rejected"
)

// IsTerminal сообщает, является ли статус конечным. Конечные брони неизменяемы.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationCompleted, ReservationCancelled, ReservationCancelledByEstablishment,
		ReservationExpired, ReservationRejected:
		return true
	}
	return false
}

type ReservationType string

const (
	ReservationTypeIndividual   ReservationType = "individual"
	ReservationTypeTeam         ReservationType = "team"
	ReservationTypeMatchmaking  ReservationType = "matchmaking"
	ReservationTypePrivateEvent ReservationType = "private_event"
	ReservationTypeTraining     ReservationType = "training"
	ReservationTypeFriendly     ReservationType = "friendly"
)

// MinPlayers возвращает минимальное число игроков для типа брони.
func (t ReservationType) MinPlayers() int {
	if t == ReservationTypeTeam {
		return 5
	}
	return 1
}

func (t ReservationType) Valid() bool {
	switch t {
	case ReservationTypeIndividual, ReservationTypeTeam, ReservationTypeMatchmaking,
		ReservationTypePrivateEvent, ReservationTypeTraining, ReservationTypeFriendly:
		return true
	}
	return false
}

// Reservation представляет бронь слота пользователем.
// Слот хранится по id; обратных ссылок на бронь слот не держит.
type Reservation struct {
	ID                   int               `json:"id" db:"id"`
	UserID               int               `json:"user_id" db:"user_id"`
	SlotID               int               `json:"slot_id" db:"slot_id"`
	Type                 ReservationType   `json:"type" db:"type"`
	Status               ReservationStatus `json:"status" db:"status"`
	NumberOfPlayers      int               `json:"number_of_players" db:"number_of_players"`
	TotalAmount          float64           `json:"total_amount" db:"total_amount"`
	PaidAmount           float64           `json:"paid_amount" db:"paid_amount"`
	ReferenceCode        string            `json:"reference_code" db:"reference_code"`
	ConfirmationDeadline time.Time         `json:"confirmation_deadline" db:"confirmation_deadline"`
	ConfirmedAt          *time.Time        `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt          *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason   *string           `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
}

// IsPaid сообщает, покрыта ли бронь оплатой полностью.
func (r *Reservation) IsPaid() bool {
	return r.PaidAmount >= r.TotalAmount
}
