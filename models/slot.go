package models

import "time"

// SlotStatus представляет статусы слота, соответствующие ENUM в БД.
type SlotStatus string

const (
	SlotStatusAvailable   SlotStatus = "available"
	SlotStatusReserved    SlotStatus = "reserved"
	SlotStatusFull        SlotStatus = "full"
	SlotStatusMaintenance SlotStatus = "maintenance"
	SlotStatusCancelled   SlotStatus = "cancelled"
)

// Slot представляет бронируемый интервал времени на конкретном поле.
type Slot struct {
	ID                        int        `json:"id" db:"id"`
	FieldID                   int        `json:"field_id" db:"field_id"`
	StartTime                 time.Time  `json:"start_time" db:"start_time"`
	EndTime                   time.Time  `json:"end_time" db:"end_time"`
	Price                     float64    `json:"price" db:"price"`
	MaxCapacity               int        `json:"max_capacity" db:"max_capacity"`
	CurrentBookings           int        `json:"current_bookings" db:"current_bookings"`
	Status                    SlotStatus `json:"status" db:"status"`
	Premium                   bool       `json:"premium" db:"premium"`
	CancellationDeadlineHours int        `json:"cancellation_deadline_hours" db:"cancellation_deadline_hours"`
	CreatedAt                 time.Time  `json:"created_at" db:"created_at"`
}

// AvailableSpots возвращает количество свободных мест в слоте.
func (s *Slot) AvailableSpots() int {
	spots := s.MaxCapacity - s.CurrentBookings
	if spots < 0 {
		return 0
	}
	return spots
}

// IsBookable сообщает, принимает ли слот новые брони на момент now.
// Административные статусы (maintenance/cancelled) бронь не принимают.
func (s *Slot) IsBookable(now time.Time) bool {
	if s.Status == SlotStatusMaintenance || s.Status == SlotStatusCancelled {
		return false
	}
	if !s.StartTime.After(now) {
		return false
	}
	return s.CurrentBookings < s.MaxCapacity
}

// CancellationDeadline возвращает момент, после которого пользовательская
// отмена брони на этот слот запрещена.
func (s *Slot) CancellationDeadline() time.Time {
	return s.StartTime.Add(-time.Duration(s.CancellationDeadlineHours) * time.Hour)
}

// DerivedStatus вычисляет статус слота из счётчика занятых мест.
// Административные статусы липкие и отсюда не пересчитываются.
func (s *Slot) DerivedStatus() SlotStatus {
	if s.Status == SlotStatusMaintenance || s.Status == SlotStatusCancelled {
		return s.Status
	}
	switch {
	case s.CurrentBookings >= s.MaxCapacity:
		return SlotStatusFull
	case s.CurrentBookings > 0:
		return SlotStatusReserved
	default:
		return SlotStatusAvailable
	}
}
