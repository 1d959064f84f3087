// File: models/roster.go
package models

import "time"

type RosterEntryStatus string

const (
	RosterEntryActive  RosterEntryStatus = "active"
	RosterEntryRemoved RosterEntryStatus = "removed"
)

// RosterEntry связывает пользователя с бронью или матчем.
// Заполнено ровно одно из полей ReservationID/MatchID (чек-констрейнт в БД).
type RosterEntry struct {
	ID            int               `json:"id" db:"id"`
	ReservationID *int              `json:"reservation_id,omitempty" db:"reservation_id"`
	MatchID       *int              `json:"match_id,omitempty" db:"match_id"`
	UserID        int               `json:"user_id" db:"user_id"`
	DisplayName   string            `json:"display_name" db:"display_name"`
	Position      *PlayerPosition   `json:"position,omitempty" db:"position"`
	TeamSide      *TeamSide         `json:"team_side,omitempty" db:"team_side"`
	IsCaptain     bool              `json:"is_captain" db:"is_captain"`
	Status        RosterEntryStatus `json:"status" db:"status"`
	JoinedAt      time.Time         `json:"joined_at" db:"joined_at"`
}
