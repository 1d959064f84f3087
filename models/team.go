package models

import "time"

// Team представляет постоянную команду с капитаном и уровнем.
// Не путать с TeamSide — эфемерным разбиением внутри матча.
type Team struct {
	ID         int        `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	CaptainID  int        `json:"captain_id" db:"captain_id"`
	MaxMembers int        `json:"max_members" db:"max_members"`
	SkillLevel SkillLevel `json:"skill_level" db:"skill_level"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

type TeamMember struct {
	ID       int       `json:"id" db:"id"`
	TeamID   int       `json:"team_id" db:"team_id"`
	UserID   int       `json:"user_id" db:"user_id"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}
