package models

import "time"

type UserRole string

const (
	RolePlayer  UserRole = "player"
	RoleManager UserRole = "manager"
	RoleAdmin   UserRole = "admin"
)

// Elevated сообщает, даёт ли роль доступ к чужим броням и матчам.
func (r UserRole) Elevated() bool {
	return r == RoleManager || r == RoleAdmin
}

// SkillLevel представляет заявленный уровень игрока, соответствует ENUM в БД.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillAmateur      SkillLevel = "amateur"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillProfessional SkillLevel = "professional"
)

// Distance возвращает расстояние между уровнями в ступенях шкалы.
// Используется рекомендателем; числовой рейтинг игрока хранится отдельно
// (User.SkillRating) и от порядка констант не зависит.
func (l SkillLevel) Distance(other SkillLevel) int {
	d := l.step() - other.step()
	if d < 0 {
		return -d
	}
	return d
}

func (l SkillLevel) step() int {
	switch l {
	case SkillBeginner:
		return 0
	case SkillAmateur:
		return 1
	case SkillIntermediate:
		return 2
	case SkillAdvanced:
		return 3
	case SkillProfessional:
		return 4
	default:
		return 2
	}
}

type PlayerPosition string

const (
	PositionGoalkeeper PlayerPosition = "goalkeeper"
	PositionDefender   PlayerPosition = "defender"
	PositionMidfielder PlayerPosition = "midfielder"
	PositionForward    PlayerPosition = "forward"
)

type User struct {
	ID                int             `json:"id" db:"id"`
	FirstName         string          `json:"first_name" db:"first_name"`
	LastName          string          `json:"last_name" db:"last_name"`
	Nickname          string          `json:"nickname" db:"nickname"`
	Email             string          `json:"email" db:"email"`
	Role              UserRole        `json:"role" db:"role"`
	SkillLevel        SkillLevel      `json:"skill_level" db:"skill_level"`
	SkillRating       *float64        `json:"skill_rating,omitempty" db:"skill_rating"`
	PreferredPosition *PlayerPosition `json:"preferred_position,omitempty" db:"preferred_position"`
	City              *string         `json:"city,omitempty" db:"city"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}
