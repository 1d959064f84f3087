package models

import "time"

type MatchStatus string

const (
	MatchStatusForming    MatchStatus = "forming"
	MatchStatusConfirmed  MatchStatus = "confirmed"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusCompleted  MatchStatus = "completed"
	MatchStatusCancelled  MatchStatus = "cancelled"
	MatchStatusPostponed  MatchStatus = "postponed"
)

func (s MatchStatus) IsTerminal() bool {
	switch s {
	case MatchStatusCompleted, MatchStatusCancelled, MatchStatusPostponed:
		return true
	}
	return false
}

type MatchType string

const (
	MatchTypeFiveVFive     MatchType = "5v5"
	MatchTypeSevenVSeven   MatchType = "7v7"
	MatchTypeElevenVEleven MatchType = "11v11"
	MatchTypeFlexible      MatchType = "flexible"
	MatchTypeTraining      MatchType = "training"
	MatchTypeTournament    MatchType = "tournament"
)

// PlayersPerTeam возвращает размер команды для типа матча.
func (t MatchType) PlayersPerTeam() int {
	switch t {
	case MatchTypeFiveVFive:
		return 5
	case MatchTypeSevenVSeven:
		return 7
	case MatchTypeElevenVEleven:
		return 11
	default:
		return 5
	}
}

// MinPlayersToStart возвращает минимальное общее число игроков для старта.
func (t MatchType) MinPlayersToStart() int {
	switch t {
	case MatchTypeFiveVFive:
		return 8
	case MatchTypeSevenVSeven:
		return 10
	case MatchTypeElevenVEleven:
		return 16
	default:
		return 6
	}
}

// TeamSide представляет сторону (A/B) внутри одного матча.
// Не путать с постоянной командой (models.Team).
type TeamSide string

const (
	TeamSideA TeamSide = "A"
	TeamSideB TeamSide = "B"
)

type MatchWinner string

const (
	MatchWinnerTeamA MatchWinner = "A"
	MatchWinnerTeamB MatchWinner = "B"
	MatchWinnerDraw  MatchWinner = "draw"
)

// Match представляет матчмейкинг-событие, привязанное к одному слоту и полю.
type Match struct {
	ID                   int          `json:"id" db:"id"`
	CreatorID            int          `json:"creator_id" db:"creator_id"`
	FieldID              int          `json:"field_id" db:"field_id"`
	SlotID               int          `json:"slot_id" db:"slot_id"`
	Title                string       `json:"title" db:"title"`
	Type                 MatchType    `json:"type" db:"type"`
	SkillLevel           SkillLevel   `json:"skill_level" db:"skill_level"`
	Public               bool         `json:"public" db:"public"`
	Status               MatchStatus  `json:"status" db:"status"`
	MaxPlayersPerTeam    int          `json:"max_players_per_team" db:"max_players_per_team"`
	MinPlayersToStart    int          `json:"min_players_to_start" db:"min_players_to_start"`
	CurrentPlayersTeamA  int          `json:"current_players_team_a" db:"current_players_team_a"`
	CurrentPlayersTeamB  int          `json:"current_players_team_b" db:"current_players_team_b"`
	RegistrationDeadline time.Time    `json:"registration_deadline" db:"registration_deadline"`
	EntryFee             float64      `json:"entry_fee" db:"entry_fee"`
	AutoStart            bool         `json:"auto_start" db:"auto_start"`
	ScoreTeamA           *int         `json:"score_team_a,omitempty" db:"score_team_a"`
	ScoreTeamB           *int         `json:"score_team_b,omitempty" db:"score_team_b"`
	WinnerTeam           *MatchWinner `json:"winner_team,omitempty" db:"winner_team"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt            time.Time    `json:"created_at" db:"created_at"`
}

// TotalPlayers возвращает суммарное число игроков в обеих командах.
func (m *Match) TotalPlayers() int {
	return m.CurrentPlayersTeamA + m.CurrentPlayersTeamB
}

// IsFull сообщает, заполнены ли обе команды до предела.
func (m *Match) IsFull() bool {
	return m.CurrentPlayersTeamA >= m.MaxPlayersPerTeam &&
		m.CurrentPlayersTeamB >= m.MaxPlayersPerTeam
}

// CanStart сообщает, набран ли минимум игроков для старта.
func (m *Match) CanStart() bool {
	return m.TotalPlayers() >= m.MinPlayersToStart
}

// RegistrationOpen сообщает, открыта ли регистрация на момент now.
func (m *Match) RegistrationOpen(now time.Time) bool {
	return m.Status == MatchStatusForming && now.Before(m.RegistrationDeadline)
}
