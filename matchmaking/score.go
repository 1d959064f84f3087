package matchmaking

import (
	"time"

	"github.com/Dosada05/field-booking-system/models"
)

// Weights задаёт веса слагаемых оценки совместимости.
type Weights struct {
	TypeMatch      float64 // полный вес за совпадение типа матча
	SkillProximity float64 // максимум за близость уровня, линейный спад по ступеням
	TimeProximity  float64 // максимум за близкое начало (внутри 24 часов)
	FillBonus      float64 // бонус за заполненность, когда матч уже наполовину собран
	LocationMatch  float64 // совпадение города
}

// DefaultWeights — веса по умолчанию; сумма максимумов равна верхней границе шкалы.
func DefaultWeights() Weights {
	return Weights{
		TypeMatch:      3.0,
		SkillProximity: 2.5,
		TimeProximity:  2.0,
		FillBonus:      1.5,
		LocationMatch:  1.0,
	}
}

// MaxScore — верхняя граница оценки совместимости.
const MaxScore = 10.0

// Preferences — что ищет пользователь. Пустые поля не участвуют в оценке.
type Preferences struct {
	Type       models.MatchType
	SkillLevel models.SkillLevel
	City       string
}

// Candidate — открытый матч вместе с временем начала его слота и городом поля.
type Candidate struct {
	Match     *models.Match
	SlotStart time.Time
	FieldCity string
}

// Score возвращает оценку совместимости матча с предпочтениями в [0, MaxScore].
// Чистая функция: все данные приходят аргументами, включая текущее время.
func Score(prefs Preferences, c Candidate, now time.Time, w Weights) float64 {
	if c.Match == nil {
		return 0
	}

	var score float64

	if prefs.Type != "" && c.Match.Type == prefs.Type {
		score += w.TypeMatch
	}

	if prefs.SkillLevel != "" {
		// Линейный спад: каждая ступень разницы уровней снимает четверть максимума.
		distance := prefs.SkillLevel.Distance(c.Match.SkillLevel)
		proximity := 1.0 - float64(distance)/4.0
		if proximity > 0 {
			score += w.SkillProximity * proximity
		}
	}

	hoursUntil := c.SlotStart.Sub(now).Hours()
	if hoursUntil >= 0 && hoursUntil <= 24 {
		score += w.TimeProximity * (1.0 - hoursUntil/24.0)
	}

	capacity := 2 * c.Match.MaxPlayersPerTeam
	if capacity > 0 {
		fill := float64(c.Match.TotalPlayers()) / float64(capacity)
		if fill > 0.5 {
			score += w.FillBonus * fill
		}
	}

	if prefs.City != "" && c.FieldCity == prefs.City {
		score += w.LocationMatch
	}

	if score > MaxScore {
		return MaxScore
	}
	if score < 0 {
		return 0
	}
	return score
}
