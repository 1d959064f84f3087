package matchmaking

import (
	"time"

	"github.com/Dosada05/field-booking-system/models"
)

const (
	// ProfileWindow — глубина истории завершённых матчей для профиля.
	ProfileWindow = 90 * 24 * time.Hour

	// Порог частоты, после которого тип матча считается предпочитаемым.
	preferredTypeShare = 0.30
	// Порог частоты для предпочитаемого часа начала.
	preferredHourShare = 0.20
)

// Profile — игровой профиль, построенный по истории завершённых матчей.
type Profile struct {
	PreferredTypes []models.MatchType
	PreferredHours []int
	AverageSkill   models.SkillLevel
	MatchesPerWeek float64
	CompletedTotal int
}

// HasHistory сообщает, набралось ли в окне хоть что-то для профиля.
func (p Profile) HasHistory() bool {
	return p.CompletedTotal > 0
}

// PrefersType сообщает, входит ли тип в предпочитаемые.
func (p Profile) PrefersType(t models.MatchType) bool {
	for _, pt := range p.PreferredTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// PrefersHour сообщает, входит ли час начала в предпочитаемые.
func (p Profile) PrefersHour(hour int) bool {
	for _, ph := range p.PreferredHours {
		if ph == hour {
			return true
		}
	}
	return false
}

// HistoryEntry — завершённый матч пользователя со временем начала слота.
type HistoryEntry struct {
	Match     *models.Match
	SlotStart time.Time
}

// BuildProfile строит профиль по истории за окно, заканчивающееся в now.
// Записи вне окна отбрасываются.
func BuildProfile(history []HistoryEntry, now time.Time) Profile {
	cutoff := now.Add(-ProfileWindow)

	typeCounts := make(map[models.MatchType]int)
	hourCounts := make(map[int]int)
	skillTotal := 0.0
	total := 0

	for _, h := range history {
		if h.Match == nil || h.Match.CompletedAt == nil || h.Match.CompletedAt.Before(cutoff) {
			continue
		}
		total++
		typeCounts[h.Match.Type]++
		hourCounts[h.SlotStart.Hour()]++
		skillTotal += levelOrdinal(h.Match.SkillLevel)
	}

	profile := Profile{CompletedTotal: total}
	if total == 0 {
		return profile
	}

	for t, count := range typeCounts {
		if float64(count)/float64(total) >= preferredTypeShare {
			profile.PreferredTypes = append(profile.PreferredTypes, t)
		}
	}
	for hour, count := range hourCounts {
		if float64(count)/float64(total) >= preferredHourShare {
			profile.PreferredHours = append(profile.PreferredHours, hour)
		}
	}

	profile.AverageSkill = nearestLevel(skillTotal / float64(total))
	profile.MatchesPerWeek = float64(total) / (ProfileWindow.Hours() / (7 * 24))
	return profile
}

// ProfileScore оценивает матч против профиля той же шкалой [0, MaxScore]:
// предпочитаемый тип и час заменяют явные предпочтения, средний уровень
// истории — заявленный уровень.
func ProfileScore(p Profile, c Candidate, now time.Time, w Weights) float64 {
	if c.Match == nil {
		return 0
	}

	var score float64

	if p.PrefersType(c.Match.Type) {
		score += w.TypeMatch
	}
	if p.PrefersHour(c.SlotStart.Hour()) {
		score += w.LocationMatch // вес "знакомого времени" такой же, как у локации
	}

	distance := p.AverageSkill.Distance(c.Match.SkillLevel)
	proximity := 1.0 - float64(distance)/4.0
	if proximity > 0 {
		score += w.SkillProximity * proximity
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

	if score > MaxScore {
		return MaxScore
	}
	return score
}

func levelOrdinal(level models.SkillLevel) float64 {
	switch level {
	case models.SkillBeginner:
		return 0
	case models.SkillAmateur:
		return 1
	case models.SkillIntermediate:
		return 2
	case models.SkillAdvanced:
		return 3
	case models.SkillProfessional:
		return 4
	default:
		return 2
	}
}

func nearestLevel(ordinal float64) models.SkillLevel {
	levels := []models.SkillLevel{
		models.SkillBeginner, models.SkillAmateur, models.SkillIntermediate,
		models.SkillAdvanced, models.SkillProfessional,
	}
	idx := int(ordinal + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(levels) {
		idx = len(levels) - 1
	}
	return levels[idx]
}
