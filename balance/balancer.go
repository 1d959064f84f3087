package balance

import (
	"sort"

	"github.com/Dosada05/field-booking-system/models"
)

const (
	// DefaultRating используется при отсутствии данных об игроке (середина шкалы).
	DefaultRating = 5.0
	// GoalkeeperBonus — небольшая прибавка за вратарскую позицию: вратари
	// ценнее при разбиении, чем их полевой рейтинг.
	GoalkeeperBonus = 0.5
	// ImbalanceThreshold — допустимая разница суммарных рейтингов. Поиск
	// обменов запускается, только когда разница строго выше порога.
	ImbalanceThreshold = 3.0
)

// Player — участник разбиения: запись ростера, обогащённая рейтингом.
type Player struct {
	EntryID int
	UserID  int
	Rating  float64
}

// Assignment — результат разбиения на стороны.
type Assignment struct {
	TeamA []Player
	TeamB []Player
}

// SumA возвращает суммарный рейтинг стороны A.
func (a Assignment) SumA() float64 { return sumRatings(a.TeamA) }

// SumB возвращает суммарный рейтинг стороны B.
func (a Assignment) SumB() float64 { return sumRatings(a.TeamB) }

// Imbalance возвращает |sum(A) − sum(B)|.
func (a Assignment) Imbalance() float64 {
	d := a.SumA() - a.SumB()
	if d < 0 {
		return -d
	}
	return d
}

// Rating вычисляет числовой рейтинг игрока для разбиения.
// Берётся явный SkillRating; заявленный уровень служит запасным значением,
// отвязанным от порядка констант enum.
func Rating(user *models.User) float64 {
	r := DefaultRating
	if user != nil {
		if user.SkillRating != nil {
			r = *user.SkillRating
		} else {
			r = levelRating(user.SkillLevel)
		}
		if user.PreferredPosition != nil && *user.PreferredPosition == models.PositionGoalkeeper {
			r += GoalkeeperBonus
		}
	}
	return r
}

func levelRating(level models.SkillLevel) float64 {
	switch level {
	case models.SkillBeginner:
		return 2.0
	case models.SkillAmateur:
		return 4.0
	case models.SkillIntermediate:
		return 6.0
	case models.SkillAdvanced:
		return 8.0
	case models.SkillProfessional:
		return 10.0
	default:
		return DefaultRating
	}
}

// FormTeams распределяет игроков по сторонам: сортировка по убыванию рейтинга,
// раздача поочерёдно (сильнейший — в A), затем поиск одиночных обменов,
// уменьшающих дисбаланс. Один проход без глобальной оптимизации — осознанный
// компромисс: результат стабилен и для реальных размеров команд достаточен.
func FormTeams(players []Player) Assignment {
	sorted := make([]Player, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Rating != sorted[j].Rating {
			return sorted[i].Rating > sorted[j].Rating
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	assignment := Assignment{
		TeamA: make([]Player, 0, (len(sorted)+1)/2),
		TeamB: make([]Player, 0, len(sorted)/2),
	}
	for i, p := range sorted {
		if i%2 == 0 {
			assignment.TeamA = append(assignment.TeamA, p)
		} else {
			assignment.TeamB = append(assignment.TeamB, p)
		}
	}

	return improveBySwaps(assignment)
}

// improveBySwaps ищет обмен пары игроков между сторонами, сильнее всего
// сокращающий дисбаланс, и применяет его только при строгом улучшении.
// Останавливается, когда улучшающих обменов нет или дисбаланс в допуске.
func improveBySwaps(assignment Assignment) Assignment {
	for assignment.Imbalance() > ImbalanceThreshold &&
		len(assignment.TeamA) >= 2 && len(assignment.TeamB) >= 2 {

		current := assignment.Imbalance()
		bestI, bestJ := -1, -1
		bestImbalance := current

		for i, pa := range assignment.TeamA {
			for j, pb := range assignment.TeamB {
				candidate := swappedImbalance(assignment, pa.Rating, pb.Rating)
				if candidate < bestImbalance {
					bestImbalance = candidate
					bestI, bestJ = i, j
				}
			}
		}

		if bestI < 0 {
			break // улучшающих обменов нет
		}
		assignment.TeamA[bestI], assignment.TeamB[bestJ] =
			assignment.TeamB[bestJ], assignment.TeamA[bestI]
	}
	return assignment
}

func swappedImbalance(a Assignment, ratingA, ratingB float64) float64 {
	d := (a.SumA() - ratingA + ratingB) - (a.SumB() - ratingB + ratingA)
	if d < 0 {
		return -d
	}
	return d
}

func sumRatings(players []Player) float64 {
	var sum float64
	for _, p := range players {
		sum += p.Rating
	}
	return sum
}
