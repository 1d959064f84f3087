package services

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Dosada05/field-booking-system/matchmaking"
	"github.com/Dosada05/field-booking-system/models"
	"github.com/Dosada05/field-booking-system/repositories"
)

// DefaultRecommendationLimit ограничивает размер выдачи рекомендателя.
const DefaultRecommendationLimit = 10

// Recommendation — матч с его оценкой совместимости.
type Recommendation struct {
	Match     *models.Match `json:"match"`
	SlotStart time.Time     `json:"slot_start"`
	FieldCity string        `json:"field_city"`
	Score     float64       `json:"score"`
}

// MatchmakingService подбирает пользователю открытые матчи: по явным
// предпочтениям или по профилю, построенному на истории завершённых матчей.
type MatchmakingService struct {
	matchRepo  repositories.MatchRepository
	slotRepo   repositories.SlotRepository
	fieldRepo  repositories.FieldRepository
	rosterRepo repositories.RosterRepository
	userRepo   repositories.UserRepository
	weights    matchmaking.Weights
	logger     *slog.Logger
}

func NewMatchmakingService(
	matchRepo repositories.MatchRepository,
	slotRepo repositories.SlotRepository,
	fieldRepo repositories.FieldRepository,
	rosterRepo repositories.RosterRepository,
	userRepo repositories.UserRepository,
	logger *slog.Logger,
) *MatchmakingService {
	return &MatchmakingService{
		matchRepo:  matchRepo,
		slotRepo:   slotRepo,
		fieldRepo:  fieldRepo,
		rosterRepo: rosterRepo,
		userRepo:   userRepo,
		weights:    matchmaking.DefaultWeights(),
		logger:     logger,
	}
}

// Score возвращает оценку совместимости одного матча с предпочтениями.
func (s *MatchmakingService) Score(ctx context.Context, prefs matchmaking.Preferences, matchID int) (float64, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return 0, mapMatchRepoError(err)
	}
	candidate, err := s.buildCandidate(ctx, match)
	if err != nil {
		return 0, err
	}
	return matchmaking.Score(prefs, candidate, time.Now(), s.weights), nil
}

// FindBest возвращает до limit открытых публичных матчей, отсортированных по
// убыванию оценки. Матчи, где пользователь уже в составе, исключаются.
func (s *MatchmakingService) FindBest(ctx context.Context, userID int, prefs matchmaking.Preferences, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = DefaultRecommendationLimit
	}
	now := time.Now()

	candidates, err := s.openCandidates(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, 0, len(candidates))
	for _, c := range candidates {
		recs = append(recs, Recommendation{
			Match:     c.Match,
			SlotStart: c.SlotStart,
			FieldCity: c.FieldCity,
			Score:     matchmaking.Score(prefs, c, now, s.weights),
		})
	}
	return topRecommendations(recs, limit), nil
}

// Suggestions строит рекомендации по истории пользователя за последние
// месяцы. Без истории — холодный старт: падаем обратно на заявленные в
// профиле пользователя уровень и город.
func (s *MatchmakingService) Suggestions(ctx context.Context, userID int, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = DefaultRecommendationLimit
	}
	now := time.Now()

	history, err := s.userHistory(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	profile := matchmaking.BuildProfile(history, now)

	if !profile.HasHistory() {
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		prefs := matchmaking.Preferences{
			SkillLevel: user.SkillLevel,
			City:       derefString(user.City),
		}
		return s.FindBest(ctx, userID, prefs, limit)
	}

	candidates, err := s.openCandidates(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, 0, len(candidates))
	for _, c := range candidates {
		recs = append(recs, Recommendation{
			Match:     c.Match,
			SlotStart: c.SlotStart,
			FieldCity: c.FieldCity,
			Score:     matchmaking.ProfileScore(profile, c, now, s.weights),
		})
	}
	return topRecommendations(recs, limit), nil
}

// BuildProfile отдаёт игровой профиль пользователя как есть.
func (s *MatchmakingService) BuildProfile(ctx context.Context, userID int) (matchmaking.Profile, error) {
	now := time.Now()
	history, err := s.userHistory(ctx, userID, now)
	if err != nil {
		return matchmaking.Profile{}, err
	}
	return matchmaking.BuildProfile(history, now), nil
}

// openCandidates собирает открытые публичные матчи с данными их слотов и
// полей. Матч с недостающим слотом или полем пропускается с предупреждением,
// а не валит всю выдачу.
func (s *MatchmakingService) openCandidates(ctx context.Context, userID int, now time.Time) ([]matchmaking.Candidate, error) {
	matches, err := s.matchRepo.ListOpenForRegistration(ctx, now)
	if err != nil {
		return nil, err
	}

	joinedIDs, err := s.rosterRepo.ListMatchIDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	joined := make(map[int]struct{}, len(joinedIDs))
	for _, id := range joinedIDs {
		joined[id] = struct{}{}
	}

	candidates := make([]matchmaking.Candidate, 0, len(matches))
	for i := range matches {
		match := &matches[i]
		if !match.Public || match.IsFull() {
			continue
		}
		if _, ok := joined[match.ID]; ok {
			continue
		}
		candidate, err := s.buildCandidate(ctx, match)
		if err != nil {
			s.logger.Warn("skipping matchmaking candidate",
				slog.Int("match_id", match.ID), slog.Any("error", err))
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (s *MatchmakingService) buildCandidate(ctx context.Context, match *models.Match) (matchmaking.Candidate, error) {
	slot, err := s.slotRepo.GetByID(ctx, match.SlotID)
	if err != nil {
		return matchmaking.Candidate{}, mapSlotRepoError(err)
	}
	field, err := s.fieldRepo.GetByID(ctx, match.FieldID)
	if err != nil {
		return matchmaking.Candidate{}, err
	}
	return matchmaking.Candidate{
		Match:     match,
		SlotStart: slot.StartTime,
		FieldCity: field.City,
	}, nil
}

func (s *MatchmakingService) userHistory(ctx context.Context, userID int, now time.Time) ([]matchmaking.HistoryEntry, error) {
	since := now.Add(-matchmaking.ProfileWindow)
	matches, err := s.matchRepo.ListCompletedByUserSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	history := make([]matchmaking.HistoryEntry, 0, len(matches))
	for i := range matches {
		match := &matches[i]
		slot, err := s.slotRepo.GetByID(ctx, match.SlotID)
		if err != nil {
			s.logger.Warn("skipping history entry without slot",
				slog.Int("match_id", match.ID), slog.Any("error", err))
			continue
		}
		history = append(history, matchmaking.HistoryEntry{Match: match, SlotStart: slot.StartTime})
	}
	return history, nil
}

// topRecommendations сортирует по убыванию оценки (при равенстве раньше тот,
// чей слот ближе) и обрезает до limit.
func topRecommendations(recs []Recommendation, limit int) []Recommendation {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].SlotStart.Before(recs[j].SlotStart)
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
