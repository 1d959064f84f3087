package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/field-booking-system/balance"
	"github.com/Dosada05/field-booking-system/events"
	"github.com/Dosada05/field-booking-system/models"
	"github.com/Dosada05/field-booking-system/repositories"
)

// RegistrationLead — за сколько до начала слота закрывается регистрация.
const RegistrationLead = 30 * time.Minute

// MatchService инкапсулирует формирование матчей: создание, набор игроков
// по сторонам, подтверждение, проведение и балансировку составов.
type MatchService struct {
	matchRepo  repositories.MatchRepository
	slotRepo   repositories.SlotRepository
	fieldRepo  repositories.FieldRepository
	rosterRepo repositories.RosterRepository
	userRepo   repositories.UserRepository
	teamRepo   repositories.TeamRepository
	ledger     CapacityLedger
	publisher  events.Publisher
	logger     *slog.Logger
}

func NewMatchService(
	matchRepo repositories.MatchRepository,
	slotRepo repositories.SlotRepository,
	fieldRepo repositories.FieldRepository,
	rosterRepo repositories.RosterRepository,
	userRepo repositories.UserRepository,
	teamRepo repositories.TeamRepository,
	ledger CapacityLedger,
	publisher events.Publisher,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		matchRepo:  matchRepo,
		slotRepo:   slotRepo,
		fieldRepo:  fieldRepo,
		rosterRepo: rosterRepo,
		userRepo:   userRepo,
		teamRepo:   teamRepo,
		ledger:     ledger,
		publisher:  publisher,
		logger:     logger,
	}
}

type CreateMatchParams struct {
	CreatorID  int
	FieldID    int
	SlotID     int
	Title      string
	Type       models.MatchType
	SkillLevel models.SkillLevel
	Public     bool
	EntryFee   float64
	AutoStart  bool
}

// CreateMatch создаёт матч в статусе forming и записывает создателя в состав.
// Размер команд и минимум для старта выводятся из типа; матч удерживает в
// слоте места под полные составы через CapacityLedger.
func (s *MatchService) CreateMatch(ctx context.Context, params CreateMatchParams) (*models.Match, error) {
	if params.Title == "" {
		return nil, fmt.Errorf("%w: match title is required", ErrValidation)
	}
	if params.EntryFee < 0 {
		return nil, fmt.Errorf("%w: entry fee cannot be negative", ErrValidation)
	}

	perTeam := params.Type.PlayersPerTeam()
	requiredTotal := 2 * perTeam

	field, err := s.fieldRepo.GetByID(ctx, params.FieldID)
	if err != nil {
		if errors.Is(err, repositories.ErrFieldNotFound) {
			return nil, ErrFieldNotFound
		}
		return nil, err
	}
	if field.Capacity < requiredTotal {
		return nil, fmt.Errorf("%w: field holds %d, match needs %d",
			ErrFieldTooSmall, field.Capacity, requiredTotal)
	}

	slot, err := s.slotRepo.GetByID(ctx, params.SlotID)
	if err != nil {
		return nil, mapSlotRepoError(err)
	}
	now := time.Now()
	if !slot.IsBookable(now) {
		return nil, ErrSlotNotBookable
	}
	if slot.AvailableSpots() < requiredTotal {
		return nil, ErrSlotCapacity
	}

	// Матч удерживает места под оба состава сразу; проигравший гонку за слот
	// получит ErrSlotCapacity от условного UPDATE.
	if err := s.ledger.ReserveCapacity(ctx, params.SlotID, requiredTotal); err != nil {
		return nil, mapSlotRepoError(err)
	}

	match := &models.Match{
		CreatorID:            params.CreatorID,
		FieldID:              params.FieldID,
		SlotID:               params.SlotID,
		Title:                params.Title,
		Type:                 params.Type,
		SkillLevel:           params.SkillLevel,
		Public:               params.Public,
		Status:               models.MatchStatusForming,
		MaxPlayersPerTeam:    perTeam,
		MinPlayersToStart:    params.Type.MinPlayersToStart(),
		CurrentPlayersTeamA:  1, // создатель сразу в составе
		RegistrationDeadline: slot.StartTime.Add(-RegistrationLead),
		EntryFee:             params.EntryFee,
		AutoStart:            params.AutoStart,
	}
	if err := s.matchRepo.Create(ctx, nil, match); err != nil {
		if releaseErr := s.ledger.ReleaseCapacity(ctx, params.SlotID, requiredTotal); releaseErr != nil {
			s.logger.Error("failed to release slot capacity after match create failure",
				slog.Int("slot_id", params.SlotID), slog.Any("error", releaseErr))
		}
		return nil, mapMatchRepoError(err)
	}

	if err := s.enroll(ctx, match.ID, params.CreatorID, models.TeamSideA, true); err != nil {
		// Матч без создателя в составе не оставляем: откатываем запись и бронь мест.
		if delErr := s.matchRepo.Delete(ctx, nil, match.ID); delErr != nil {
			s.logger.Error("failed to delete match after creator enroll failure",
				slog.Int("match_id", match.ID), slog.Any("error", delErr))
		}
		if releaseErr := s.ledger.ReleaseCapacity(ctx, params.SlotID, requiredTotal); releaseErr != nil {
			s.logger.Error("failed to release slot capacity after creator enroll failure",
				slog.Int("slot_id", params.SlotID), slog.Any("error", releaseErr))
		}
		return nil, err
	}

	s.publisher.Publish(events.Event{
		Type:       events.MatchCreated,
		MatchID:    match.ID,
		Recipients: []int{params.CreatorID},
		Payload:    map[string]any{"title": match.Title, "type": match.Type},
	})
	return match, nil
}

func (s *MatchService) GetByID(ctx context.Context, id int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapMatchRepoError(err)
	}
	return match, nil
}

func (s *MatchService) List(ctx context.Context, filter repositories.ListMatchesFilter) ([]models.Match, error) {
	return s.matchRepo.List(ctx, filter)
}

// Join добавляет игрока в матч. Сторона: валидное предпочтение, иначе та,
// где меньше игроков (при равенстве — A); если выбранная сторона к моменту
// инкремента заполнилась, берётся другая. Инкремент счётчика — условный
// UPDATE, так что переполнение стороны в гонке невозможно.
func (s *MatchService) Join(ctx context.Context, matchID, userID int, preferredSide *models.TeamSide) (*models.RosterEntry, error) {
	match, err := s.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if match.Status != models.MatchStatusForming {
		return nil, ErrRegistrationClosed
	}
	if !now.Before(match.RegistrationDeadline) {
		return nil, ErrRegistrationClosed
	}
	if match.IsFull() {
		return nil, ErrMatchFull
	}

	if _, err := s.rosterRepo.FindByMatchAndUser(ctx, matchID, userID); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, repositories.ErrRosterEntryNotFound) {
		return nil, err
	}

	side := pickSide(match, preferredSide)
	if err := s.matchRepo.AddPlayerToSide(ctx, nil, matchID, side); err != nil {
		if !errors.Is(err, repositories.ErrMatchTeamFull) {
			return nil, mapMatchRepoError(err)
		}
		// Выбранная сторона заполнилась — пробуем другую.
		side = otherSide(side)
		if err := s.matchRepo.AddPlayerToSide(ctx, nil, matchID, side); err != nil {
			return nil, mapMatchRepoError(err)
		}
	}

	entry, err := s.createRosterEntry(ctx, matchID, userID, side, false)
	if err != nil {
		if decErr := s.matchRepo.RemovePlayerFromSide(ctx, nil, matchID, side); decErr != nil {
			s.logger.Error("failed to compensate side counter",
				slog.Int("match_id", matchID), slog.Any("error", decErr))
		}
		return nil, err
	}

	s.publisher.Publish(events.Event{
		Type:       events.PlayerJoined,
		MatchID:    matchID,
		Recipients: []int{match.CreatorID, userID},
		Payload:    map[string]any{"user_id": userID, "team_side": side},
	})

	s.maybeAutoConfirm(ctx, matchID)
	return entry, nil
}

// Leave убирает игрока из forming-матча. Создатель выйти не может — только
// отменить матч.
func (s *MatchService) Leave(ctx context.Context, matchID, userID int) error {
	match, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Status != models.MatchStatusForming {
		return ErrMatchNotForming
	}
	if match.CreatorID == userID {
		return ErrCreatorCannotLeave
	}

	entry, err := s.rosterRepo.FindByMatchAndUser(ctx, matchID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterEntryNotFound) {
			return ErrMemberNotFound
		}
		return err
	}

	if err := s.rosterRepo.Delete(ctx, nil, entry.ID); err != nil {
		return err
	}
	side := models.TeamSideA
	if entry.TeamSide != nil {
		side = *entry.TeamSide
	}
	if err := s.matchRepo.RemovePlayerFromSide(ctx, nil, matchID, side); err != nil {
		return mapMatchRepoError(err)
	}

	s.publisher.Publish(events.Event{
		Type:       events.PlayerLeft,
		MatchID:    matchID,
		Recipients: []int{match.CreatorID, userID},
		Payload:    map[string]any{"user_id": userID},
	})
	return nil
}

// Confirm фиксирует матч: только из forming и только при наборе минимума.
func (s *MatchService) Confirm(ctx context.Context, matchID int) error {
	match, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Status != models.MatchStatusForming {
		return ErrMatchNotForming
	}
	if !match.CanStart() {
		return fmt.Errorf("%w: %d of %d", ErrMatchNotReady, match.TotalPlayers(), match.MinPlayersToStart)
	}

	if err := s.matchRepo.TransitionStatus(ctx, nil, matchID,
		models.MatchStatusForming, models.MatchStatusConfirmed); err != nil {
		return mapMatchRepoError(err)
	}
	s.publishToRoster(ctx, events.MatchConfirmed, match, nil)
	return nil
}

// Start переводит подтверждённый матч в игру.
func (s *MatchService) Start(ctx context.Context, matchID int) error {
	match, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Status != models.MatchStatusConfirmed {
		return ErrMatchNotConfirmed
	}

	if err := s.matchRepo.TransitionStatus(ctx, nil, matchID,
		models.MatchStatusConfirmed, models.MatchStatusInProgress); err != nil {
		return mapMatchRepoError(err)
	}
	s.publishToRoster(ctx, events.MatchStarting, match, nil)
	return nil
}

// Complete закрывает матч со счётом; победитель — по сравнению счёта.
func (s *MatchService) Complete(ctx context.Context, matchID, scoreA, scoreB int) error {
	match, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Status != models.MatchStatusInProgress {
		return ErrMatchNotInProgress
	}
	if scoreA < 0 || scoreB < 0 {
		return fmt.Errorf("%w: scores cannot be negative", ErrValidation)
	}

	winner := models.MatchWinnerDraw
	switch {
	case scoreA > scoreB:
		winner = models.MatchWinnerTeamA
	case scoreB > scoreA:
		winner = models.MatchWinnerTeamB
	}

	if err := s.matchRepo.SetResult(ctx, nil, matchID, scoreA, scoreB, winner, time.Now()); err != nil {
		return mapMatchRepoError(err)
	}
	s.publishToRoster(ctx, events.MatchCompleted, match, map[string]any{
		"score_team_a": scoreA, "score_team_b": scoreB, "winner": winner,
	})
	return nil
}

// Cancel отменяет матч из forming/confirmed и возвращает слоту удержанные места.
func (s *MatchService) Cancel(ctx context.Context, matchID int, reason string) error {
	match, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if !isValidMatchTransition(match.Status, models.MatchStatusCancelled) {
		return fmt.Errorf("%w: match is %s", ErrStateViolation, match.Status)
	}

	if err := s.matchRepo.TransitionStatus(ctx, nil, matchID,
		match.Status, models.MatchStatusCancelled); err != nil {
		return mapMatchRepoError(err)
	}
	s.releaseSlotHold(ctx, match)
	s.publishToRoster(ctx, events.MatchCancelled, match, map[string]any{"reason": reason})
	return nil
}

// Postpone откладывает forming-матч; удержанные места возвращаются.
func (s *MatchService) Postpone(ctx context.Context, matchID int) error {
	match, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Status != models.MatchStatusForming {
		return ErrMatchNotForming
	}

	if err := s.matchRepo.TransitionStatus(ctx, nil, matchID,
		models.MatchStatusForming, models.MatchStatusPostponed); err != nil {
		return mapMatchRepoError(err)
	}
	s.releaseSlotHold(ctx, match)
	return nil
}

// Rebalance перераскладывает состав forming-матча по сторонам так, чтобы
// минимизировать разницу суммарных рейтингов.
func (s *MatchService) Rebalance(ctx context.Context, matchID int) error {
	match, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Status != models.MatchStatusForming {
		return ErrMatchNotForming
	}

	entries, err := s.rosterRepo.ListByMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if len(entries) < 2 {
		return nil
	}

	players, err := s.ratedPlayers(ctx, entries)
	if err != nil {
		return err
	}
	assignment := balance.FormTeams(players)

	sideByEntry := make(map[int]models.TeamSide, len(entries))
	for _, p := range assignment.TeamA {
		sideByEntry[p.EntryID] = models.TeamSideA
	}
	for _, p := range assignment.TeamB {
		sideByEntry[p.EntryID] = models.TeamSideB
	}

	for _, entry := range entries {
		side, ok := sideByEntry[entry.ID]
		if !ok {
			continue
		}
		if entry.TeamSide != nil && *entry.TeamSide == side {
			continue
		}
		if err := s.rosterRepo.UpdateTeamSide(ctx, nil, entry.ID, side); err != nil {
			return err
		}
	}
	if err := s.matchRepo.SetTeamCounts(ctx, nil, matchID,
		len(assignment.TeamA), len(assignment.TeamB)); err != nil {
		return mapMatchRepoError(err)
	}
	return nil
}

// InviteTeam рассылает приглашения участникам постоянной команды, уровень
// которой подходит матчу. Никаких изменений состава: только события.
func (s *MatchService) InviteTeam(ctx context.Context, matchID, teamID int) error {
	match, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if !match.RegistrationOpen(time.Now()) {
		return ErrRegistrationClosed
	}

	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return ErrTeamNotFound
		}
		return err
	}
	if team.SkillLevel.Distance(match.SkillLevel) > 1 {
		return fmt.Errorf("%w: team skill level does not fit the match", ErrValidation)
	}

	members, err := s.teamRepo.ListMembers(ctx, teamID)
	if err != nil {
		return err
	}
	recipients := make([]int, 0, len(members))
	for _, m := range members {
		recipients = append(recipients, m.ID)
	}

	s.publisher.Publish(events.Event{
		Type:       events.MatchInvitation,
		MatchID:    matchID,
		Recipients: recipients,
		Payload:    map[string]any{"team_id": teamID, "title": match.Title},
	})
	return nil
}

// --- внутренние хелперы ---

func (s *MatchService) enroll(ctx context.Context, matchID, userID int, side models.TeamSide, captain bool) error {
	_, err := s.createRosterEntry(ctx, matchID, userID, side, captain)
	return err
}

func (s *MatchService) createRosterEntry(ctx context.Context, matchID, userID int, side models.TeamSide, captain bool) (*models.RosterEntry, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	entry := &models.RosterEntry{
		MatchID:     &matchID,
		UserID:      userID,
		DisplayName: user.Nickname,
		Position:    user.PreferredPosition,
		TeamSide:    &side,
		IsCaptain:   captain,
		Status:      models.RosterEntryActive,
	}
	if err := s.rosterRepo.Create(ctx, nil, entry); err != nil {
		if errors.Is(err, repositories.ErrRosterEntryConflict) {
			return nil, ErrAlreadyMember
		}
		return nil, err
	}
	return entry, nil
}

// maybeAutoConfirm подтверждает матч, когда autoStart включён и обе команды
// заполнены. Сбой не фатален: матч подтвердит создатель или планировщик.
func (s *MatchService) maybeAutoConfirm(ctx context.Context, matchID int) {
	match, err := s.GetByID(ctx, matchID)
	if err != nil || !match.AutoStart || !match.IsFull() {
		return
	}
	if err := s.matchRepo.TransitionStatus(ctx, nil, matchID,
		models.MatchStatusForming, models.MatchStatusConfirmed); err != nil {
		s.logger.Warn("auto-confirm failed", slog.Int("match_id", matchID), slog.Any("error", err))
		return
	}
	s.publishToRoster(ctx, events.MatchConfirmed, match, map[string]any{"auto": true})
}

func (s *MatchService) releaseSlotHold(ctx context.Context, match *models.Match) {
	if err := s.ledger.ReleaseCapacity(ctx, match.SlotID, 2*match.MaxPlayersPerTeam); err != nil {
		s.logger.Error("failed to release slot hold",
			slog.Int("match_id", match.ID), slog.Int("slot_id", match.SlotID), slog.Any("error", err))
	}
}

// publishToRoster шлёт событие всем активным участникам матча.
func (s *MatchService) publishToRoster(ctx context.Context, eventType events.Type, match *models.Match, payload map[string]any) {
	entries, err := s.rosterRepo.ListByMatch(ctx, match.ID)
	if err != nil {
		s.logger.Warn("failed to resolve event recipients",
			slog.Int("match_id", match.ID), slog.Any("error", err))
		entries = nil
	}
	recipients := make([]int, 0, len(entries))
	for _, e := range entries {
		recipients = append(recipients, e.UserID)
	}
	s.publisher.Publish(events.Event{
		Type:       eventType,
		MatchID:    match.ID,
		Recipients: recipients,
		Payload:    payload,
	})
}

func (s *MatchService) ratedPlayers(ctx context.Context, entries []*models.RosterEntry) ([]balance.Player, error) {
	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	users, err := s.userRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	players := make([]balance.Player, 0, len(entries))
	for _, e := range entries {
		players = append(players, balance.Player{
			EntryID: e.ID,
			UserID:  e.UserID,
			Rating:  balance.Rating(byID[e.UserID]),
		})
	}
	return players, nil
}

func pickSide(match *models.Match, preferred *models.TeamSide) models.TeamSide {
	if preferred != nil && (*preferred == models.TeamSideA || *preferred == models.TeamSideB) {
		if sideCount(match, *preferred) < match.MaxPlayersPerTeam {
			return *preferred
		}
	}
	if match.CurrentPlayersTeamB < match.CurrentPlayersTeamA {
		return models.TeamSideB
	}
	return models.TeamSideA
}

func otherSide(side models.TeamSide) models.TeamSide {
	if side == models.TeamSideA {
		return models.TeamSideB
	}
	return models.TeamSideA
}

func sideCount(match *models.Match, side models.TeamSide) int {
	if side == models.TeamSideB {
		return match.CurrentPlayersTeamB
	}
	return match.CurrentPlayersTeamA
}
