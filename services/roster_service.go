package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/field-booking-system/models"
	"github.com/Dosada05/field-booking-system/repositories"
)

// RosterParent адресует родителя записи ростера: бронь или матч.
// Заполнено ровно одно из полей.
type RosterParent struct {
	ReservationID *int
	MatchID       *int
}

func ReservationParent(id int) RosterParent { return RosterParent{ReservationID: &id} }
func MatchParent(id int) RosterParent       { return RosterParent{MatchID: &id} }

// RosterService ведёт составы броней и матчей: кто прикреплён, с какими
// флагами. Счётчики команд матча ведёт MatchService, не ростер.
type RosterService struct {
	rosterRepo      repositories.RosterRepository
	reservationRepo repositories.ReservationRepository
	matchRepo       repositories.MatchRepository
}

func NewRosterService(
	rosterRepo repositories.RosterRepository,
	reservationRepo repositories.ReservationRepository,
	matchRepo repositories.MatchRepository,
) *RosterService {
	return &RosterService{
		rosterRepo:      rosterRepo,
		reservationRepo: reservationRepo,
		matchRepo:       matchRepo,
	}
}

type AddMemberParams struct {
	Parent      RosterParent
	UserID      int
	DisplayName string
	Position    *models.PlayerPosition
	IsCaptain   bool
}

// AddMember прикрепляет пользователя к брони или матчу.
// Один пользователь — не больше одной записи на родителя.
func (s *RosterService) AddMember(ctx context.Context, params AddMemberParams) (*models.RosterEntry, error) {
	capacity, finalized, err := s.parentState(ctx, params.Parent)
	if err != nil {
		return nil, err
	}
	if finalized {
		return nil, ErrParentFinalized
	}

	count, err := s.memberCount(ctx, params.Parent)
	if err != nil {
		return nil, err
	}
	if count >= capacity {
		return nil, ErrParentFull
	}
	if _, err := s.findEntry(ctx, params.Parent, params.UserID); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, ErrMemberNotFound) {
		return nil, err
	}

	entry := &models.RosterEntry{
		ReservationID: params.Parent.ReservationID,
		MatchID:       params.Parent.MatchID,
		UserID:        params.UserID,
		DisplayName:   params.DisplayName,
		Position:      params.Position,
		IsCaptain:     params.IsCaptain,
		Status:        models.RosterEntryActive,
	}
	if err := s.rosterRepo.Create(ctx, nil, entry); err != nil {
		if errors.Is(err, repositories.ErrRosterEntryConflict) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to add roster member: %w", err)
	}
	return entry, nil
}

// RemoveMember снимает пользователя с ростера; после финализации родителя
// состав неизменяем.
func (s *RosterService) RemoveMember(ctx context.Context, parent RosterParent, userID int) error {
	_, finalized, err := s.parentState(ctx, parent)
	if err != nil {
		return err
	}
	if finalized {
		return ErrParentFinalized
	}

	entry, err := s.findEntry(ctx, parent, userID)
	if err != nil {
		return err
	}
	return s.rosterRepo.Delete(ctx, nil, entry.ID)
}

// ListMembers возвращает состав в порядке присоединения.
func (s *RosterService) ListMembers(ctx context.Context, parent RosterParent) ([]*models.RosterEntry, error) {
	return s.listParent(ctx, parent)
}

func (s *RosterService) memberCount(ctx context.Context, parent RosterParent) (int, error) {
	switch {
	case parent.ReservationID != nil:
		return s.rosterRepo.CountByReservation(ctx, *parent.ReservationID)
	case parent.MatchID != nil:
		members, err := s.rosterRepo.ListByMatch(ctx, *parent.MatchID)
		if err != nil {
			return 0, err
		}
		return len(members), nil
	default:
		return 0, fmt.Errorf("%w: roster parent is empty", ErrValidation)
	}
}

func (s *RosterService) listParent(ctx context.Context, parent RosterParent) ([]*models.RosterEntry, error) {
	switch {
	case parent.ReservationID != nil:
		return s.rosterRepo.ListByReservation(ctx, *parent.ReservationID)
	case parent.MatchID != nil:
		return s.rosterRepo.ListByMatch(ctx, *parent.MatchID)
	default:
		return nil, fmt.Errorf("%w: roster parent is empty", ErrValidation)
	}
}

func (s *RosterService) findEntry(ctx context.Context, parent RosterParent, userID int) (*models.RosterEntry, error) {
	var (
		entry *models.RosterEntry
		err   error
	)
	switch {
	case parent.ReservationID != nil:
		entry, err = s.rosterRepo.FindByReservationAndUser(ctx, *parent.ReservationID, userID)
	case parent.MatchID != nil:
		entry, err = s.rosterRepo.FindByMatchAndUser(ctx, *parent.MatchID, userID)
	default:
		return nil, fmt.Errorf("%w: roster parent is empty", ErrValidation)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrRosterEntryNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return entry, nil
}

// parentState возвращает вместимость ростера родителя и признак финализации.
func (s *RosterService) parentState(ctx context.Context, parent RosterParent) (capacity int, finalized bool, err error) {
	switch {
	case parent.ReservationID != nil:
		reservation, err := s.reservationRepo.GetByID(ctx, *parent.ReservationID)
		if err != nil {
			return 0, false, mapReservationRepoError(err)
		}
		return reservation.NumberOfPlayers, reservation.Status.IsTerminal(), nil
	case parent.MatchID != nil:
		match, err := s.matchRepo.GetByID(ctx, *parent.MatchID)
		if err != nil {
			return 0, false, mapMatchRepoError(err)
		}
		return 2 * match.MaxPlayersPerTeam, match.Status.IsTerminal() || match.Status == models.MatchStatusInProgress, nil
	default:
		return 0, false, fmt.Errorf("%w: roster parent is empty", ErrValidation)
	}
}
