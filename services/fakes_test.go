package services_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/Dosada05/field-booking-system/events"
	"github.com/Dosada05/field-booking-system/models"
	"github.com/Dosada05/field-booking-system/repositories"
)

// Фейки репозиториев на функциональных полях: тест задаёт только то,
// что сценарий реально дергает.

type fakeSlotRepo struct {
	CreateFn              func(ctx context.Context, slot *models.Slot) error
	GetByIDFn             func(ctx context.Context, id int) (*models.Slot, error)
	ListFn                func(ctx context.Context, filter repositories.ListSlotsFilter) ([]models.Slot, error)
	ReserveCapacityFn     func(ctx context.Context, exec repositories.SQLExecutor, id, seats int) error
	ReleaseCapacityFn     func(ctx context.Context, exec repositories.SQLExecutor, id, seats int) error
	UpdateStatusFn        func(ctx context.Context, exec repositories.SQLExecutor, id int, status models.SlotStatus) error
	DeleteFn              func(ctx context.Context, id int) error
	ListExpiredUnbookedFn func(ctx context.Context, before time.Time) ([]models.Slot, error)
}

func (f *fakeSlotRepo) Create(ctx context.Context, slot *models.Slot) error {
	return f.CreateFn(ctx, slot)
}
func (f *fakeSlotRepo) GetByID(ctx context.Context, id int) (*models.Slot, error) {
	return f.GetByIDFn(ctx, id)
}
func (f *fakeSlotRepo) List(ctx context.Context, filter repositories.ListSlotsFilter) ([]models.Slot, error) {
	return f.ListFn(ctx, filter)
}
func (f *fakeSlotRepo) ReserveCapacity(ctx context.Context, exec repositories.SQLExecutor, id, seats int) error {
	return f.ReserveCapacityFn(ctx, exec, id, seats)
}
func (f *fakeSlotRepo) ReleaseCapacity(ctx context.Context, exec repositories.SQLExecutor, id, seats int) error {
	return f.ReleaseCapacityFn(ctx, exec, id, seats)
}
func (f *fakeSlotRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.SlotStatus) error {
	return f.UpdateStatusFn(ctx, exec, id, status)
}
func (f *fakeSlotRepo) Delete(ctx context.Context, id int) error {
	return f.DeleteFn(ctx, id)
}
func (f *fakeSlotRepo) ListExpiredUnbooked(ctx context.Context, before time.Time) ([]models.Slot, error) {
	return f.ListExpiredUnbookedFn(ctx, before)
}

type fakeReservationRepo struct {
	CreateFn                     func(ctx context.Context, exec repositories.SQLExecutor, reservation *models.Reservation) error
	GetByIDFn                    func(ctx context.Context, id int) (*models.Reservation, error)
	GetByReferenceCodeFn         func(ctx context.Context, code string) (*models.Reservation, error)
	ListFn                       func(ctx context.Context, filter repositories.ListReservationsFilter) ([]models.Reservation, error)
	TransitionStatusFn           func(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.ReservationStatus) error
	SetConfirmedFn               func(ctx context.Context, exec repositories.SQLExecutor, id int, at time.Time) error
	SetPaidAmountFn              func(ctx context.Context, exec repositories.SQLExecutor, id int, amount float64) error
	SetCancelledFn               func(ctx context.Context, exec repositories.SQLExecutor, id int, status models.ReservationStatus, reason string, at time.Time) error
	HasActiveForUserAndSlotFn    func(ctx context.Context, userID, slotID int) (bool, error)
	CountCreatedSinceFn          func(ctx context.Context, userID int, since time.Time) (int, error)
	ListStalePendingFn           func(ctx context.Context, deadline time.Time) ([]models.Reservation, error)
	ListPendingExpiringBetweenFn func(ctx context.Context, from, to time.Time) ([]models.Reservation, error)
}

func (f *fakeReservationRepo) Create(ctx context.Context, exec repositories.SQLExecutor, reservation *models.Reservation) error {
	return f.CreateFn(ctx, exec, reservation)
}
func (f *fakeReservationRepo) GetByID(ctx context.Context, id int) (*models.Reservation, error) {
	return f.GetByIDFn(ctx, id)
}
func (f *fakeReservationRepo) GetByReferenceCode(ctx context.Context, code string) (*models.Reservation, error) {
	return f.GetByReferenceCodeFn(ctx, code)
}
func (f *fakeReservationRepo) List(ctx context.Context, filter repositories.ListReservationsFilter) ([]models.Reservation, error) {
	return f.ListFn(ctx, filter)
}
func (f *fakeReservationRepo) TransitionStatus(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.ReservationStatus) error {
	return f.TransitionStatusFn(ctx, exec, id, from, to)
}
func (f *fakeReservationRepo) SetConfirmed(ctx context.Context, exec repositories.SQLExecutor, id int, at time.Time) error {
	return f.SetConfirmedFn(ctx, exec, id, at)
}
func (f *fakeReservationRepo) SetPaidAmount(ctx context.Context, exec repositories.SQLExecutor, id int, amount float64) error {
	return f.SetPaidAmountFn(ctx, exec, id, amount)
}
func (f *fakeReservationRepo) SetCancelled(ctx context.Context, exec repositories.SQLExecutor, id int, status models.ReservationStatus, reason string, at time.Time) error {
	return f.SetCancelledFn(ctx, exec, id, status, reason, at)
}
func (f *fakeReservationRepo) HasActiveForUserAndSlot(ctx context.Context, userID, slotID int) (bool, error) {
	return f.HasActiveForUserAndSlotFn(ctx, userID, slotID)
}
func (f *fakeReservationRepo) CountCreatedSince(ctx context.Context, userID int, since time.Time) (int, error) {
	return f.CountCreatedSinceFn(ctx, userID, since)
}
func (f *fakeReservationRepo) ListStalePending(ctx context.Context, deadline time.Time) ([]models.Reservation, error) {
	return f.ListStalePendingFn(ctx, deadline)
}
func (f *fakeReservationRepo) ListPendingExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Reservation, error) {
	return f.ListPendingExpiringBetweenFn(ctx, from, to)
}

type fakeMatchRepo struct {
	CreateFn                    func(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error
	GetByIDFn                   func(ctx context.Context, id int) (*models.Match, error)
	ListFn                      func(ctx context.Context, filter repositories.ListMatchesFilter) ([]models.Match, error)
	TransitionStatusFn          func(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.MatchStatus) error
	AddPlayerToSideFn           func(ctx context.Context, exec repositories.SQLExecutor, id int, side models.TeamSide) error
	RemovePlayerFromSideFn      func(ctx context.Context, exec repositories.SQLExecutor, id int, side models.TeamSide) error
	SetTeamCountsFn             func(ctx context.Context, exec repositories.SQLExecutor, id int, teamA, teamB int) error
	SetResultFn                 func(ctx context.Context, exec repositories.SQLExecutor, id int, scoreA, scoreB int, winner models.MatchWinner, completedAt time.Time) error
	DeleteFn                    func(ctx context.Context, exec repositories.SQLExecutor, id int) error
	ListOpenForRegistrationFn   func(ctx context.Context, now time.Time) ([]models.Match, error)
	ListFormingPastSlotStartFn  func(ctx context.Context, now time.Time) ([]models.Match, error)
	ListFormingReadyToConfirmFn func(ctx context.Context, notBefore time.Time) ([]models.Match, error)
	ListFormingUnbalancedFn     func(ctx context.Context, minDiff int) ([]models.Match, error)
	ListCompletedByUserSinceFn  func(ctx context.Context, userID int, since time.Time) ([]models.Match, error)
}

func (f *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	return f.CreateFn(ctx, exec, match)
}
func (f *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	return f.GetByIDFn(ctx, id)
}
func (f *fakeMatchRepo) List(ctx context.Context, filter repositories.ListMatchesFilter) ([]models.Match, error) {
	return f.ListFn(ctx, filter)
}
func (f *fakeMatchRepo) TransitionStatus(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.MatchStatus) error {
	return f.TransitionStatusFn(ctx, exec, id, from, to)
}
func (f *fakeMatchRepo) AddPlayerToSide(ctx context.Context, exec repositories.SQLExecutor, id int, side models.TeamSide) error {
	return f.AddPlayerToSideFn(ctx, exec, id, side)
}
func (f *fakeMatchRepo) RemovePlayerFromSide(ctx context.Context, exec repositories.SQLExecutor, id int, side models.TeamSide) error {
	return f.RemovePlayerFromSideFn(ctx, exec, id, side)
}
func (f *fakeMatchRepo) SetTeamCounts(ctx context.Context, exec repositories.SQLExecutor, id int, teamA, teamB int) error {
	return f.SetTeamCountsFn(ctx, exec, id, teamA, teamB)
}
func (f *fakeMatchRepo) SetResult(ctx context.Context, exec repositories.SQLExecutor, id int, scoreA, scoreB int, winner models.MatchWinner, completedAt time.Time) error {
	return f.SetResultFn(ctx, exec, id, scoreA, scoreB, winner, completedAt)
}
func (f *fakeMatchRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	return f.DeleteFn(ctx, exec, id)
}
func (f *fakeMatchRepo) ListOpenForRegistration(ctx context.Context, now time.Time) ([]models.Match, error) {
	return f.ListOpenForRegistrationFn(ctx, now)
}
func (f *fakeMatchRepo) ListFormingPastSlotStart(ctx context.Context, now time.Time) ([]models.Match, error) {
	return f.ListFormingPastSlotStartFn(ctx, now)
}
func (f *fakeMatchRepo) ListFormingReadyToConfirm(ctx context.Context, notBefore time.Time) ([]models.Match, error) {
	return f.ListFormingReadyToConfirmFn(ctx, notBefore)
}
func (f *fakeMatchRepo) ListFormingUnbalanced(ctx context.Context, minDiff int) ([]models.Match, error) {
	return f.ListFormingUnbalancedFn(ctx, minDiff)
}
func (f *fakeMatchRepo) ListCompletedByUserSince(ctx context.Context, userID int, since time.Time) ([]models.Match, error) {
	return f.ListCompletedByUserSinceFn(ctx, userID, since)
}

type fakeRosterRepo struct {
	CreateFn                   func(ctx context.Context, exec repositories.SQLExecutor, entry *models.RosterEntry) error
	FindByReservationAndUserFn func(ctx context.Context, reservationID, userID int) (*models.RosterEntry, error)
	FindByMatchAndUserFn       func(ctx context.Context, matchID, userID int) (*models.RosterEntry, error)
	ListByReservationFn        func(ctx context.Context, reservationID int) ([]*models.RosterEntry, error)
	ListByMatchFn              func(ctx context.Context, matchID int) ([]*models.RosterEntry, error)
	ListMatchIDsByUserFn       func(ctx context.Context, userID int) ([]int, error)
	DeleteFn                   func(ctx context.Context, exec repositories.SQLExecutor, id int) error
	UpdateTeamSideFn           func(ctx context.Context, exec repositories.SQLExecutor, id int, side models.TeamSide) error
	CountByReservationFn       func(ctx context.Context, reservationID int) (int, error)
}

func (f *fakeRosterRepo) Create(ctx context.Context, exec repositories.SQLExecutor, entry *models.RosterEntry) error {
	return f.CreateFn(ctx, exec, entry)
}
func (f *fakeRosterRepo) FindByReservationAndUser(ctx context.Context, reservationID, userID int) (*models.RosterEntry, error) {
	return f.FindByReservationAndUserFn(ctx, reservationID, userID)
}
func (f *fakeRosterRepo) FindByMatchAndUser(ctx context.Context, matchID, userID int) (*models.RosterEntry, error) {
	return f.FindByMatchAndUserFn(ctx, matchID, userID)
}
func (f *fakeRosterRepo) ListByReservation(ctx context.Context, reservationID int) ([]*models.RosterEntry, error) {
	return f.ListByReservationFn(ctx, reservationID)
}
func (f *fakeRosterRepo) ListByMatch(ctx context.Context, matchID int) ([]*models.RosterEntry, error) {
	return f.ListByMatchFn(ctx, matchID)
}
func (f *fakeRosterRepo) ListMatchIDsByUser(ctx context.Context, userID int) ([]int, error) {
	return f.ListMatchIDsByUserFn(ctx, userID)
}
func (f *fakeRosterRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	return f.DeleteFn(ctx, exec, id)
}
func (f *fakeRosterRepo) UpdateTeamSide(ctx context.Context, exec repositories.SQLExecutor, id int, side models.TeamSide) error {
	return f.UpdateTeamSideFn(ctx, exec, id, side)
}
func (f *fakeRosterRepo) CountByReservation(ctx context.Context, reservationID int) (int, error) {
	return f.CountByReservationFn(ctx, reservationID)
}

type fakeUserRepo struct {
	CreateFn    func(ctx context.Context, user *models.User) error
	GetByIDFn   func(ctx context.Context, id int) (*models.User, error)
	ListByIDsFn func(ctx context.Context, ids []int) ([]models.User, error)
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	return f.CreateFn(ctx, user)
}
func (f *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	return f.GetByIDFn(ctx, id)
}
func (f *fakeUserRepo) ListByIDs(ctx context.Context, ids []int) ([]models.User, error) {
	return f.ListByIDsFn(ctx, ids)
}

type fakeTeamRepo struct {
	CreateFn      func(ctx context.Context, team *models.Team) error
	GetByIDFn     func(ctx context.Context, id int) (*models.Team, error)
	ListMembersFn func(ctx context.Context, teamID int) ([]models.User, error)
}

func (f *fakeTeamRepo) Create(ctx context.Context, team *models.Team) error {
	return f.CreateFn(ctx, team)
}
func (f *fakeTeamRepo) GetByID(ctx context.Context, id int) (*models.Team, error) {
	return f.GetByIDFn(ctx, id)
}
func (f *fakeTeamRepo) ListMembers(ctx context.Context, teamID int) ([]models.User, error) {
	return f.ListMembersFn(ctx, teamID)
}

type fakeFieldRepo struct {
	CreateFn  func(ctx context.Context, field *models.Field) error
	GetByIDFn func(ctx context.Context, id int) (*models.Field, error)
	ListFn    func(ctx context.Context, limit, offset int) ([]models.Field, error)
}

func (f *fakeFieldRepo) Create(ctx context.Context, field *models.Field) error {
	return f.CreateFn(ctx, field)
}
func (f *fakeFieldRepo) GetByID(ctx context.Context, id int) (*models.Field, error) {
	return f.GetByIDFn(ctx, id)
}
func (f *fakeFieldRepo) List(ctx context.Context, limit, offset int) ([]models.Field, error) {
	return f.ListFn(ctx, limit, offset)
}

// fakeLedger считает занятые места в памяти под мьютексом; поведение
// повторяет условный UPDATE репозитория.
type fakeLedger struct {
	mu       sync.Mutex
	capacity map[int]int
	used     map[int]int
	reserves int
	releases int
	failNext error
}

func newFakeLedger(slotID, capacity int) *fakeLedger {
	return &fakeLedger{
		capacity: map[int]int{slotID: capacity},
		used:     map[int]int{},
	}
}

func (l *fakeLedger) ReserveCapacity(ctx context.Context, slotID, seats int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return err
	}
	if l.used[slotID]+seats > l.capacity[slotID] {
		return repositories.ErrSlotCapacityExceeded
	}
	l.used[slotID] += seats
	l.reserves++
	return nil
}

func (l *fakeLedger) ReleaseCapacity(ctx context.Context, slotID, seats int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.used[slotID] -= seats
	if l.used[slotID] < 0 {
		l.used[slotID] = 0
	}
	l.releases++
	return nil
}

func (l *fakeLedger) AvailableSpots(ctx context.Context, slotID int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity[slotID] - l.used[slotID], nil
}

func (l *fakeLedger) usedSeats(slotID int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used[slotID]
}

type fakeLimiter struct {
	mu      sync.Mutex
	allowed bool
	err     error
	calls   int
	revokes int
}

func (f *fakeLimiter) Allow(ctx context.Context, userID, limit int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.allowed, f.err
}

func (f *fakeLimiter) Revoke(ctx context.Context, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokes++
	return nil
}

func (f *fakeLimiter) revokeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokes
}

// fakeTxRunner исполняет замыкание с заранее заданным маркерным executor,
// чтобы тест мог проверить, что шаги идут в одной транзакции.
type fakeTxRunner struct {
	exec  repositories.SQLExecutor
	calls int
}

func (r *fakeTxRunner) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	r.calls++
	return fn(r.exec)
}

type txMarker struct{}

func (txMarker) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (txMarker) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (txMarker) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

// capturePublisher собирает опубликованные события.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) byType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
