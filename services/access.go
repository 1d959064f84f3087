package services

import "github.com/Dosada05/field-booking-system/models"

// CanAccessReservation: бронь видит её владелец и роли с расширенным доступом.
func CanAccessReservation(actor *models.User, reservation *models.Reservation) bool {
	if actor == nil || reservation == nil {
		return false
	}
	return actor.ID == reservation.UserID || actor.Role.Elevated()
}

// CanModifyMatch: менять матч может создатель и роли с расширенным доступом.
func CanModifyMatch(actor *models.User, match *models.Match) bool {
	if actor == nil || match == nil {
		return false
	}
	return actor.ID == match.CreatorID || actor.Role.Elevated()
}

// CanManageSlots: слоты и поля администрирует менеджер или админ.
func CanManageSlots(actor *models.User) bool {
	return actor != nil && actor.Role.Elevated()
}
