package services

import "github.com/Dosada05/field-booking-system/models"

const (
	privateEventMultiplier = 1.5
	premiumSlotMultiplier  = 1.2
	soloDiscountMultiplier = 0.5
)

// CalculateTotalAmount вычисляет стоимость брони. Чистая функция без побочных
// эффектов: оплата (paid_amount) приходит извне через MarkPaid.
//
// База — цена слота. Применяется не более одного повышающего множителя:
// частное событие имеет приоритет над премиальным слотом. Одиночная
// индивидуальная бронь получает половинную ставку.
func CalculateTotalAmount(slot *models.Slot, reservationType models.ReservationType, players int) float64 {
	amount := slot.Price

	switch {
	case reservationType == models.ReservationTypePrivateEvent:
		amount *= privateEventMultiplier
	case slot.Premium:
		amount *= premiumSlotMultiplier
	}

	if reservationType == models.ReservationTypeIndividual && players == 1 {
		amount *= soloDiscountMultiplier
	}

	return amount
}
