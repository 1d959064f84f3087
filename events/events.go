package events

import "time"

// Type перечисляет доменные события ядра.
type Type string

const (
	MatchCreated            Type = "match_created"
	PlayerJoined            Type = "player_joined"
	PlayerLeft              Type = "player_left"
	MatchConfirmed          Type = "match_confirmed"
	MatchStarting           Type = "match_starting"
	MatchCompleted          Type = "match_completed"
	MatchCancelled          Type = "match_cancelled"
	MatchInvitation         Type = "match_invitation"
	ReservationExpiringSoon Type = "reservation_expiring_soon"
)

// Event — дискретное доменное событие. Несёт id затронутой сущности и
// получателей; доставка и форматирование — забота подписчиков.
type Event struct {
	Type          Type           `json:"type"`
	MatchID       int            `json:"match_id,omitempty"`
	ReservationID int            `json:"reservation_id,omitempty"`
	Recipients    []int          `json:"recipients,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Publisher — то, что видят сервисы: неблокирующая публикация события.
type Publisher interface {
	Publish(event Event)
}

// Subscriber получает события от шины. Ошибки доставки не возвращаются:
// подписчик не может откатить вызвавший событие переход.
type Subscriber interface {
	Notify(event Event)
}
