package models

import "time"

// Field представляет спортивное поле.
type Field struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	City      string    `json:"city" db:"city"`
	Capacity  int       `json:"capacity" db:"capacity"`
	Indoor    bool      `json:"indoor" db:"indoor"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
