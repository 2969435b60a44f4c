package models

import "github.com/shopspring/decimal"

// Room is the bookable unit. Only the fields the booking flow reads are mapped.
type Room struct {
	ID              int64           `json:"id" db:"id"`
	BoardingHouseID int64           `json:"boarding_house_id" db:"boarding_house_id"`
	OwnerID         int64           `json:"owner_id" db:"owner_id"`
	RoomNumber      string          `json:"room_number" db:"room_number"`
	Price           decimal.Decimal `json:"price" db:"price"`
}
