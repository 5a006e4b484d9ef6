package domain

import "time"

// Property links a rental unit to its owning landlord.
type Property struct {
	ID         string
	LandlordID string
	Address    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
