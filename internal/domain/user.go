package domain

import "time"

// UserRole enumerates the parties in the maintenance workflow.
type UserRole string

const (
	UserRoleTenant     UserRole = "TENANT"
	UserRoleLandlord   UserRole = "LANDLORD"
	UserRoleContractor UserRole = "CONTRACTOR"
	UserRoleAdmin      UserRole = "ADMIN"
)

// ChannelPreferences records which outbound channels a user has enabled.
// In-app delivery is implicit and always on.
type ChannelPreferences struct {
	Email bool
	SMS   bool
	Push  bool
}

// User is the shared identity record for tenants, landlords, contractors and admins.
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        *string
	PasswordHash string
	Role         UserRole
	Preferences  ChannelPreferences
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
