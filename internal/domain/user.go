package domain

import "time"

// AccountRole classifies the logged-in party.
type AccountRole string

const (
	RoleLeader     AccountRole = "leader"
	RoleWorker     AccountRole = "worker"
	RoleContractor AccountRole = "contractor"
)

// User is an authenticated account with its public profile.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	DisplayName  string
	Phone        string
	AvatarURL    string
	Role         AccountRole
	CreatedAt    time.Time
}
