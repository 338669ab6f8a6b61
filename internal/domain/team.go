package domain

import "time"

// Team is the scoping unit: every project, task and chat message belongs
// to exactly one team.
type Team struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

// MembershipRole is the role a membership row carries inside a team.
type MembershipRole string

const (
	MembershipLeader MembershipRole = "leader"
	MembershipMember MembershipRole = "member"
)

// Membership joins an underlying account to a team. A single account may
// hold more than one row in the same team (a leader row plus a
// specialization row); the directory collapses them.
type Membership struct {
	ID             string
	TeamID         string
	UserID         string
	Role           MembershipRole
	Specialization string
	HourlyRate     *float64
	Available      bool
	Active         bool
	CreatedAt      time.Time
	DeactivatedAt  *time.Time
}

// RosterEntry is a membership row joined with its account profile, as
// loaded from the backing store.
type RosterEntry struct {
	Membership
	DisplayName string
	Phone       string
	Email       string
	AvatarURL   string
}

// TeamMember is one de-duplicated directory entry for a team roster.
type TeamMember struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	DisplayName        string         `json:"display_name"`
	Role               MembershipRole `json:"role"`
	Available          bool           `json:"available"`
	CompletedTaskCount int            `json:"completed_task_count"`
	Phone              string         `json:"phone,omitempty"`
	Email              string         `json:"email,omitempty"`
	Specialization     string         `json:"specialization,omitempty"`
	HourlyRate         *float64       `json:"hourly_rate,omitempty"`
}
