package domain

import "time"

// ChatMessage is one append-only entry in a team's chat log.
type ChatMessage struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
	// Pending marks a locally applied message whose write has not been
	// confirmed by the backing store yet.
	Pending bool `json:"pending,omitempty"`
}
