package repository

import (
	"context"
	"time"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
)

// UserRepository persists accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// MembershipRepository manages teams and the membership join table.
type MembershipRepository interface {
	CreateTeam(ctx context.Context, team *domain.Team) error
	GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error)
	CreateMembership(ctx context.Context, member *domain.Membership) error
	// DeactivateMembership soft-deletes the row and closes any work log
	// the member still has running, stamped with the deactivation time.
	DeactivateMembership(ctx context.Context, membershipID string, at time.Time) error
	// ResolveActiveTeam returns the team of the user's earliest-created
	// active membership, or ErrNotFound when none exists.
	ResolveActiveTeam(ctx context.Context, userID string) (string, error)
	// ListTeamRoster returns active membership rows for exactly one team,
	// joined with the underlying account profiles, in creation order.
	ListTeamRoster(ctx context.Context, teamID string) ([]domain.RosterEntry, error)
	// CountCompletedTasks returns, per assignee user id, how many DONE
	// tasks of the team list that user in their assignee set.
	CountCompletedTasks(ctx context.Context, teamID string) (map[string]int, error)
}

// ProjectRepository persists projects. Updates are full-row replaces;
// there is no partial-patch contract.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, projectID string) error
	ListProjectsByTeam(ctx context.Context, teamID string) ([]domain.Project, error)
}

// TaskRepository persists tasks with their nested collections. List
// operations load comments, work logs, tools, materials and photos
// eagerly with each row.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	UpdateTask(ctx context.Context, task *domain.Task) error
	DeleteTask(ctx context.Context, taskID string) error
	ListTasksByTeam(ctx context.Context, teamID string) ([]domain.Task, error)
	AddComment(ctx context.Context, comment *domain.Comment) error
	// StartWorkLog inserts the log only when the (task, member) pair has
	// no running interval; it reports whether a row was inserted.
	StartWorkLog(ctx context.Context, log *domain.WorkLog) (bool, error)
	// StopWorkLog stamps the member's running interval on the task; it
	// reports whether a row was closed.
	StopWorkLog(ctx context.Context, taskID, memberID string, endedAt time.Time) (bool, error)
}

// ChatRepository persists the append-only chat log.
type ChatRepository interface {
	AppendMessage(ctx context.Context, msg *domain.ChatMessage) error
	// ListRecentMessages returns at most limit of the newest team
	// messages, ordered by creation ascending.
	ListRecentMessages(ctx context.Context, teamID string, limit int) ([]domain.ChatMessage, error)
}
