// Package bus carries change notifications between clients of the same
// team. A subscription owns the three per-team channels (projects,
// tasks, chat) and must be closed before a new one is opened.
package bus

import (
	"context"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
)

// Table names the entity table an event belongs to.
type Table string

const (
	TableProjects Table = "projects"
	TableTasks    Table = "tasks"
	TableChat     Table = "chat_messages"
)

// Op is the row-level operation behind an event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one change notification. Chat inserts carry the full row so
// receivers can apply them without a re-read; project and task events
// carry identifiers only, receivers reload the list.
type Event struct {
	Table    Table               `json:"table"`
	Op       Op                  `json:"op"`
	TeamID   string              `json:"team_id"`
	EntityID string              `json:"entity_id,omitempty"`
	Message  *domain.ChatMessage `json:"message,omitempty"`
}

// Handler receives events for a subscribed team. Handlers run on the
// subscription's delivery goroutine and must not block for long.
type Handler func(Event)

// Subscription is an open set of per-team channels.
type Subscription interface {
	Close() error
}

// Bus publishes and delivers change notifications.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe opens the team's three channels and delivers every event
	// for that team to fn until the subscription is closed.
	Subscribe(teamID string, fn Handler) (Subscription, error)
	Close() error
}
