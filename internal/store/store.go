// Package store keeps one client's in-memory picture of a team
// (roster, projects, tasks and chat) consistent with the backing store.
// Each connected client owns its own Store; there is no shared global
// instance. Local mutations go to the repositories, the change bus
// announces them to everyone else on the team.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/bus"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/repository"
)

const refreshTimeout = 10 * time.Second

// Principal identifies the logged-in account a Store serves.
type Principal struct {
	UserID      string
	DisplayName string
	Role        domain.AccountRole
}

// Deps bundles the collaborators a Store needs.
type Deps struct {
	Memberships repository.MembershipRepository
	Projects    repository.ProjectRepository
	Tasks       repository.TaskRepository
	Chat        repository.ChatRepository
	Bus         bus.Bus
}

// Options tunes snapshot and delivery sizes.
type Options struct {
	ChatHistoryLimit int
	EventBuffer      int
}

func (o Options) withDefaults() Options {
	if o.ChatHistoryLimit <= 0 {
		o.ChatHistoryLimit = 100
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	return o
}

// EventKind names which part of the snapshot changed.
type EventKind string

const (
	EventTeam     EventKind = "team"
	EventMembers  EventKind = "members"
	EventProjects EventKind = "projects"
	EventTasks    EventKind = "tasks"
	EventChat     EventKind = "chat"
	EventNotice   EventKind = "notice"
)

// Event tells a UI consumer which read accessor to consult again.
type Event struct {
	Kind   EventKind `json:"kind"`
	TeamID string    `json:"team_id"`
}

// scope ties an asynchronous load to the team selection it was issued
// under. Results arriving after the selection moved on are discarded.
type scope struct {
	gen    uint64
	teamID string
}

// Store is the synchronization engine for one client session.
type Store struct {
	principal Principal
	deps      Deps
	opts      Options
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.RWMutex
	gen       uint64
	teamID    string
	member    domain.TeamMember
	hasMember bool
	members   []domain.TeamMember
	projects  []domain.Project
	tasks     []domain.Task
	chat      []domain.ChatMessage
	notices   []Notice
	sub       bus.Subscription
	closed    bool

	events chan Event
}

// New constructs a Store for the principal. No team is selected yet;
// every accessor returns empty collections until SelectTeam or Activate
// runs.
func New(principal Principal, deps Deps, opts Options, logger *slog.Logger) *Store {
	opts = opts.withDefaults()
	return &Store{
		principal: principal,
		deps:      deps,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		events:    make(chan Event, opts.EventBuffer),
	}
}

// Events exposes snapshot-change signals for the UI layer. The channel
// closes when the store closes, so consumers can range over it; slow
// consumers lose events rather than block the engine.
func (s *Store) Events() <-chan Event { return s.events }

// Principal returns the account this store serves.
func (s *Store) Principal() Principal { return s.principal }

// TeamID returns the currently selected team, empty when none.
func (s *Store) TeamID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.teamID
}

// Member returns the principal's de-duplicated directory entry for the
// selected team.
func (s *Store) Member() (domain.TeamMember, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.member, s.hasMember
}

// Activate resolves the principal's earliest active membership and
// selects that team. An account with no membership selects no team and
// shows empty collections; that is not an error.
func (s *Store) Activate(ctx context.Context) error {
	teamID, err := s.deps.Memberships.ResolveActiveTeam(ctx, s.principal.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.SelectTeam(ctx, "")
		}
		return fmt.Errorf("resolve active team: %w", err)
	}
	return s.SelectTeam(ctx, teamID)
}

// SelectTeam switches the store to a team: the previous subscription set
// is released, the snapshot is cleared, the new team's three channels
// are opened and every collection reloads.
func (s *Store) SelectTeam(ctx context.Context, teamID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.gen++
	sc := scope{gen: s.gen, teamID: teamID}
	s.teamID = teamID
	s.member = domain.TeamMember{}
	s.hasMember = false
	s.members, s.projects, s.tasks, s.chat = nil, nil, nil, nil
	oldSub := s.sub
	s.sub = nil
	s.mu.Unlock()

	// Release the old channels before opening new ones; the three
	// per-team subscriptions are an exclusively owned resource.
	if oldSub != nil {
		if err := oldSub.Close(); err != nil {
			s.logger.Warn("closing previous subscription failed", "error", err)
		}
	}
	s.emit(EventTeam, teamID)
	if teamID == "" {
		s.emitAllCollections("")
		return nil
	}

	sub, err := s.deps.Bus.Subscribe(teamID, s.dispatch)
	if err != nil {
		return fmt.Errorf("open team subscription: %w", err)
	}
	s.mu.Lock()
	if s.gen != sc.gen || s.closed {
		s.mu.Unlock()
		sub.Close()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	s.refreshMembers(ctx, sc)
	s.refreshProjects(ctx, sc)
	s.refreshTasks(ctx, sc)
	s.refreshChat(ctx, sc)
	return nil
}

// Close tears the subscription set down and closes the event channel.
// A closed store accepts no further calls.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.gen++
	sub := s.sub
	s.sub = nil
	// emit holds the read lock around its send, so closing here cannot
	// race a send on the same channel.
	close(s.events)
	s.mu.Unlock()
	if sub != nil {
		return sub.Close()
	}
	return nil
}

// scope snapshots the current team selection for an async call.
func (s *Store) scope() scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scope{gen: s.gen, teamID: s.teamID}
}

// current reports whether a scope still matches the live selection.
func (s *Store) current(sc scope) bool {
	return s.gen == sc.gen && !s.closed
}

// dispatch routes one bus event per the entity's consistency policy.
// It runs on the subscription's delivery goroutine.
func (s *Store) dispatch(event bus.Event) {
	sc := s.scope()
	if event.TeamID != sc.teamID || sc.teamID == "" {
		return
	}
	switch policyFor(event.Table) {
	case OptimisticApply:
		s.ingestChatEvent(event)
	default:
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		switch event.Table {
		case bus.TableProjects:
			s.refreshProjects(ctx, sc)
		case bus.TableTasks:
			s.refreshTasks(ctx, sc)
		}
	}
}

// publish announces a confirmed local write to other clients. Delivery
// is best effort; a lost notification leaves peers stale until their
// next refresh, never inconsistent.
func (s *Store) publish(ctx context.Context, event bus.Event) {
	if err := s.deps.Bus.Publish(ctx, event); err != nil {
		s.logger.Warn("publishing change notification failed", "table", event.Table, "error", err)
	}
}

func (s *Store) emit(kind EventKind, teamID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- Event{Kind: kind, TeamID: teamID}:
	default:
	}
}

func (s *Store) emitAllCollections(teamID string) {
	for _, kind := range []EventKind{EventMembers, EventProjects, EventTasks, EventChat} {
		s.emit(kind, teamID)
	}
}
