package store

import (
	"context"
	"io"
	"sync"
	"time"

	"log/slog"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/bus"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// backend is an in-memory stand-in for the persistence layer shared by
// every store in a test, so multiple "clients" observe the same rows.
type backend struct {
	mu         sync.Mutex
	roster     map[string][]domain.RosterEntry
	activeTeam map[string]string
	projects   map[string][]domain.Project
	tasks      map[string][]domain.Task
	chat       map[string][]domain.ChatMessage

	projectCreateErr error
	chatAppendErr    error
	commentCalls     int

	// taskListGate, when set for a team, blocks ListTasksByTeam until
	// the gate channel is closed.
	taskListGate map[string]chan struct{}
}

func newBackend() *backend {
	return &backend{
		roster:       make(map[string][]domain.RosterEntry),
		activeTeam:   make(map[string]string),
		projects:     make(map[string][]domain.Project),
		tasks:        make(map[string][]domain.Task),
		chat:         make(map[string][]domain.ChatMessage),
		taskListGate: make(map[string]chan struct{}),
	}
}

func (b *backend) addRoster(teamID string, entries ...domain.RosterEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roster[teamID] = append(b.roster[teamID], entries...)
}

// MembershipRepository

func (b *backend) CreateTeam(ctx context.Context, team *domain.Team) error { return nil }

func (b *backend) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	return &domain.Team{ID: teamID}, nil
}

func (b *backend) CreateMembership(ctx context.Context, member *domain.Membership) error {
	return nil
}

func (b *backend) DeactivateMembership(ctx context.Context, membershipID string, at time.Time) error {
	return nil
}

func (b *backend) ResolveActiveTeam(ctx context.Context, userID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	teamID, ok := b.activeTeam[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return teamID, nil
}

func (b *backend) ListTeamRoster(ctx context.Context, teamID string) ([]domain.RosterEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.RosterEntry(nil), b.roster[teamID]...), nil
}

func (b *backend) CountCompletedTasks(ctx context.Context, teamID string) (map[string]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := make(map[string]int)
	for _, t := range b.tasks[teamID] {
		if t.Status != domain.TaskDone {
			continue
		}
		for _, id := range t.AssigneeIDs {
			counts[id]++
		}
	}
	return counts, nil
}

// ProjectRepository

func (b *backend) CreateProject(ctx context.Context, project *domain.Project) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.projectCreateErr != nil {
		return b.projectCreateErr
	}
	b.projects[project.TeamID] = append(b.projects[project.TeamID], *project)
	return nil
}

func (b *backend) UpdateProject(ctx context.Context, project *domain.Project) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := b.projects[project.TeamID]
	for i := range rows {
		if rows[i].ID == project.ID {
			rows[i] = *project
			return nil
		}
	}
	return repository.ErrNotFound
}

func (b *backend) DeleteProject(ctx context.Context, projectID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for teamID, rows := range b.projects {
		kept := rows[:0]
		for _, p := range rows {
			if p.ID != projectID {
				kept = append(kept, p)
			}
		}
		b.projects[teamID] = kept
	}
	return nil
}

func (b *backend) ListProjectsByTeam(ctx context.Context, teamID string) ([]domain.Project, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Project(nil), b.projects[teamID]...), nil
}

// TaskRepository

func (b *backend) CreateTask(ctx context.Context, task *domain.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks[task.TeamID] = append(b.tasks[task.TeamID], *task)
	return nil
}

func (b *backend) UpdateTask(ctx context.Context, task *domain.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := b.tasks[task.TeamID]
	for i := range rows {
		if rows[i].ID == task.ID {
			// Full-row replace, but nested rows live in their own tables.
			comments, logs := rows[i].Comments, rows[i].WorkLogs
			rows[i] = *task
			rows[i].Comments, rows[i].WorkLogs = comments, logs
			return nil
		}
	}
	return repository.ErrNotFound
}

func (b *backend) DeleteTask(ctx context.Context, taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for teamID, rows := range b.tasks {
		kept := rows[:0]
		for _, t := range rows {
			if t.ID != taskID {
				kept = append(kept, t)
			}
		}
		b.tasks[teamID] = kept
	}
	return nil
}

func (b *backend) ListTasksByTeam(ctx context.Context, teamID string) ([]domain.Task, error) {
	b.mu.Lock()
	gate := b.taskListGate[teamID]
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := make([]domain.Task, len(b.tasks[teamID]))
	for i, t := range b.tasks[teamID] {
		rows[i] = t
		rows[i].Comments = append([]domain.Comment(nil), t.Comments...)
		rows[i].WorkLogs = append([]domain.WorkLog(nil), t.WorkLogs...)
	}
	return rows, nil
}

func (b *backend) AddComment(ctx context.Context, comment *domain.Comment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commentCalls++
	for teamID, rows := range b.tasks {
		for i := range rows {
			if rows[i].ID == comment.TaskID {
				rows[i].Comments = append(rows[i].Comments, *comment)
				b.tasks[teamID] = rows
				return nil
			}
		}
	}
	return repository.ErrNotFound
}

func (b *backend) StartWorkLog(ctx context.Context, log *domain.WorkLog) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for teamID, rows := range b.tasks {
		for i := range rows {
			if rows[i].ID != log.TaskID {
				continue
			}
			for _, w := range rows[i].WorkLogs {
				if w.MemberID == log.MemberID && w.Open() {
					return false, nil
				}
			}
			rows[i].WorkLogs = append(rows[i].WorkLogs, *log)
			b.tasks[teamID] = rows
			return true, nil
		}
	}
	return false, repository.ErrNotFound
}

func (b *backend) StopWorkLog(ctx context.Context, taskID, memberID string, endedAt time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for teamID, rows := range b.tasks {
		for i := range rows {
			if rows[i].ID != taskID {
				continue
			}
			for j := range rows[i].WorkLogs {
				w := &rows[i].WorkLogs[j]
				if w.MemberID == memberID && w.Open() {
					end := endedAt
					w.EndedAt = &end
					b.tasks[teamID] = rows
					return true, nil
				}
			}
			return false, nil
		}
	}
	return false, repository.ErrNotFound
}

// ChatRepository

func (b *backend) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chatAppendErr != nil {
		return b.chatAppendErr
	}
	b.chat[msg.TeamID] = append(b.chat[msg.TeamID], *msg)
	return nil
}

func (b *backend) ListRecentMessages(ctx context.Context, teamID string, limit int) ([]domain.ChatMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := b.chat[teamID]
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return append([]domain.ChatMessage(nil), rows...), nil
}

func leaderEntry(teamID, userID, name string) domain.RosterEntry {
	return domain.RosterEntry{
		Membership: domain.Membership{
			ID:        "mem-" + userID,
			TeamID:    teamID,
			UserID:    userID,
			Role:      domain.MembershipLeader,
			Available: true,
			Active:    true,
		},
		DisplayName: name,
	}
}

func workerEntry(teamID, userID, name string) domain.RosterEntry {
	e := leaderEntry(teamID, userID, name)
	e.Membership.Role = domain.MembershipMember
	return e
}

type fixture struct {
	backend *backend
	bus     bus.Bus
	clock   *fakeClock
}

func newFixture() *fixture {
	return &fixture{backend: newBackend(), bus: bus.NewMemoryBus(), clock: newFakeClock()}
}

func (f *fixture) deps() Deps {
	return Deps{
		Memberships: f.backend,
		Projects:    f.backend,
		Tasks:       f.backend,
		Chat:        f.backend,
		Bus:         f.bus,
	}
}

func (f *fixture) store(p Principal) *Store {
	s := New(p, f.deps(), Options{}, testLogger())
	s.now = f.clock.Now
	return s
}
