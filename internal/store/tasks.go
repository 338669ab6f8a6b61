package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/bus"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
)

// Tasks returns the selected team's tasks with their nested comments
// and work logs.
func (s *Store) Tasks() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Task(nil), s.tasks...)
}

// RefreshTasks reloads the task list for the current selection.
func (s *Store) RefreshTasks(ctx context.Context) error {
	return s.refreshTasks(ctx, s.scope())
}

// refreshTasks is a blanket reload: nested comments and work logs come
// with every task row, so there is no incremental merge to get wrong.
func (s *Store) refreshTasks(ctx context.Context, sc scope) error {
	if sc.teamID == "" {
		return nil
	}
	tasks, err := s.deps.Tasks.ListTasksByTeam(ctx, sc.teamID)
	if err != nil {
		return s.backendFail("loading tasks", "could not load tasks", err)
	}
	s.mu.Lock()
	if !s.current(sc) {
		s.mu.Unlock()
		return nil
	}
	s.tasks = tasks
	s.mu.Unlock()
	s.emit(EventTasks, sc.teamID)
	return nil
}

// AddTask creates a task under a project of the selected team.
func (s *Store) AddTask(ctx context.Context, task domain.Task) error {
	sc := s.scope()
	if sc.teamID == "" {
		return s.reject("select a team before adding tasks")
	}
	if !s.isLeader() {
		return s.reject("only the team leader can add tasks")
	}
	if strings.TrimSpace(task.Title) == "" {
		return s.reject("task title is required")
	}
	if strings.TrimSpace(task.ProjectID) == "" {
		return s.reject("task must belong to a project")
	}
	task.ID = uuid.NewString()
	task.TeamID = sc.teamID
	task.CreatedAt = s.now().UTC()
	if task.Status == "" {
		task.Status = domain.TaskTodo
	}
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	task.Comments = nil
	task.WorkLogs = nil
	if err := s.deps.Tasks.CreateTask(ctx, &task); err != nil {
		return s.backendFail("creating task", "could not save the task", err)
	}
	s.refreshTasks(ctx, sc)
	s.publish(ctx, bus.Event{Table: bus.TableTasks, Op: bus.OpInsert, TeamID: sc.teamID, EntityID: task.ID})
	return nil
}

// UpdateTask replaces a full task row. A status change must follow the
// allowed transitions; comments and work logs are not written through
// this path.
func (s *Store) UpdateTask(ctx context.Context, task domain.Task) error {
	sc := s.scope()
	if sc.teamID == "" {
		return s.reject("select a team before editing tasks")
	}
	if strings.TrimSpace(task.ID) == "" || strings.TrimSpace(task.Title) == "" {
		return s.reject("task id and title are required")
	}
	if prev, ok := s.taskByID(task.ID); ok && !prev.Status.CanTransition(task.Status) {
		return s.reject("task cannot move from " + string(prev.Status) + " to " + string(task.Status))
	}
	task.TeamID = sc.teamID
	if err := s.deps.Tasks.UpdateTask(ctx, &task); err != nil {
		return s.backendFail("updating task", "could not save the task", err)
	}
	s.refreshTasks(ctx, sc)
	s.publish(ctx, bus.Event{Table: bus.TableTasks, Op: bus.OpUpdate, TeamID: sc.teamID, EntityID: task.ID})
	return nil
}

// DeleteTask hard-deletes a task with its nested rows.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	sc := s.scope()
	if sc.teamID == "" {
		return s.reject("select a team before deleting tasks")
	}
	if !s.isLeader() {
		return s.reject("only the team leader can delete tasks")
	}
	if strings.TrimSpace(taskID) == "" {
		return s.reject("task id is required")
	}
	if err := s.deps.Tasks.DeleteTask(ctx, taskID); err != nil {
		return s.backendFail("deleting task", "could not delete the task", err)
	}
	s.refreshTasks(ctx, sc)
	s.publish(ctx, bus.Event{Table: bus.TableTasks, Op: bus.OpDelete, TeamID: sc.teamID, EntityID: taskID})
	return nil
}

// AddComment appends a comment to a task. Blank text never leaves the
// client; on success the task list is re-fetched so displayed ids and
// timestamps reflect the authoritative clock.
func (s *Store) AddComment(ctx context.Context, taskID, text string) error {
	sc := s.scope()
	if sc.teamID == "" {
		return s.reject("select a team before commenting")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return s.reject("comment text is required")
	}
	member, ok := s.Member()
	if !ok {
		return s.reject("you are not a member of this team")
	}
	comment := domain.Comment{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		MemberID:    member.UserID,
		DisplayName: member.DisplayName,
		Text:        text,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.deps.Tasks.AddComment(ctx, &comment); err != nil {
		return s.backendFail("adding comment", "could not save the comment", err)
	}
	s.refreshTasks(ctx, sc)
	s.publish(ctx, bus.Event{Table: bus.TableTasks, Op: bus.OpUpdate, TeamID: sc.teamID, EntityID: taskID})
	return nil
}

// ToggleTimer stops the member's running interval on the task, or
// starts one when none is running. The start is conditional inside the
// backing store, so two racing starts from different devices cannot
// open a second interval.
func (s *Store) ToggleTimer(ctx context.Context, taskID, note string) error {
	sc := s.scope()
	if sc.teamID == "" {
		return s.reject("select a team before tracking time")
	}
	member, ok := s.Member()
	if !ok {
		return s.reject("you are not a member of this team")
	}
	now := s.now().UTC()
	stopped, err := s.deps.Tasks.StopWorkLog(ctx, taskID, member.UserID, now)
	if err != nil {
		return s.backendFail("stopping timer", "could not stop the timer", err)
	}
	if !stopped {
		log := domain.WorkLog{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			MemberID:  member.UserID,
			StartedAt: now,
			Note:      strings.TrimSpace(note),
		}
		started, err := s.deps.Tasks.StartWorkLog(ctx, &log)
		if err != nil {
			return s.backendFail("starting timer", "could not start the timer", err)
		}
		if !started {
			// Another device opened an interval between our stop attempt
			// and the insert; the conditional insert kept the invariant.
			s.logger.Info("timer already running", "task_id", taskID, "member_id", member.UserID)
		}
	}
	s.refreshTasks(ctx, sc)
	s.publish(ctx, bus.Event{Table: bus.TableTasks, Op: bus.OpUpdate, TeamID: sc.teamID, EntityID: taskID})
	return nil
}

func (s *Store) taskByID(id string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}
