package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/bus"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
)

// Projects returns the selected team's project list.
func (s *Store) Projects() []domain.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Project(nil), s.projects...)
}

// RefreshProjects reloads the project list for the current selection.
func (s *Store) RefreshProjects(ctx context.Context) error {
	return s.refreshProjects(ctx, s.scope())
}

func (s *Store) refreshProjects(ctx context.Context, sc scope) error {
	if sc.teamID == "" {
		return nil
	}
	projects, err := s.deps.Projects.ListProjectsByTeam(ctx, sc.teamID)
	if err != nil {
		return s.backendFail("loading projects", "could not load projects", err)
	}
	s.mu.Lock()
	if !s.current(sc) {
		s.mu.Unlock()
		return nil
	}
	s.projects = projects
	s.mu.Unlock()
	s.emit(EventProjects, sc.teamID)
	return nil
}

// AddProject creates a project for the selected team. The list is
// reloaded after the write so server-assigned fields are captured; the
// snapshot is never patched speculatively.
func (s *Store) AddProject(ctx context.Context, project domain.Project) error {
	sc := s.scope()
	if sc.teamID == "" {
		return s.reject("select a team before adding projects")
	}
	if !s.isLeader() {
		return s.reject("only the team leader can add projects")
	}
	if strings.TrimSpace(project.Title) == "" {
		return s.reject("project title is required")
	}
	project.ID = uuid.NewString()
	project.TeamID = sc.teamID
	project.CreatedBy = s.principal.UserID
	project.CreatedAt = s.now().UTC()
	if project.Status == "" {
		project.Status = domain.ProjectActive
	}
	if !project.Status.Valid() {
		return s.reject("unknown project status")
	}
	if project.StartDate.IsZero() {
		project.StartDate = project.CreatedAt
	}
	if err := s.deps.Projects.CreateProject(ctx, &project); err != nil {
		return s.backendFail("creating project", "could not save the project", err)
	}
	s.refreshProjects(ctx, sc)
	s.publish(ctx, bus.Event{Table: bus.TableProjects, Op: bus.OpInsert, TeamID: sc.teamID, EntityID: project.ID})
	return nil
}

// UpdateProject replaces a full project row; callers supply every field.
func (s *Store) UpdateProject(ctx context.Context, project domain.Project) error {
	sc := s.scope()
	if sc.teamID == "" {
		return s.reject("select a team before editing projects")
	}
	if strings.TrimSpace(project.ID) == "" || strings.TrimSpace(project.Title) == "" {
		return s.reject("project id and title are required")
	}
	if !project.Status.Valid() {
		return s.reject("unknown project status")
	}
	project.TeamID = sc.teamID
	if err := s.deps.Projects.UpdateProject(ctx, &project); err != nil {
		return s.backendFail("updating project", "could not save the project", err)
	}
	s.refreshProjects(ctx, sc)
	s.publish(ctx, bus.Event{Table: bus.TableProjects, Op: bus.OpUpdate, TeamID: sc.teamID, EntityID: project.ID})
	return nil
}

// DeleteProject hard-deletes a project.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	sc := s.scope()
	if sc.teamID == "" {
		return s.reject("select a team before deleting projects")
	}
	if !s.isLeader() {
		return s.reject("only the team leader can delete projects")
	}
	if strings.TrimSpace(projectID) == "" {
		return s.reject("project id is required")
	}
	if err := s.deps.Projects.DeleteProject(ctx, projectID); err != nil {
		return s.backendFail("deleting project", "could not delete the project", err)
	}
	s.refreshProjects(ctx, sc)
	s.publish(ctx, bus.Event{Table: bus.TableProjects, Op: bus.OpDelete, TeamID: sc.teamID, EntityID: projectID})
	return nil
}
