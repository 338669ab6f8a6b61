package postgres

import (
	"context"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/repository"
)

// CreateProject inserts a project row.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	const query = `INSERT INTO projects (id, team_id, title, client_name, street, city, postal_code, description, status, start_date, end_date, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.pool.Exec(ctx, query, project.ID, project.TeamID, project.Title, project.ClientName,
		project.Street, project.City, project.PostalCode, project.Description, project.Status,
		project.StartDate, project.EndDate, project.CreatedBy, project.CreatedAt)
	return err
}

// UpdateProject replaces the full row. Callers supply every field.
func (r *Repository) UpdateProject(ctx context.Context, project *domain.Project) error {
	const query = `UPDATE projects SET title = $2, client_name = $3, street = $4, city = $5,
			postal_code = $6, description = $7, status = $8, start_date = $9, end_date = $10
		WHERE id = $1 AND team_id = $11`
	tag, err := r.pool.Exec(ctx, query, project.ID, project.Title, project.ClientName,
		project.Street, project.City, project.PostalCode, project.Description, project.Status,
		project.StartDate, project.EndDate, project.TeamID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteProject hard-deletes a project. Referential integrity toward
// tasks is handled by the schema's cascade rules.
func (r *Repository) DeleteProject(ctx context.Context, projectID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListProjectsByTeam returns the team's projects, newest first.
func (r *Repository) ListProjectsByTeam(ctx context.Context, teamID string) ([]domain.Project, error) {
	const query = `SELECT id, team_id, title, client_name, street, city, postal_code, description, status, start_date, end_date, created_by, created_at
		FROM projects WHERE team_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.TeamID, &p.Title, &p.ClientName, &p.Street, &p.City,
			&p.PostalCode, &p.Description, &p.Status, &p.StartDate, &p.EndDate, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
