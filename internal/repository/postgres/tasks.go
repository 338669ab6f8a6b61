package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/repository"
)

// CreateTask inserts a task row with its material lines.
func (r *Repository) CreateTask(ctx context.Context, task *domain.Task) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `INSERT INTO tasks (id, project_id, team_id, title, description, assignee_ids, status, priority, due_date, estimated_hours, required_tools, photos, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := tx.Exec(ctx, query, task.ID, task.ProjectID, task.TeamID, task.Title, task.Description,
		task.AssigneeIDs, task.Status, task.Priority, task.DueDate, task.EstimatedHours,
		task.RequiredTools, task.Photos, task.CreatedAt); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if err := insertMaterials(ctx, tx, task); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateTask replaces the full task row and its material lines.
func (r *Repository) UpdateTask(ctx context.Context, task *domain.Task) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `UPDATE tasks SET title = $2, description = $3, assignee_ids = $4, status = $5,
			priority = $6, due_date = $7, estimated_hours = $8, required_tools = $9, photos = $10
		WHERE id = $1 AND team_id = $11`
	tag, err := tx.Exec(ctx, query, task.ID, task.Title, task.Description, task.AssigneeIDs,
		task.Status, task.Priority, task.DueDate, task.EstimatedHours, task.RequiredTools,
		task.Photos, task.TeamID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM task_materials WHERE task_id = $1`, task.ID); err != nil {
		return fmt.Errorf("clear materials: %w", err)
	}
	if err := insertMaterials(ctx, tx, task); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const (
	materialKindRequired = "required"
	materialKindUsed     = "used"
)

func insertMaterials(ctx context.Context, tx pgx.Tx, task *domain.Task) error {
	const query = `INSERT INTO task_materials (task_id, kind, position, name, quantity, unit)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for i, line := range task.RequiredMaterials {
		if _, err := tx.Exec(ctx, query, task.ID, materialKindRequired, i, line.Name, line.Quantity, line.Unit); err != nil {
			return fmt.Errorf("insert required material: %w", err)
		}
	}
	for i, line := range task.UsedMaterials {
		if _, err := tx.Exec(ctx, query, task.ID, materialKindUsed, i, line.Name, line.Quantity, line.Unit); err != nil {
			return fmt.Errorf("insert used material: %w", err)
		}
	}
	return nil
}

// DeleteTask hard-deletes a task; nested rows cascade.
func (r *Repository) DeleteTask(ctx context.Context, taskID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListTasksByTeam loads the team's tasks with comments, work logs and
// material lines attached. Nested rows are fetched in bulk per team, not
// per task.
func (r *Repository) ListTasksByTeam(ctx context.Context, teamID string) ([]domain.Task, error) {
	const query = `SELECT id, project_id, team_id, title, description, assignee_ids, status, priority, due_date, estimated_hours, required_tools, photos, created_at
		FROM tasks WHERE team_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	index := make(map[string]int)
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.TeamID, &t.Title, &t.Description, &t.AssigneeIDs,
			&t.Status, &t.Priority, &t.DueDate, &t.EstimatedHours, &t.RequiredTools, &t.Photos, &t.CreatedAt); err != nil {
			return nil, err
		}
		index[t.ID] = len(tasks)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return tasks, nil
	}
	if err := r.attachComments(ctx, teamID, tasks, index); err != nil {
		return nil, err
	}
	if err := r.attachWorkLogs(ctx, teamID, tasks, index); err != nil {
		return nil, err
	}
	if err := r.attachMaterials(ctx, teamID, tasks, index); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *Repository) attachComments(ctx context.Context, teamID string, tasks []domain.Task, index map[string]int) error {
	const query = `SELECT c.id, c.task_id, c.member_id, c.display_name, c.text, c.created_at
		FROM task_comments c JOIN tasks t ON t.id = c.task_id
		WHERE t.team_id = $1 ORDER BY c.created_at ASC`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.MemberID, &c.DisplayName, &c.Text, &c.CreatedAt); err != nil {
			return err
		}
		if i, ok := index[c.TaskID]; ok {
			tasks[i].Comments = append(tasks[i].Comments, c)
		}
	}
	return rows.Err()
}

func (r *Repository) attachWorkLogs(ctx context.Context, teamID string, tasks []domain.Task, index map[string]int) error {
	const query = `SELECT w.id, w.task_id, w.member_id, w.started_at, w.ended_at, w.note
		FROM work_logs w JOIN tasks t ON t.id = w.task_id
		WHERE t.team_id = $1 ORDER BY w.started_at ASC`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var w domain.WorkLog
		if err := rows.Scan(&w.ID, &w.TaskID, &w.MemberID, &w.StartedAt, &w.EndedAt, &w.Note); err != nil {
			return err
		}
		if i, ok := index[w.TaskID]; ok {
			tasks[i].WorkLogs = append(tasks[i].WorkLogs, w)
		}
	}
	return rows.Err()
}

func (r *Repository) attachMaterials(ctx context.Context, teamID string, tasks []domain.Task, index map[string]int) error {
	const query = `SELECT m.task_id, m.kind, m.name, m.quantity, m.unit
		FROM task_materials m JOIN tasks t ON t.id = m.task_id
		WHERE t.team_id = $1 ORDER BY m.task_id, m.position ASC`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, kind string
		var line domain.MaterialLine
		if err := rows.Scan(&taskID, &kind, &line.Name, &line.Quantity, &line.Unit); err != nil {
			return err
		}
		i, ok := index[taskID]
		if !ok {
			continue
		}
		if kind == materialKindUsed {
			tasks[i].UsedMaterials = append(tasks[i].UsedMaterials, line)
		} else {
			tasks[i].RequiredMaterials = append(tasks[i].RequiredMaterials, line)
		}
	}
	return rows.Err()
}

// AddComment appends a task comment.
func (r *Repository) AddComment(ctx context.Context, comment *domain.Comment) error {
	const query = `INSERT INTO task_comments (id, task_id, member_id, display_name, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, comment.ID, comment.TaskID, comment.MemberID,
		comment.DisplayName, comment.Text, comment.CreatedAt)
	return err
}

// StartWorkLog opens an interval only when none is running for the
// (task, member) pair. The guard runs inside the insert statement so two
// racing starts cannot both succeed.
func (r *Repository) StartWorkLog(ctx context.Context, log *domain.WorkLog) (bool, error) {
	const query = `INSERT INTO work_logs (id, task_id, member_id, started_at, note)
		SELECT $1, $2, $3, $4, $5
		WHERE NOT EXISTS (
			SELECT 1 FROM work_logs WHERE task_id = $2 AND member_id = $3 AND ended_at IS NULL
		)`
	tag, err := r.pool.Exec(ctx, query, log.ID, log.TaskID, log.MemberID, log.StartedAt, log.Note)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// StopWorkLog closes the member's running interval on the task.
func (r *Repository) StopWorkLog(ctx context.Context, taskID, memberID string, endedAt time.Time) (bool, error) {
	const query = `UPDATE work_logs SET ended_at = $3
		WHERE task_id = $1 AND member_id = $2 AND ended_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, taskID, memberID, endedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
