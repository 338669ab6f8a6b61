package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/repository"
)

// CreateTeam creates a team record.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	const query = `INSERT INTO teams (id, name, owner_id, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, team.ID, team.Name, team.OwnerID, team.CreatedAt)
	return err
}

// GetTeamByID returns a team by identifier.
func (r *Repository) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	const query = `SELECT id, name, owner_id, created_at FROM teams WHERE id = $1`
	var team domain.Team
	if err := r.pool.QueryRow(ctx, query, teamID).Scan(&team.ID, &team.Name, &team.OwnerID, &team.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &team, nil
}

// CreateMembership inserts a membership row.
func (r *Repository) CreateMembership(ctx context.Context, member *domain.Membership) error {
	const query = `INSERT INTO memberships (id, team_id, user_id, role, specialization, hourly_rate, available, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query, member.ID, member.TeamID, member.UserID, member.Role,
		member.Specialization, member.HourlyRate, member.Available, member.Active, member.CreatedAt)
	return err
}

// DeactivateMembership soft-deletes the row and closes the member's
// running work logs in the same transaction.
func (r *Repository) DeactivateMembership(ctx context.Context, membershipID string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE memberships SET active = false, deactivated_at = $2 WHERE id = $1 AND active`,
		membershipID, at)
	if err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	if _, err := tx.Exec(ctx,
		`UPDATE work_logs SET ended_at = $2
		 WHERE ended_at IS NULL
		   AND member_id = (SELECT user_id FROM memberships WHERE id = $1)
		   AND task_id IN (SELECT t.id FROM tasks t WHERE t.team_id = (SELECT team_id FROM memberships WHERE id = $1))`,
		membershipID, at); err != nil {
		return fmt.Errorf("close orphaned work logs: %w", err)
	}
	return tx.Commit(ctx)
}

// ResolveActiveTeam finds the user's earliest-created active membership.
func (r *Repository) ResolveActiveTeam(ctx context.Context, userID string) (string, error) {
	const query = `SELECT team_id FROM memberships
		WHERE user_id = $1 AND active
		ORDER BY created_at ASC LIMIT 1`
	var teamID string
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&teamID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", err
	}
	return teamID, nil
}

// ListTeamRoster returns active membership rows for one team, joined
// with profiles, in creation order.
func (r *Repository) ListTeamRoster(ctx context.Context, teamID string) ([]domain.RosterEntry, error) {
	const query = `SELECT m.id, m.team_id, m.user_id, m.role, m.specialization, m.hourly_rate,
			m.available, m.active, m.created_at, m.deactivated_at,
			u.display_name, u.phone, u.email, u.avatar_url
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.team_id = $1 AND m.active
		ORDER BY m.created_at ASC`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []domain.RosterEntry
	for rows.Next() {
		var e domain.RosterEntry
		if err := rows.Scan(&e.ID, &e.TeamID, &e.UserID, &e.Role, &e.Specialization, &e.HourlyRate,
			&e.Available, &e.Active, &e.CreatedAt, &e.DeactivatedAt,
			&e.DisplayName, &e.Phone, &e.Email, &e.AvatarURL); err != nil {
			return nil, err
		}
		roster = append(roster, e)
	}
	return roster, rows.Err()
}

// CountCompletedTasks counts DONE tasks per assignee for one team.
func (r *Repository) CountCompletedTasks(ctx context.Context, teamID string) (map[string]int, error) {
	const query = `SELECT assignee, COUNT(*)
		FROM tasks t, unnest(t.assignee_ids) AS assignee
		WHERE t.team_id = $1 AND t.status = 'DONE'
		GROUP BY assignee`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var userID string
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, err
		}
		counts[userID] = count
	}
	return counts, rows.Err()
}
