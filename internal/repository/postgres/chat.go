package postgres

import (
	"context"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
)

// AppendMessage inserts a chat message. Messages are never mutated.
func (r *Repository) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	const query = `INSERT INTO chat_messages (id, team_id, member_id, display_name, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, msg.ID, msg.TeamID, msg.MemberID, msg.DisplayName, msg.Text, msg.CreatedAt)
	return err
}

// ListRecentMessages returns at most limit of the newest messages for
// the team, reordered ascending for display.
func (r *Repository) ListRecentMessages(ctx context.Context, teamID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id, team_id, member_id, display_name, text, created_at FROM (
			SELECT id, team_id, member_id, display_name, text, created_at
			FROM chat_messages WHERE team_id = $1
			ORDER BY created_at DESC LIMIT $2
		) newest ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, teamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.TeamID, &m.MemberID, &m.DisplayName, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
