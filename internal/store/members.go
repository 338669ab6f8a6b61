package store

import (
	"context"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
)

// Members returns the de-duplicated roster of the selected team.
func (s *Store) Members() []domain.TeamMember {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.TeamMember(nil), s.members...)
}

// RefreshMembers reloads the roster for the current selection.
func (s *Store) RefreshMembers(ctx context.Context) error {
	return s.refreshMembers(ctx, s.scope())
}

// refreshMembers loads active membership rows for exactly the scoped
// team, resolves profiles and completed-task counts, and collapses
// duplicate rows per underlying account: a map keyed by user id, first
// row wins.
func (s *Store) refreshMembers(ctx context.Context, sc scope) error {
	if sc.teamID == "" {
		return nil
	}
	roster, err := s.deps.Memberships.ListTeamRoster(ctx, sc.teamID)
	if err != nil {
		return s.backendFail("loading members", "could not load the team roster", err)
	}
	counts, err := s.deps.Memberships.CountCompletedTasks(ctx, sc.teamID)
	if err != nil {
		return s.backendFail("counting completed tasks", "could not load the team roster", err)
	}

	entries := make([]domain.TeamMember, 0, len(roster))
	index := make(map[string]int, len(roster))
	for _, row := range roster {
		if _, seen := index[row.UserID]; seen {
			continue
		}
		index[row.UserID] = len(entries)
		entries = append(entries, domain.TeamMember{
			ID:                 row.ID,
			UserID:             row.UserID,
			DisplayName:        row.DisplayName,
			Role:               row.Role,
			Available:          row.Available,
			CompletedTaskCount: counts[row.UserID],
			Phone:              row.Phone,
			Email:              row.Email,
			Specialization:     row.Specialization,
			HourlyRate:         row.HourlyRate,
		})
	}

	s.mu.Lock()
	if !s.current(sc) {
		s.mu.Unlock()
		return nil
	}
	s.members = entries
	s.hasMember = false
	if i, ok := index[s.principal.UserID]; ok {
		s.member = entries[i]
		s.hasMember = true
	} else {
		s.member = domain.TeamMember{}
	}
	s.mu.Unlock()
	s.emit(EventMembers, sc.teamID)
	return nil
}

// isLeader reports whether the principal holds the leader role in the
// selected team.
func (s *Store) isLeader() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMember && s.member.Role == domain.MembershipLeader
}
