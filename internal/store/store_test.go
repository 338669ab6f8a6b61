package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
)

func TestActivateWithoutMembershipShowsEmptyCollections(t *testing.T) {
	f := newFixture()
	s := f.store(Principal{UserID: "u1", DisplayName: "Piet", Role: domain.RoleWorker})
	defer s.Close()

	if err := s.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if s.TeamID() != "" {
		t.Fatalf("expected no team selected, got %q", s.TeamID())
	}
	if len(s.Members()) != 0 || len(s.Projects()) != 0 || len(s.Tasks()) != 0 || len(s.ChatMessages()) != 0 {
		t.Fatal("expected empty collections without a membership")
	}
}

func TestActivateSelectsEarliestActiveTeam(t *testing.T) {
	f := newFixture()
	f.backend.activeTeam["u1"] = "team-1"
	f.backend.addRoster("team-1", leaderEntry("team-1", "u1", "Piet"))
	s := f.store(Principal{UserID: "u1", DisplayName: "Piet", Role: domain.RoleLeader})
	defer s.Close()

	if err := s.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if s.TeamID() != "team-1" {
		t.Fatalf("expected team-1 selected, got %q", s.TeamID())
	}
	member, ok := s.Member()
	if !ok || member.UserID != "u1" || member.Role != domain.MembershipLeader {
		t.Fatalf("unexpected member record: %+v ok=%v", member, ok)
	}
}

func TestRosterCollapsesDuplicateMemberships(t *testing.T) {
	f := newFixture()
	lead := leaderEntry("team-1", "u1", "Piet")
	specialist := workerEntry("team-1", "u1", "Piet")
	specialist.Membership.ID = "mem-u1-tiler"
	specialist.Membership.Specialization = "tiler"
	f.backend.addRoster("team-1", lead, specialist, workerEntry("team-1", "u2", "Anna"))

	s := f.store(Principal{UserID: "u1", DisplayName: "Piet", Role: domain.RoleLeader})
	defer s.Close()
	if err := s.SelectTeam(context.Background(), "team-1"); err != nil {
		t.Fatalf("SelectTeam: %v", err)
	}

	members := s.Members()
	if len(members) != 2 {
		t.Fatalf("expected 2 directory entries, got %d: %+v", len(members), members)
	}
	seen := make(map[string]bool)
	for _, m := range members {
		if seen[m.UserID] {
			t.Fatalf("duplicate user %s in directory", m.UserID)
		}
		seen[m.UserID] = true
	}
	// First occurrence wins: the leader row, not the specialization row.
	if members[0].UserID != "u1" || members[0].Role != domain.MembershipLeader || members[0].Specialization != "" {
		t.Fatalf("expected first row to win, got %+v", members[0])
	}
}

func TestCompletedTaskCountsFollowAssigneeSets(t *testing.T) {
	f := newFixture()
	f.backend.addRoster("team-1", leaderEntry("team-1", "u1", "Piet"), workerEntry("team-1", "u2", "Anna"))
	f.backend.tasks["team-1"] = []domain.Task{
		{ID: "t1", TeamID: "team-1", Status: domain.TaskDone, AssigneeIDs: []string{"u1", "u2"}},
		{ID: "t2", TeamID: "team-1", Status: domain.TaskDone, AssigneeIDs: []string{"u2"}},
		{ID: "t3", TeamID: "team-1", Status: domain.TaskInProgress, AssigneeIDs: []string{"u2"}},
	}
	s := f.store(Principal{UserID: "u1", DisplayName: "Piet", Role: domain.RoleLeader})
	defer s.Close()
	if err := s.SelectTeam(context.Background(), "team-1"); err != nil {
		t.Fatalf("SelectTeam: %v", err)
	}

	byUser := make(map[string]int)
	for _, m := range s.Members() {
		byUser[m.UserID] = m.CompletedTaskCount
	}
	if byUser["u1"] != 1 || byUser["u2"] != 2 {
		t.Fatalf("unexpected completed counts: %v", byUser)
	}
}

func TestRefreshTasksIsIdempotent(t *testing.T) {
	f := newFixture()
	f.backend.addRoster("team-1", leaderEntry("team-1", "u1", "Piet"))
	f.backend.tasks["team-1"] = []domain.Task{
		{ID: "t1", TeamID: "team-1", Title: "Tegels leggen", Status: domain.TaskTodo, Priority: domain.PriorityHigh},
	}
	s := f.store(Principal{UserID: "u1", DisplayName: "Piet", Role: domain.RoleLeader})
	defer s.Close()
	if err := s.SelectTeam(context.Background(), "team-1"); err != nil {
		t.Fatalf("SelectTeam: %v", err)
	}

	first := s.Tasks()
	if err := s.RefreshTasks(context.Background()); err != nil {
		t.Fatalf("RefreshTasks: %v", err)
	}
	second := s.Tasks()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated refresh changed the snapshot:\n%+v\n%+v", first, second)
	}
}

func TestAddProjectRefetchesAfterWrite(t *testing.T) {
	f := newFixture()
	f.backend.addRoster("team-1", leaderEntry("team-1", "u1", "Piet"))
	s := f.store(Principal{UserID: "u1", DisplayName: "Piet", Role: domain.RoleLeader})
	defer s.Close()
	if err := s.SelectTeam(context.Background(), "team-1"); err != nil {
		t.Fatalf("SelectTeam: %v", err)
	}

	err := s.AddProject(context.Background(), domain.Project{
		Title:      "Renovatie Damrak 12",
		ClientName: "Jansen BV",
		StartDate:  time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}

	projects := s.Projects()
	if len(projects) != 1 {
		t.Fatalf("expected exactly one project, got %d", len(projects))
	}
	p := projects[0]
	if p.Title != "Renovatie Damrak 12" || p.Status != domain.ProjectActive {
		t.Fatalf("unexpected project after refresh: %+v", p)
	}
	if p.ID == "" || p.CreatedBy != "u1" {
		t.Fatalf("expected assigned id and creator, got %+v", p)
	}
}

func TestFailedMutationLeavesCacheUntouchedAndRaisesNotice(t *testing.T) {
	f := newFixture()
	f.backend.addRoster("team-1", leaderEntry("team-1", "u1", "Piet"))
	f.backend.projects["team-1"] = []domain.Project{{ID: "p1", TeamID: "team-1", Title: "Bestaand werk", Status: domain.ProjectActive}}
	s := f.store(Principal{UserID: "u1", DisplayName: "Piet", Role: domain.RoleLeader})
	defer s.Close()
	if err := s.SelectTeam(context.Background(), "team-1"); err != nil {
		t.Fatalf("SelectTeam: %v", err)
	}

	before := s.Projects()
	f.backend.projectCreateErr = errors.New("permission denied")
	err := s.AddProject(context.Background(), domain.Project{Title: "Nieuw werk"})
	if !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}
	if !reflect.DeepEqual(before, s.Projects()) {
		t.Fatal("failed mutation changed the snapshot")
	}
	notices := s.Notices()
	if len(notices) == 0 {
		t.Fatal("expected a user-visible notice")
	}
}

func TestNonLeaderCannotCreateOrDelete(t *testing.T) {
	f := newFixture()
	f.backend.addRoster("team-1", leaderEntry("team-1", "u1", "Piet"), workerEntry("team-1", "u2", "Anna"))
	s := f.store(Principal{UserID: "u2", DisplayName: "Anna", Role: domain.RoleWorker})
	defer s.Close()
	if err := s.SelectTeam(context.Background(), "team-1"); err != nil {
		t.Fatalf("SelectTeam: %v", err)
	}

	if err := s.AddProject(context.Background(), domain.Project{Title: "Nieuw werk"}); !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}
	if len(s.Projects()) != 0 {
		t.Fatal("project created despite missing leader role")
	}
}

func TestPeerRefreshesOnPublishedProjectChange(t *testing.T) {
	f := newFixture()
	f.backend.addRoster("team-1", leaderEntry("team-1", "u1", "Piet"), workerEntry("team-1", "u2", "Anna"))

	leader := f.store(Principal{UserID: "u1", DisplayName: "Piet", Role: domain.RoleLeader})
	defer leader.Close()
	peer := f.store(Principal{UserID: "u2", DisplayName: "Anna", Role: domain.RoleWorker})
	defer peer.Close()
	ctx := context.Background()
	if err := leader.SelectTeam(ctx, "team-1"); err != nil {
		t.Fatalf("SelectTeam leader: %v", err)
	}
	if err := peer.SelectTeam(ctx, "team-1"); err != nil {
		t.Fatalf("SelectTeam peer: %v", err)
	}

	if err := leader.AddProject(ctx, domain.Project{Title: "Renovatie Damrak 12"}); err != nil {
		t.Fatalf("AddProject: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if projects := peer.Projects(); len(projects) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("peer never observed the published project change")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
