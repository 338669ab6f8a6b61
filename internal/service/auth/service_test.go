package auth

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/repository"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/pkg/config"
)

type stubUsers struct {
	byEmail map[string]*domain.User
	byID    map[string]*domain.User
}

func newStubUsers() *stubUsers {
	return &stubUsers{byEmail: make(map[string]*domain.User), byID: make(map[string]*domain.User)}
}

func (s *stubUsers) CreateUser(ctx context.Context, user *domain.User) error {
	if _, exists := s.byEmail[user.Email]; exists {
		return errors.New("duplicate email")
	}
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
	return nil
}

func (s *stubUsers) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (s *stubUsers) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

type stubMemberships struct {
	teams       []*domain.Team
	memberships []*domain.Membership
}

func (s *stubMemberships) CreateTeam(ctx context.Context, team *domain.Team) error {
	s.teams = append(s.teams, team)
	return nil
}

func (s *stubMemberships) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	for _, t := range s.teams {
		if t.ID == teamID {
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubMemberships) CreateMembership(ctx context.Context, member *domain.Membership) error {
	s.memberships = append(s.memberships, member)
	return nil
}

func (s *stubMemberships) DeactivateMembership(ctx context.Context, membershipID string, at time.Time) error {
	return nil
}

func (s *stubMemberships) ResolveActiveTeam(ctx context.Context, userID string) (string, error) {
	return "", repository.ErrNotFound
}

func (s *stubMemberships) ListTeamRoster(ctx context.Context, teamID string) ([]domain.RosterEntry, error) {
	return nil, nil
}

func (s *stubMemberships) CountCompletedTasks(ctx context.Context, teamID string) (map[string]int, error) {
	return map[string]int{}, nil
}

func testService() (Service, *stubUsers, *stubMemberships) {
	users := newStubUsers()
	memberships := &stubMemberships{}
	cfg := config.SyncConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(users, memberships, logger, cfg), users, memberships
}

func TestSignupLeaderBootstrapsTeam(t *testing.T) {
	svc, _, memberships := testService()

	user, tokens, err := svc.Signup(context.Background(), SignupInput{
		Email:       "Jan@Bouwbedrijf.NL",
		Password:    "wachtwoord123",
		DisplayName: "Jan de Vries",
		Role:        domain.RoleLeader,
		TeamName:    "Bouwploeg Noord",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if user.Email != "jan@bouwbedrijf.nl" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if len(memberships.teams) != 1 || memberships.teams[0].Name != "Bouwploeg Noord" {
		t.Fatalf("unexpected teams: %+v", memberships.teams)
	}
	if len(memberships.memberships) != 1 {
		t.Fatalf("expected one membership, got %d", len(memberships.memberships))
	}
	m := memberships.memberships[0]
	if m.Role != domain.MembershipLeader || !m.Active || m.UserID != user.ID {
		t.Fatalf("unexpected leader membership: %+v", m)
	}
}

func TestSignupWorkerSkipsTeamBootstrap(t *testing.T) {
	svc, _, memberships := testService()

	if _, _, err := svc.Signup(context.Background(), SignupInput{
		Email:       "piet@example.com",
		Password:    "wachtwoord123",
		DisplayName: "Piet",
		Role:        domain.RoleWorker,
	}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if len(memberships.teams) != 0 {
		t.Fatalf("worker signup should not create a team, got %d", len(memberships.teams))
	}
}

func TestLoginRejectsWrongPasswordWithOpaqueError(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, SignupInput{
		Email:       "anna@example.com",
		Password:    "goed-wachtwoord",
		DisplayName: "Anna",
	}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, _, err := svc.Login(ctx, "anna@example.com", "fout-wachtwoord"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, _, err := svc.Login(ctx, "onbekend@example.com", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown account: got %v", err)
	}
}

func TestAuthorizeRoundTrip(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()

	user, tokens, err := svc.Signup(ctx, SignupInput{
		Email:       "kees@example.com",
		Password:    "wachtwoord123",
		DisplayName: "Kees",
		Role:        domain.RoleContractor,
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	got, claims, err := svc.Authorize(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("authorized wrong user: %s", got.ID)
	}
	if claims.Role != string(domain.RoleContractor) || claims.DisplayName != "Kees" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
