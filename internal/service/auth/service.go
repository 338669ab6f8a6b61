package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/repository"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/pkg/config"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/pkg/crypto"
	jwtpkg "github.com/norbi07011/zzp-werkplsats-nowy-sub005/pkg/jwt"
)

var (
	// ErrInvalidCredentials hides whether the email or the password was
	// wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	errEmailRequired    = errors.New("email is required")
	errPasswordRequired = errors.New("password is required")
	errNameRequired     = errors.New("display name is required")
)

// Service handles authentication workflows.
type Service struct {
	users       repository.UserRepository
	memberships repository.MembershipRepository
	logger      *slog.Logger
	cfg         config.SyncConfig
}

// New constructs a Service.
func New(users repository.UserRepository, memberships repository.MembershipRepository, logger *slog.Logger, cfg config.SyncConfig) Service {
	return Service{users: users, memberships: memberships, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// SignupInput carries the registration form.
type SignupInput struct {
	Email       string
	Password    string
	DisplayName string
	Phone       string
	Role        domain.AccountRole
	TeamName    string
}

// Signup registers a new account. A leader signup also bootstraps the
// leader's first team with an active leader membership, so the session
// store resolves a team on the very first activation.
func (s Service) Signup(ctx context.Context, in SignupInput) (*domain.User, TokenPair, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" {
		return nil, TokenPair{}, errEmailRequired
	}
	if in.Password == "" {
		return nil, TokenPair{}, errPasswordRequired
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return nil, TokenPair{}, errNameRequired
	}
	role := in.Role
	if role == "" {
		role = domain.RoleWorker
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  name,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, TokenPair{}, err
	}

	if role == domain.RoleLeader {
		if err := s.bootstrapTeam(ctx, user, in.TeamName); err != nil {
			return nil, TokenPair{}, err
		}
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "role", role)
	return user, tokens, nil
}

// Login authenticates a user and returns tokens.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// Authorize validates a bearer token and returns the associated user and claims.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, errors.New("token required")
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

func (s Service) bootstrapTeam(ctx context.Context, user *domain.User, teamName string) error {
	name := strings.TrimSpace(teamName)
	if name == "" {
		name = user.DisplayName
	}
	now := time.Now().UTC()
	team := &domain.Team{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   user.ID,
		CreatedAt: now,
	}
	if err := s.memberships.CreateTeam(ctx, team); err != nil {
		return err
	}
	member := &domain.Membership{
		ID:        uuid.NewString(),
		TeamID:    team.ID,
		UserID:    user.ID,
		Role:      domain.MembershipLeader,
		Available: true,
		Active:    true,
		CreatedAt: now,
	}
	return s.memberships.CreateMembership(ctx, member)
}

func (s Service) issueTokens(user *domain.User) (TokenPair, error) {
	access, err := jwtpkg.GenerateToken(user.ID, user.DisplayName, string(user.Role), "", s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(user.ID, user.DisplayName, string(user.Role), "", s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}
