package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/storage"
	"github.com/pawanM12/deCertify/pkg/config"
)

// UserService handles registration, login and profile lookups
type UserService struct {
	store  storage.Store
	cfg    *config.Config
	logger *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(store storage.Store, cfg *config.Config, logger *zap.Logger) *UserService {
	return &UserService{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("user-service"),
	}
}

// Register creates a user and, for organizations, its profile. The profile
// write is compensated by deleting the user so no organization exists
// without a profile.
func (s *UserService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, string, error) {
	wallet, err := domain.NormalizeWalletAddress(req.WalletAddress)
	if err != nil {
		return nil, "", err
	}
	role, err := domain.ParseRole(req.UserType)
	if err != nil {
		return nil, "", err
	}

	if existing, err := s.store.Users().GetByWallet(ctx, wallet); err == nil && existing != nil {
		return nil, "", ErrUserExists
	}

	user := &domain.User{
		ID:            domain.NewUserID(),
		WalletAddress: wallet,
		Name:          req.Name,
		Role:          role,
		Email:         req.Email,
	}

	if req.Password != nil && *req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", fmt.Errorf("failed to hash password: %w", err)
		}
		hashStr := string(hash)
		user.PasswordHash = &hashStr
	}

	steps := []sagaStep{{
		name: "create_user",
		run: func(ctx context.Context) error {
			if err := s.store.Users().Create(ctx, user); err != nil {
				if errors.Is(err, storage.ErrAlreadyExists) {
					return ErrUserExists
				}
				return fmt.Errorf("failed to create user: %w", err)
			}
			return nil
		},
		compensate: func(ctx context.Context) error {
			return s.store.Users().Delete(ctx, user.ID)
		},
	}}

	if role == domain.RoleOrganization {
		steps = append(steps, sagaStep{
			name: "create_organization_profile",
			run: func(ctx context.Context) error {
				org := &domain.Organization{
					ID:          uuid.NewString(),
					UserID:      user.ID,
					Description: req.Description,
					Website:     req.Website,
				}
				if err := s.store.Organizations().Create(ctx, org); err != nil {
					return fmt.Errorf("failed to create organization profile: %w", err)
				}
				return nil
			},
		})
	}

	reg := &saga{name: "register", steps: steps, logger: s.logger}
	if err := reg.execute(ctx); err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			return nil, "", stepErr.Err
		}
		return nil, "", err
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("User registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)))
	return user, token, nil
}

// Login authenticates by wallet address. Users registered with a password
// must present it.
func (s *UserService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.User, string, error) {
	wallet, err := domain.NormalizeWalletAddress(req.WalletAddress)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}

	user, err := s.store.Users().GetByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to get user: %w", err)
	}

	if user.PasswordHash != nil {
		if req.Password == nil {
			return nil, "", ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(*req.Password)); err != nil {
			return nil, "", ErrInvalidCredentials
		}
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("User logged in", zap.String("user_id", user.ID.String()))
	return user, token, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Me returns the caller's own profile
func (s *UserService) Me(ctx context.Context, caller domain.Caller) (*domain.User, error) {
	return s.GetUserByID(ctx, caller.UserID)
}

// MarkBlockchainRegistered records that the user registered on the ledger.
// Callers may only mark themselves.
func (s *UserService) MarkBlockchainRegistered(ctx context.Context, caller domain.Caller, id domain.UserID) (*domain.User, error) {
	if caller.UserID != id {
		return nil, ErrForbidden
	}

	user, err := s.store.Users().SetBlockchainRegistered(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.logger.Info("User registered on ledger", zap.String("user_id", id.String()))
	return user, nil
}

// ListOrganizations returns the public summary of every organization
func (s *UserService) ListOrganizations(ctx context.Context) ([]*domain.UserSummary, error) {
	users, err := s.store.Users().ListByRole(ctx, domain.RoleOrganization)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	orgs := make([]*domain.UserSummary, 0, len(users))
	for _, u := range users {
		orgs = append(orgs, u.Summary())
	}
	return orgs, nil
}

// ListUsers returns every user with the given role, or all users when role is empty
func (s *UserService) ListUsers(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	roles := []domain.Role{role}
	if role == "" {
		roles = []domain.Role{domain.RoleStudent, domain.RoleOrganization}
	}

	var all []*domain.User
	for _, r := range roles {
		users, err := s.store.Users().ListByRole(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		all = append(all, users...)
	}
	return all, nil
}

// ValidateToken validates a JWT token and returns the caller it identifies
func (s *UserService) ValidateToken(tokenString string) (domain.Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWT.Secret), nil
	}, jwt.WithIssuer(s.cfg.JWT.Issuer))
	if err != nil {
		return domain.Caller{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return domain.Caller{}, errors.New("invalid token")
	}

	userID, _ := claims["user_id"].(string)
	roleStr, _ := claims["role"].(string)
	wallet, _ := claims["wallet"].(string)
	if userID == "" {
		return domain.Caller{}, errors.New("invalid token claims")
	}
	role, err := domain.ParseRole(roleStr)
	if err != nil {
		return domain.Caller{}, fmt.Errorf("invalid token claims: %w", err)
	}

	return domain.Caller{UserID: domain.UserID(userID), Role: role, Wallet: wallet}, nil
}

func (s *UserService) generateToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"role":    string(user.Role),
		"wallet":  user.WalletAddress,
		"iss":     s.cfg.JWT.Issuer,
		"exp":     now.Add(time.Duration(s.cfg.JWT.ExpiryHours) * time.Hour).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWT.Secret))
}

// GenerateTokenForUser generates a JWT token for a user
func (s *UserService) GenerateTokenForUser(user *domain.User) (string, error) {
	return s.generateToken(user)
}
