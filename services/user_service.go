package services

import (
	"context"
	"errors"
	"strings"

	"hkl-restful/models"
	"hkl-restful/policy"
	"hkl-restful/repositories"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// The UserService interface defines registration, login and actor resolution.
type UserService interface {
	Register(ctx context.Context, input *RegisterInput) (*models.User, error)
	Login(ctx context.Context, input *LoginInput) (*models.User, error)
	// ResolveActor loads the current role and city of a user id.
	ResolveActor(ctx context.Context, userID string) (policy.Actor, error)
}

// --- Structs for Input ---
type RegisterInput struct {
	Name     string  `json:"name" description:"Display name"`
	Email    string  `json:"email" description:"Unique e-mail address"`
	Password string  `json:"password" description:"Plain-text password"`
	Role     string  `json:"role" description:"user, admin or super_admin (default user)"`
	City     *string `json:"city,omitempty" description:"Required for admins"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserServiceOptions struct {
	// OpenRoleRegistration allows self-registration as admin or super_admin.
	OpenRoleRegistration bool
}

type userService struct {
	repo repositories.UserRepository
	opts UserServiceOptions
}

var _ UserService = (*userService)(nil)

// NewUserService creates a new UserService instance
func NewUserService(repo repositories.UserRepository, opts UserServiceOptions) UserService {
	return &userService{repo: repo, opts: opts}
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ActorOf projects a stored user onto the authorization actor.
func ActorOf(u *models.User) policy.Actor {
	actor := policy.Actor{ID: u.ID, Role: u.Role}
	if u.City != nil && strings.TrimSpace(*u.City) != "" {
		city := strings.TrimSpace(*u.City)
		actor.City = &city
	}
	return actor
}

// Register validates and stores a new account.
func (s *userService) Register(ctx context.Context, input *RegisterInput) (*models.User, error) {
	name := strings.TrimSpace(input.Name)
	email := NormalizeEmail(input.Email)
	if name == "" || email == "" || input.Password == "" {
		return nil, ValidationError("name, email and password are required")
	}
	if !strings.Contains(email, "@") {
		return nil, ValidationError("Invalid email")
	}

	role, ok := models.ParseRole(input.Role)
	if !ok {
		return nil, ValidationError("Invalid role")
	}

	var city *string
	if input.City != nil && strings.TrimSpace(*input.City) != "" {
		c := strings.TrimSpace(*input.City)
		city = &c
	}
	if role == models.RoleAdmin && city == nil {
		return nil, ValidationError("city is required for admins")
	}
	if role.Privileged() && !s.opts.OpenRoleRegistration {
		return nil, AuthorizationError("Registration is limited to the user role")
	}

	// Check if email already exists
	_, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		return nil, ConflictError("Email already in use")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, UnexpectedError("Database error checking existing user", err)
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, UnexpectedError("Could not hash password", err)
	}

	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         role,
		City:         city,
	}
	if err := s.repo.Create(ctx, &user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race with a concurrent registration.
			return nil, ConflictError("Email already in use")
		}
		return nil, UnexpectedError("Failed to create user", err)
	}

	return &user, nil
}

// Login verifies credentials without revealing whether the account exists.
func (s *userService) Login(ctx context.Context, input *LoginInput) (*models.User, error) {
	email := NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, ValidationError("email and password are required")
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, AuthenticationError("Invalid credentials")
		}
		return nil, UnexpectedError("Database error retrieving user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, AuthenticationError("Invalid credentials")
	}
	return user, nil
}

func (s *userService) ResolveActor(ctx context.Context, userID string) (policy.Actor, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return policy.Actor{}, AuthenticationError("User not found")
		}
		return policy.Actor{}, UnexpectedError("Database error resolving user", err)
	}
	return ActorOf(user), nil
}
