// Package directory resolves and manages user accounts. Controllers only need
// Lookup; signup and credential checks back the HTTP auth routes.
package directory

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"quill/api/internal/rbac"
	"quill/api/internal/store"
	"quill/api/internal/util"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// UserStore is the storage surface the directory needs.
type UserStore interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByID(ctx context.Context, userID string) (store.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, bool, error)
	UpdateUserRole(ctx context.Context, userID, role string) error
}

// Cache is an optional read-through cache for Lookup. A nil Cache disables
// caching.
type Cache interface {
	Get(ctx context.Context, userID string) (store.User, bool)
	Put(ctx context.Context, user store.User)
	Drop(ctx context.Context, userID string)
}

type Service struct {
	store UserStore
	cache Cache
}

func New(userStore UserStore, cache Cache) *Service {
	return &Service{store: userStore, cache: cache}
}

// Lookup resolves a user by id. Absence is a value, not an error.
func (s *Service) Lookup(ctx context.Context, userID string) (store.User, bool, error) {
	if userID == "" {
		return store.User{}, false, nil
	}
	if s.cache != nil {
		if user, ok := s.cache.Get(ctx, userID); ok {
			return user, true, nil
		}
	}

	user, found, err := s.store.GetUserByID(ctx, userID)
	if err != nil || !found {
		return store.User{}, found, err
	}
	if s.cache != nil {
		s.cache.Put(ctx, user)
	}
	return user, true, nil
}

type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUp registers a new account with the registered role.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		return store.User{}, errors.New("email, password, and display name are required")
	}
	if len(req.Password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	if _, exists, err := s.store.GetUserByEmail(ctx, req.Email); err != nil {
		return store.User{}, err
	} else if exists {
		return store.User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         string(rbac.RoleRegistered),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate checks an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (store.User, error) {
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, found, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, err
	}
	if !found {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// SetRole changes a user's role and drops any cached copy.
func (s *Service) SetRole(ctx context.Context, userID string, role rbac.Role) error {
	if err := s.store.UpdateUserRole(ctx, userID, string(rbac.Normalize(string(role)))); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Drop(ctx, userID)
	}
	return nil
}
