package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"quill/api/internal/rbac"
	"quill/api/internal/store"
)

type fakeUserStore struct {
	users      map[string]store.User
	getByIDFn  func(ctx context.Context, userID string) (store.User, bool, error)
	getCalls   int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]store.User{}}
}

func (f *fakeUserStore) CreateUser(_ context.Context, user store.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, userID string) (store.User, bool, error) {
	f.getCalls++
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, userID)
	}
	user, ok := f.users[userID]
	return user, ok, nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (store.User, bool, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return store.User{}, false, nil
}

func (f *fakeUserStore) UpdateUserRole(_ context.Context, userID, role string) error {
	u, ok := f.users[userID]
	if !ok {
		return errors.New("no such user")
	}
	u.Role = role
	f.users[userID] = u
	return nil
}

func setupCache(t *testing.T) *RedisCache {
	t.Helper()
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	return cache
}

func TestSignUpAndAuthenticate(t *testing.T) {
	svc := New(newFakeUserStore(), nil)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Email: "ana@example.com", Password: "long-enough", DisplayName: "Ana"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if user.Role != string(rbac.RoleRegistered) {
		t.Fatalf("role = %q, want registered", user.Role)
	}
	if user.PasswordHash == "long-enough" || user.PasswordHash == "" {
		t.Fatal("password stored unhashed")
	}

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "ana@example.com", Password: "long-enough", DisplayName: "Ana"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate sign up err = %v, want ErrEmailTaken", err)
	}

	if _, err := svc.Authenticate(ctx, "ana@example.com", "long-enough"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "ana@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLookupReadsThroughCache(t *testing.T) {
	users := newFakeUserStore()
	cache := setupCache(t)
	svc := New(users, cache)
	ctx := context.Background()

	seed := store.User{ID: "usr_1", Email: "bo@example.com", DisplayName: "Bo", Role: "moderator"}
	users.users[seed.ID] = seed

	for i := 0; i < 3; i++ {
		user, found, err := svc.Lookup(ctx, seed.ID)
		if err != nil || !found {
			t.Fatalf("lookup %d: found=%v err=%v", i, found, err)
		}
		if user.Role != "moderator" {
			t.Fatalf("lookup %d role = %q", i, user.Role)
		}
	}
	if users.getCalls != 1 {
		t.Fatalf("store hit %d times, want 1 (cache must absorb repeats)", users.getCalls)
	}
}

func TestSetRoleDropsCache(t *testing.T) {
	users := newFakeUserStore()
	cache := setupCache(t)
	svc := New(users, cache)
	ctx := context.Background()

	seed := store.User{ID: "usr_2", Email: "cy@example.com", Role: "registered"}
	users.users[seed.ID] = seed

	if _, _, err := svc.Lookup(ctx, seed.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if err := svc.SetRole(ctx, seed.ID, rbac.RoleModerator); err != nil {
		t.Fatalf("set role: %v", err)
	}

	user, found, err := svc.Lookup(ctx, seed.ID)
	if err != nil || !found {
		t.Fatalf("lookup after set role: found=%v err=%v", found, err)
	}
	if user.Role != "moderator" {
		t.Fatalf("role = %q, want moderator after cache drop", user.Role)
	}
}

func TestLookupMissingUser(t *testing.T) {
	svc := New(newFakeUserStore(), nil)

	if _, found, err := svc.Lookup(context.Background(), "usr_missing"); found || err != nil {
		t.Fatalf("missing user: found=%v err=%v", found, err)
	}
	if _, found, _ := svc.Lookup(context.Background(), ""); found {
		t.Fatal("empty id must resolve to absent, not an error")
	}
}
