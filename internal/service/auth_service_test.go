package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Email]; ok {
		return primitive.NilObjectID, repository.ErrDuplicate
	}
	user.ID = primitive.NewObjectID()
	r.users[user.Email] = *user
	return user.ID, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc := NewAuthService(&fakeUserRepo{users: map[string]domain.User{}}, "test-secret", time.Hour)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Ops", "ops@example.com", "s3cret!", domain.RoleAdmin)
	require.NoError(t, err)
	assert.Empty(t, user.PasswordHash)

	_, err = svc.Register(ctx, "Ops", "ops@example.com", "other", domain.RoleAdmin)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	token, loggedIn, err := svc.Login(ctx, "ops@example.com", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.Equal(t, user.ID.Hex(), claims.UserID)

	_, _, err = svc.Login(ctx, "ops@example.com", "wrong")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, _, err = svc.Login(ctx, "nobody@example.com", "x")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthService_RegisterValidates(t *testing.T) {
	svc := NewAuthService(&fakeUserRepo{users: map[string]domain.User{}}, "test-secret", 0)

	_, err := svc.Register(context.Background(), "", "a@b.c", "x", domain.RoleUser)
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = svc.Register(context.Background(), "n", "a@b.c", "x", domain.Role("trainer"))
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestAuthService_BootstrapAdmin(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]domain.User{}}
	svc := NewAuthService(repo, "test-secret", time.Hour)
	ctx := context.Background()

	created, err := svc.BootstrapAdmin(ctx, "Root", "root@example.com", "changeme123")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.RoleAdmin, repo.users["root@example.com"].Role)

	created, err = svc.BootstrapAdmin(ctx, "Root", "root@example.com", "another-password")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = svc.Login(ctx, "root@example.com", "changeme123")
	assert.NoError(t, err)
}

func TestAuthService_BootstrapAdminLeavesExistingUser(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]domain.User{}}
	svc := NewAuthService(repo, "test-secret", time.Hour)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Jo", "jo@example.com", "password1", domain.RoleUser)
	require.NoError(t, err)

	created, err := svc.BootstrapAdmin(ctx, "Jo", "jo@example.com", "password1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, domain.RoleUser, repo.users["jo@example.com"].Role)
}
