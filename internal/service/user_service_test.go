package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-booking-service/internal/domain"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

func adminIdentity(user *domain.User) *domain.Identity {
	return &domain.Identity{UserID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}
}

func TestCreateAdminOnlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	admin, err := h.users.CreateAdmin(ctx, CreateUserInput{Name: "Root", Email: "root@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	assert.NotEqual(t, "secret1", admin.PasswordHash)

	_, err = h.users.CreateAdmin(ctx, CreateUserInput{Name: "Other", Email: "other@example.com", Password: "secret1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestCreateAdminConcurrentBootstrapCreatesOne(t *testing.T) {
	h := newHarness(t)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.users.CreateAdmin(context.Background(), CreateUserInput{
				Name:     fmt.Sprintf("Root %d", i),
				Email:    fmt.Sprintf("root%d@example.com", i),
				Password: "secret1",
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
			continue
		}
		assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "got %v", err)
	}
	assert.Equal(t, 1, created)

	admins, err := fakeUserRepo{h.store}.CountAdmins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, admins)
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	input := CreateUserInput{Name: "Sam", Email: "sam@example.com", Password: "secret1"}

	_, err := h.users.CreateUser(ctx, nil, input)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = h.users.CreateUser(ctx, &domain.Identity{UserID: "u", Role: domain.RoleUser}, input)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = h.users.CreateUser(ctx, &domain.Identity{UserID: "u", Role: "admin"}, input)
	assert.NoError(t, err)
}

func TestCreateUserValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin, err := h.users.CreateAdmin(ctx, CreateUserInput{Name: "Root", Email: "root@example.com", Password: "secret1"})
	require.NoError(t, err)
	actor := adminIdentity(admin)

	tests := []struct {
		name  string
		input CreateUserInput
		code  string
	}{
		{"missing name", CreateUserInput{Email: "a@example.com", Password: "secret1"}, apperrors.CodeValidation},
		{"bad email", CreateUserInput{Name: "A", Email: "not-an-email", Password: "secret1"}, apperrors.CodeValidation},
		{"short password", CreateUserInput{Name: "A", Email: "a@example.com", Password: "123"}, apperrors.CodeValidation},
		{"unknown role", CreateUserInput{Name: "A", Email: "a@example.com", Password: "secret1", Role: "Owner"}, apperrors.CodeValidation},
		{"duplicate email", CreateUserInput{Name: "A", Email: "ROOT@example.com", Password: "secret1"}, apperrors.CodeDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.users.CreateUser(ctx, actor, tt.input)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestCreateUserNormalizesRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := &domain.Identity{UserID: "root", Role: domain.RoleAdmin}

	defaulted, err := h.users.CreateUser(ctx, actor, CreateUserInput{Name: "Sam", Email: "sam@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, defaulted.Role)

	promoted, err := h.users.CreateUser(ctx, actor, CreateUserInput{Name: "Ria", Email: "ria@example.com", Password: "secret1", Role: "ADMIN"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, promoted.Role)
}

func TestUpdateAndDeleteUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin, err := h.users.CreateAdmin(ctx, CreateUserInput{Name: "Root", Email: "root@example.com", Password: "secret1"})
	require.NoError(t, err)
	actor := adminIdentity(admin)

	sam, err := h.users.CreateUser(ctx, actor, CreateUserInput{Name: "Sam", Email: "sam@example.com", Password: "secret1"})
	require.NoError(t, err)

	rename := "Samuel"
	updated, err := h.users.UpdateUser(ctx, actor, sam.ID, UpdateUserInput{Name: &rename})
	require.NoError(t, err)
	assert.Equal(t, "Samuel", updated.Name)

	taken := "root@example.com"
	_, err = h.users.UpdateUser(ctx, actor, sam.ID, UpdateUserInput{Email: &taken})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDuplicate))

	users, err := h.users.ListUsers(ctx, actor)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.NoError(t, h.users.DeleteUser(ctx, actor, sam.ID))
	_, err = h.users.GetUser(ctx, actor, sam.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	err = h.users.DeleteUser(ctx, actor, sam.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestDeleteUserKeepsHandledBookings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := &domain.Identity{UserID: "root", Role: domain.RoleAdmin}
	sam, err := h.users.CreateUser(ctx, actor, CreateUserInput{Name: "Sam", Email: "sam@example.com", Password: "secret1"})
	require.NoError(t, err)

	booking := h.book(t, "Jane", "081234567890")
	_, err = h.queue.CancelBooking(ctx, booking.ID, sam.ID)
	require.NoError(t, err)

	require.NoError(t, h.users.DeleteUser(ctx, actor, sam.ID))

	kept, err := h.bookings.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, kept.Status)
	assert.Nil(t, kept.HandledByID)
}
