package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-booking-service/internal/domain"
	"github.com/spec-kit/queue-booking-service/internal/persistence"
)

func TestCreateNumberedIsContiguousUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	bookings := NewBookingRepository(pool)
	day := domain.NewDayBucket(time.Now(), time.UTC)

	const clients = 20
	var wg sync.WaitGroup
	numbers := make(chan int, clients)
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			booking := newBooking(fmt.Sprintf("Client %d", i), fmt.Sprintf("08123456%04d", i), day.Start.Add(time.Hour))
			if err := bookings.CreateNumbered(ctx, booking, day); err != nil {
				errs <- err
				return
			}
			numbers <- booking.QueueNumber
		}(i)
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Fatalf("create booking: %v", err)
	}

	seen := make(map[int]bool)
	for n := range numbers {
		require.False(t, seen[n], "queue number %d allocated twice", n)
		seen[n] = true
	}
	for n := 1; n <= clients; n++ {
		assert.True(t, seen[n], "queue number %d missing", n)
	}
}

func TestCreateNumberedRejectsDuplicatePhoneSameDay(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	bookings := NewBookingRepository(pool)
	today := domain.NewDayBucket(time.Now(), time.UTC)
	tomorrow := domain.NewDayBucket(today.End, time.UTC)

	require.NoError(t, bookings.CreateNumbered(ctx, newBooking("Jane", "081234567890", today.Start), today))

	err := bookings.CreateNumbered(ctx, newBooking("Jane Again", "081234567890", today.Start), today)
	assert.ErrorIs(t, err, ErrDuplicatePhone)

	next := newBooking("Jane", "081234567890", tomorrow.Start.Add(9*time.Hour))
	require.NoError(t, bookings.CreateNumbered(ctx, next, tomorrow))
	assert.Equal(t, 1, next.QueueNumber)
}

func TestClaimNextWaitingPrefersUnassigned(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	bookings := NewBookingRepository(pool)
	windows := NewWindowRepository(pool)
	day := domain.NewDayBucket(time.Now(), time.UTC)

	window := &domain.Window{Name: "Front", Number: 1, Active: true}
	require.NoError(t, windows.Create(ctx, window))

	first := newBooking("First", "081200000001", day.Start)
	second := newBooking("Second", "081200000002", day.Start)
	require.NoError(t, bookings.CreateNumbered(ctx, first, day))
	require.NoError(t, bookings.CreateNumbered(ctx, second, day))

	require.NoError(t, bookings.SetWindow(ctx, first.ID, &window.ID))

	claimed, err := bookings.ClaimNextWaiting(ctx, day, &window.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed.ID)
	require.NotNil(t, claimed.WindowNumber)
	assert.Equal(t, 1, *claimed.WindowNumber)
	assert.Equal(t, "#2 - Second - Window 1", claimed.DisplayName())
}

func TestClaimNextWaitingEmptyQueue(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	bookings := NewBookingRepository(pool)

	_, err := bookings.ClaimNextWaiting(ctx, domain.NewDayBucket(time.Now(), time.UTC), nil)
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
}

func TestAssignKeepsOneActiveRowPerUserAndWindow(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	windows := NewWindowRepository(pool)
	users := NewUserRepository(pool)

	staff := &domain.User{Name: "Sam", Email: "sam@example.com", PasswordHash: "x", Role: domain.RoleUser}
	require.NoError(t, users.Create(ctx, staff))
	w1 := &domain.Window{Name: "One", Number: 1, Active: true}
	w2 := &domain.Window{Name: "Two", Number: 2, Active: true}
	require.NoError(t, windows.Create(ctx, w1))
	require.NoError(t, windows.Create(ctx, w2))

	now := time.Now()
	_, err := windows.Assign(ctx, staff.ID, w1.ID, now)
	require.NoError(t, err)
	_, err = windows.Assign(ctx, staff.ID, w2.ID, now.Add(time.Minute))
	require.NoError(t, err)

	var activeForStaff, activeForFirst int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM window_assignments WHERE user_id=$1 AND is_active`, staff.ID).Scan(&activeForStaff))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM window_assignments WHERE window_id=$1 AND is_active`, w1.ID).Scan(&activeForFirst))
	assert.Equal(t, 1, activeForStaff)
	assert.Equal(t, 0, activeForFirst)

	current, err := windows.CurrentWindowForUser(ctx, staff.ID)
	require.NoError(t, err)
	assert.Equal(t, w2.ID, current.ID)

	var released int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM window_assignments WHERE window_id=$1 AND released_at IS NOT NULL`, w1.ID).Scan(&released))
	assert.Equal(t, 1, released)
}

func TestWindowNumberUnique(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	windows := NewWindowRepository(pool)

	require.NoError(t, windows.Create(ctx, &domain.Window{Name: "One", Number: 7, Active: true}))
	err := windows.Create(ctx, &domain.Window{Name: "Other", Number: 7, Active: true})
	assert.ErrorIs(t, err, ErrDuplicateWindowNumber)
}

func TestTrackingRefreshCounts(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	bookings := NewBookingRepository(pool)
	tracking := NewTrackingRepository(pool)
	day := domain.NewDayBucket(time.Now(), time.UTC)

	a := newBooking("A", "081200000011", day.Start)
	b := newBooking("B", "081200000012", day.Start)
	require.NoError(t, bookings.CreateNumbered(ctx, a, day))
	require.NoError(t, bookings.CreateNumbered(ctx, b, day))
	a.Status = domain.BookingStatusCompleted
	require.NoError(t, bookings.Transition(ctx, a, domain.BookingStatusWaiting, false))
	assert.ErrorIs(t, bookings.Transition(ctx, a, domain.BookingStatusWaiting, false), ErrStatusChanged)

	record, err := tracking.RefreshCounts(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, record.TotalBookings)
	assert.Equal(t, 1, record.WaitingCount)
	assert.Equal(t, 1, record.CompletedCount)

	recall := time.Now()
	record, err = tracking.SetCurrentServing(ctx, day, 2, &recall)
	require.NoError(t, err)
	assert.Equal(t, 2, record.CurrentServing)
	require.NotNil(t, record.LastRecallAt)

	record, err = tracking.SetCurrentServing(ctx, day, 3, nil)
	require.NoError(t, err)
	assert.NotNil(t, record.LastRecallAt, "recall time is kept when not stamped")
}

func TestClaimNextWaitingConcurrentCallersGetDistinctBookings(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	bookings := NewBookingRepository(pool)
	windows := NewWindowRepository(pool)
	day := domain.NewDayBucket(time.Now(), time.UTC)

	const staff = 8
	windowIDs := make([]string, staff)
	for i := 0; i < staff; i++ {
		window := &domain.Window{Name: fmt.Sprintf("Window %d", i+1), Number: i + 1, Active: true}
		require.NoError(t, windows.Create(ctx, window))
		windowIDs[i] = window.ID
		require.NoError(t, bookings.CreateNumbered(ctx, newBooking(fmt.Sprintf("Client %d", i), fmt.Sprintf("08129999%04d", i), day.Start), day))
	}

	var wg sync.WaitGroup
	claimed := make(chan string, staff)
	errs := make(chan error, staff)
	for i := 0; i < staff; i++ {
		wg.Add(1)
		go func(windowID string) {
			defer wg.Done()
			booking, err := bookings.ClaimNextWaiting(ctx, day, &windowID)
			if err != nil {
				errs <- err
				return
			}
			claimed <- booking.ID
		}(windowIDs[i])
	}
	wg.Wait()
	close(claimed)
	close(errs)

	for err := range errs {
		t.Fatalf("claim next waiting: %v", err)
	}
	seen := make(map[string]bool)
	for id := range claimed {
		require.False(t, seen[id], "booking %s handed out twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, staff)

	var unassigned int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE window_id IS NULL`).Scan(&unassigned))
	assert.Zero(t, unassigned)
}

func TestAssignConcurrentKeepsOneActiveRow(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	windows := NewWindowRepository(pool)
	users := NewUserRepository(pool)

	staff := &domain.User{Name: "Sam", Email: "sam@example.com", PasswordHash: "x", Role: domain.RoleUser}
	require.NoError(t, users.Create(ctx, staff))
	w1 := &domain.Window{Name: "One", Number: 1, Active: true}
	w2 := &domain.Window{Name: "Two", Number: 2, Active: true}
	require.NoError(t, windows.Create(ctx, w1))
	require.NoError(t, windows.Create(ctx, w2))

	const rounds = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		for _, windowID := range []string{w1.ID, w2.ID} {
			wg.Add(1)
			go func(windowID string) {
				defer wg.Done()
				if _, err := windows.Assign(ctx, staff.ID, windowID, time.Now()); err != nil {
					errs <- err
				}
			}(windowID)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("assign window: %v", err)
	}

	var active int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM window_assignments WHERE user_id=$1 AND is_active`, staff.ID).Scan(&active))
	assert.Equal(t, 1, active)

	var total int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM window_assignments WHERE user_id=$1`, staff.ID).Scan(&total))
	assert.Equal(t, 2*rounds, total)
}

func TestTransitionLeavesWindowUnlessAsked(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	bookings := NewBookingRepository(pool)
	windows := NewWindowRepository(pool)
	day := domain.NewDayBucket(time.Now(), time.UTC)

	window := &domain.Window{Name: "Front", Number: 1, Active: true}
	require.NoError(t, windows.Create(ctx, window))
	booking := newBooking("Jane", "081234567890", day.Start)
	require.NoError(t, bookings.CreateNumbered(ctx, booking, day))

	loaded, err := bookings.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	_, err = bookings.ClaimNextWaiting(ctx, day, &window.ID)
	require.NoError(t, err)

	loaded.Status = domain.BookingStatusCancelled
	require.NoError(t, bookings.Transition(ctx, loaded, domain.BookingStatusWaiting, false))

	stored, err := bookings.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, stored.Status)
	require.NotNil(t, stored.WindowID)
	assert.Equal(t, window.ID, *stored.WindowID)
}

func TestListOrdersByQueueNumber(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	bookings := NewBookingRepository(pool)
	today := domain.NewDayBucket(time.Now(), time.UTC)
	tomorrow := domain.NewDayBucket(today.End, time.UTC)

	require.NoError(t, bookings.CreateNumbered(ctx, newBooking("A", "081200000021", tomorrow.Start), tomorrow))
	require.NoError(t, bookings.CreateNumbered(ctx, newBooking("B", "081200000022", today.Start), today))
	require.NoError(t, bookings.CreateNumbered(ctx, newBooking("C", "081200000023", today.Start), today))

	all, err := bookings.List(ctx, BookingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"B", "A", "C"}, []string{all[0].Name, all[1].Name, all[2].Name})
}

func TestCreateFirstAdminConcurrentCreatesOne(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t, ctx)
	users := NewUserRepository(pool)

	const callers = 6
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- users.CreateFirstAdmin(ctx, &domain.User{
				Name:         fmt.Sprintf("Root %d", i),
				Email:        fmt.Sprintf("root%d@example.com", i),
				PasswordHash: "x",
				Role:         domain.RoleAdmin,
			})
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
		assert.ErrorIs(t, err, ErrAdminExists)
	}
	assert.Equal(t, 1, created)

	admins, err := users.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, admins)
}

func newBooking(name, phone string, at time.Time) *domain.Booking {
	return &domain.Booking{
		Name:          name,
		Phone:         phone,
		BookingDate:   at,
		DateSelection: domain.DateSelectionToday,
		Status:        domain.BookingStatusWaiting,
	}
}

func setupTestPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execAdmin(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		_ = execAdmin(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	})

	if err := persistence.RunMigrations(ctx, pool, "../../migrations", zap.NewNop()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return pool
}

func execAdmin(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}
