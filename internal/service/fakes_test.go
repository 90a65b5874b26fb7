package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/queue-booking-service/internal/config"
	"github.com/spec-kit/queue-booking-service/internal/domain"
	"github.com/spec-kit/queue-booking-service/internal/events"
	"github.com/spec-kit/queue-booking-service/internal/repository"
)

// fakeStore is an in-memory stand-in for the Postgres schema shared by the fake repositories.
type fakeStore struct {
	mu          sync.Mutex
	seq         int
	bookings    map[string]*storedBooking
	windows     map[string]*domain.Window
	assignments []*domain.WindowAssignment
	users       map[string]*domain.User
	tracking    map[string]*domain.TrackingRecord
}

type storedBooking struct {
	booking domain.Booking
	day     string
	created int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bookings: make(map[string]*storedBooking),
		windows:  make(map[string]*domain.Window),
		users:    make(map[string]*domain.User),
		tracking: make(map[string]*domain.TrackingRecord),
	}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// view resolves the joined columns the SQL repository returns.
func (s *fakeStore) view(row *storedBooking) *domain.Booking {
	b := row.booking
	b.WindowNumber = nil
	b.HandledByName = nil
	if b.WindowID != nil {
		if w, ok := s.windows[*b.WindowID]; ok {
			number := w.Number
			b.WindowNumber = &number
		}
	}
	if b.HandledByID != nil {
		if u, ok := s.users[*b.HandledByID]; ok {
			name := u.Name
			b.HandledByName = &name
		}
	}
	return &b
}

type fakeBookingRepo struct{ *fakeStore }

func (r fakeBookingRepo) CreateNumbered(_ context.Context, booking *domain.Booking, day domain.DayBucket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := 1
	for _, row := range r.bookings {
		if row.day != day.String() {
			continue
		}
		if row.booking.Phone == booking.Phone {
			return repository.ErrDuplicatePhone
		}
		if row.booking.QueueNumber >= next {
			next = row.booking.QueueNumber + 1
		}
	}

	booking.ID = r.nextID("booking")
	booking.QueueNumber = next
	booking.CreatedAt = time.Now()
	r.bookings[booking.ID] = &storedBooking{booking: *booking, day: day.String(), created: r.seq}
	return nil
}

func (r fakeBookingRepo) SetWindow(_ context.Context, id string, windowID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.bookings[id]
	if !ok {
		return pgx.ErrNoRows
	}
	row.booking.WindowID = windowID
	return nil
}

func (r fakeBookingRepo) SetNotes(_ context.Context, id string, notes *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.bookings[id]
	if !ok {
		return pgx.ErrNoRows
	}
	row.booking.Notes = notes
	return nil
}

func (r fakeBookingRepo) Transition(_ context.Context, booking *domain.Booking, from domain.BookingStatus, setWindow bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.bookings[booking.ID]
	if !ok || row.booking.Status != from {
		return repository.ErrStatusChanged
	}
	row.booking.Status = booking.Status
	if setWindow {
		row.booking.WindowID = booking.WindowID
	}
	row.booking.StartedAt = booking.StartedAt
	row.booking.EndedAt = booking.EndedAt
	row.booking.TimeTaken = booking.TimeTaken
	row.booking.HandledByID = booking.HandledByID
	return nil
}

func (r fakeBookingRepo) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.bookings[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return r.view(row), nil
}

func (r fakeBookingRepo) List(_ context.Context, filter repository.BookingFilter) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []*storedBooking
	for _, row := range r.bookings {
		if filter.Day != nil && !filter.Day.Contains(row.booking.BookingDate) {
			continue
		}
		if filter.Status != nil && row.booking.Status != *filter.Status {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].booking.QueueNumber != rows[j].booking.QueueNumber {
			return rows[i].booking.QueueNumber < rows[j].booking.QueueNumber
		}
		return rows[i].day < rows[j].day
	})

	result := make([]domain.Booking, 0, len(rows))
	for _, row := range rows {
		result = append(result, *r.view(row))
	}
	return result, nil
}

func (r fakeBookingRepo) ClaimNextWaiting(_ context.Context, day domain.DayBucket, windowID *string) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *storedBooking
	for _, row := range r.bookings {
		if !day.Contains(row.booking.BookingDate) || row.booking.Status != domain.BookingStatusWaiting {
			continue
		}
		if best == nil || claimsBefore(row, best) {
			best = row
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	if windowID != nil {
		id := *windowID
		best.booking.WindowID = &id
	}
	return r.view(best), nil
}

func claimsBefore(a, b *storedBooking) bool {
	aFree, bFree := a.booking.WindowID == nil, b.booking.WindowID == nil
	if aFree != bFree {
		return aFree
	}
	return a.booking.QueueNumber < b.booking.QueueNumber
}

func (r fakeBookingRepo) LatestByQueueNumber(_ context.Context, day domain.DayBucket, number int) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *storedBooking
	for _, row := range r.bookings {
		if !day.Contains(row.booking.BookingDate) || row.booking.QueueNumber != number {
			continue
		}
		if latest == nil || row.created > latest.created {
			latest = row
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	return r.view(latest), nil
}

type fakeTrackingRepo struct{ *fakeStore }

func (r fakeTrackingRepo) ensure(day domain.DayBucket) *domain.TrackingRecord {
	record, ok := r.tracking[day.String()]
	if !ok {
		record = &domain.TrackingRecord{ID: r.nextID("tracking"), Day: day.Date, Active: true}
		r.tracking[day.String()] = record
	}
	return record
}

func (r fakeTrackingRepo) GetOrCreate(_ context.Context, day domain.DayBucket) (*domain.TrackingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *r.ensure(day)
	return &copied, nil
}

func (r fakeTrackingRepo) RefreshCounts(_ context.Context, day domain.DayBucket) (*domain.TrackingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record := r.ensure(day)
	record.TotalBookings, record.WaitingCount, record.CompletedCount = 0, 0, 0
	for _, row := range r.bookings {
		if !day.Contains(row.booking.BookingDate) {
			continue
		}
		record.TotalBookings++
		switch row.booking.Status {
		case domain.BookingStatusWaiting:
			record.WaitingCount++
		case domain.BookingStatusCompleted:
			record.CompletedCount++
		}
	}
	copied := *record
	return &copied, nil
}

func (r fakeTrackingRepo) SetCurrentServing(_ context.Context, day domain.DayBucket, number int, recallAt *time.Time) (*domain.TrackingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record := r.ensure(day)
	record.CurrentServing = number
	if recallAt != nil {
		at := *recallAt
		record.LastRecallAt = &at
	}
	copied := *record
	return &copied, nil
}

type fakeWindowRepo struct{ *fakeStore }

func (r fakeWindowRepo) Create(_ context.Context, window *domain.Window) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.windows {
		if w.Number == window.Number {
			return repository.ErrDuplicateWindowNumber
		}
	}
	window.ID = r.nextID("window")
	window.CreatedAt = time.Now()
	copied := *window
	r.windows[window.ID] = &copied
	return nil
}

func (r fakeWindowRepo) Update(_ context.Context, window *domain.Window) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.windows[window.ID]; !ok {
		return pgx.ErrNoRows
	}
	for _, w := range r.windows {
		if w.ID != window.ID && w.Number == window.Number {
			return repository.ErrDuplicateWindowNumber
		}
	}
	copied := *window
	r.windows[window.ID] = &copied
	return nil
}

func (r fakeWindowRepo) GetByID(_ context.Context, id string) (*domain.Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *w
	return &copied, nil
}

func (r fakeWindowRepo) NumberTaken(_ context.Context, number int, excludeID *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.windows {
		if w.Number == number && (excludeID == nil || w.ID != *excludeID) {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeWindowRepo) List(_ context.Context, activeOnly bool) ([]domain.Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Window
	for _, w := range r.windows {
		if activeOnly && !w.Active {
			continue
		}
		result = append(result, *w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

func (r fakeWindowRepo) Assign(_ context.Context, userID, windowID string, at time.Time) (*domain.WindowAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return nil, pgx.ErrNoRows
	}
	if _, ok := r.windows[windowID]; !ok {
		return nil, pgx.ErrNoRows
	}
	for _, a := range r.assignments {
		if a.Active && (a.UserID == userID || a.WindowID == windowID) {
			released := at
			a.Active = false
			a.ReleasedAt = &released
		}
	}
	assignment := &domain.WindowAssignment{
		ID:         r.nextID("assignment"),
		UserID:     userID,
		WindowID:   windowID,
		Active:     true,
		AssignedAt: at,
	}
	r.assignments = append(r.assignments, assignment)
	copied := *assignment
	return &copied, nil
}

func (r fakeWindowRepo) Release(_ context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var released int64
	for _, a := range r.assignments {
		if a.Active && a.UserID == userID {
			releasedAt := at
			a.Active = false
			a.ReleasedAt = &releasedAt
			released++
		}
	}
	return released, nil
}

func (r fakeWindowRepo) activeAssignment(match func(*domain.WindowAssignment) bool) *domain.WindowAssignment {
	var latest *domain.WindowAssignment
	for _, a := range r.assignments {
		if a.Active && match(a) && (latest == nil || a.AssignedAt.After(latest.AssignedAt)) {
			latest = a
		}
	}
	return latest
}

func (r fakeWindowRepo) CurrentWindowForUser(_ context.Context, userID string) (*domain.Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.activeAssignment(func(a *domain.WindowAssignment) bool { return a.UserID == userID })
	if a == nil {
		return nil, pgx.ErrNoRows
	}
	copied := *r.windows[a.WindowID]
	return &copied, nil
}

func (r fakeWindowRepo) CurrentStaffForWindow(_ context.Context, windowID string) (*domain.StaffRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.activeAssignment(func(a *domain.WindowAssignment) bool { return a.WindowID == windowID })
	if a == nil {
		return nil, pgx.ErrNoRows
	}
	return &domain.StaffRef{ID: a.UserID, Name: r.users[a.UserID].Name}, nil
}

func (r fakeWindowRepo) countActive(match func(*domain.WindowAssignment) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.assignments {
		if a.Active && match(a) {
			count++
		}
	}
	return count
}

type fakeUserRepo struct{ *fakeStore }

func (r fakeUserRepo) emailTaken(email, exceptID string) bool {
	for _, u := range r.users {
		if u.ID != exceptID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (r fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emailTaken(user.Email, "") {
		return repository.ErrDuplicateEmail
	}
	user.ID = r.nextID("user")
	user.CreatedAt = time.Now()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r fakeUserRepo) CreateFirstAdmin(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Role.IsAdmin() {
			return repository.ErrAdminExists
		}
	}
	if r.emailTaken(user.Email, "") {
		return repository.ErrDuplicateEmail
	}
	user.ID = r.nextID("user")
	user.CreatedAt = time.Now()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	if r.emailTaken(user.Email, user.ID) {
		return repository.ErrDuplicateEmail
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r fakeUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.users, id)
	for _, row := range r.bookings {
		if row.booking.HandledByID != nil && *row.booking.HandledByID == id {
			row.booking.HandledByID = nil
		}
	}
	return nil
}

func (r fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (r fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r fakeUserRepo) List(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.User
	for _, u := range r.users {
		result = append(result, *u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r fakeUserRepo) CountAdmins(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, u := range r.users {
		if u.Role.IsAdmin() {
			count++
		}
	}
	return count, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		result = append(result, e.Type)
	}
	return result
}

type harness struct {
	store    *fakeStore
	clock    *fakeClock
	recorder *eventRecorder
	windowDB fakeWindowRepo
	tracking *TrackingService
	bookings *BookingService
	queue    *QueueService
	windows  *WindowService
	users    *UserService
	auth     *AuthService
}

var testConfig = config.Config{
	App:  config.AppConfig{Name: "queue-booking-service-test"},
	Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 60, BcryptCost: bcrypt.MinCost},
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := newFakeStore()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	recorder := &eventRecorder{}
	dispatcher := events.NewInMemoryDispatcher()
	for _, eventType := range append(events.QueueEventTypes, events.EventWindowAssigned) {
		dispatcher.Subscribe(eventType, recorder.handle)
	}

	bookingRepo := fakeBookingRepo{store}
	windowRepo := fakeWindowRepo{store}
	userRepo := fakeUserRepo{store}

	tracking := NewTrackingService(TrackingDependencies{
		TrackingRepo: fakeTrackingRepo{store},
		BookingRepo:  bookingRepo,
		Dispatcher:   dispatcher,
		Location:     time.UTC,
		Now:          clock.Now,
	})

	return &harness{
		store:    store,
		clock:    clock,
		recorder: recorder,
		windowDB: windowRepo,
		tracking: tracking,
		bookings: NewBookingService(BookingDependencies{
			BookingRepo: bookingRepo,
			WindowRepo:  windowRepo,
			Tracking:    tracking,
			Dispatcher:  dispatcher,
			Now:         clock.Now,
			OpeningHour: 9,
		}),
		queue: NewQueueService(QueueDependencies{
			BookingRepo: bookingRepo,
			WindowRepo:  windowRepo,
			Tracking:    tracking,
			Dispatcher:  dispatcher,
			Now:         clock.Now,
		}),
		windows: NewWindowService(WindowDependencies{WindowRepo: windowRepo, Dispatcher: dispatcher, Now: clock.Now}),
		users:   NewUserService(testConfig, UserDependencies{UserRepo: userRepo}),
		auth:    NewAuthService(testConfig, AuthDependencies{UserRepo: userRepo}),
	}
}

func (h *harness) book(t *testing.T, name, phone string) *domain.Booking {
	t.Helper()
	booking, err := h.bookings.CreateBooking(context.Background(), CreateBookingInput{
		Name:          name,
		Phone:         phone,
		DateSelection: domain.DateSelectionToday,
	})
	if err != nil {
		t.Fatalf("create booking %s: %v", name, err)
	}
	return booking
}

func (h *harness) staff(t *testing.T, name string) *domain.User {
	t.Helper()
	user := &domain.User{Name: name, Email: strings.ToLower(name) + "@example.com", PasswordHash: "x", Role: domain.RoleUser}
	if err := (fakeUserRepo{h.store}).Create(context.Background(), user); err != nil {
		t.Fatalf("create staff %s: %v", name, err)
	}
	return user
}

func (h *harness) window(t *testing.T, number int) *domain.Window {
	t.Helper()
	window, err := h.windows.CreateWindow(context.Background(), CreateWindowInput{
		Name:   fmt.Sprintf("Window %d", number),
		Number: number,
		Active: true,
	})
	if err != nil {
		t.Fatalf("create window %d: %v", number, err)
	}
	return window
}
