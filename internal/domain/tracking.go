package domain

import "time"

// TrackingRecord holds the per-day queue aggregates.
type TrackingRecord struct {
	ID             string
	Day            time.Time
	CurrentServing int
	TotalBookings  int
	WaitingCount   int
	CompletedCount int
	Active         bool
	LastRecallAt   *time.Time
}

// QueueStatus is the public live view of today's queue.
type QueueStatus struct {
	CurrentServing int
	WindowNumber   *int
	WaitingCount   int
	CompletedCount int
	TotalBookings  int
	Date           string
	Active         bool
	LastRecallAt   *time.Time
}

// TimeStats summarizes handling durations, formatted as MM:SS.
type TimeStats struct {
	Average        string
	Min            string
	Max            string
	TotalCompleted int
}

// StaffStats aggregates one staff member's work for a day.
type StaffStats struct {
	UserID    string
	Name      string
	Total     int
	Completed int
	Cancelled int
	Time      TimeStats
}

// DashboardStats aggregates a day's bookings.
type DashboardStats struct {
	Date       string
	Total      int
	Waiting    int
	InProgress int
	Completed  int
	Cancelled  int
	Time       TimeStats
	Staff      []StaffStats
}
