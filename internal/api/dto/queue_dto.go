package dto

import (
	"time"

	"github.com/spec-kit/queue-booking-service/internal/domain"
)

// QueueStatusResponse is the live status shown on displays and pushed over the websocket.
type QueueStatusResponse struct {
	CurrentServing int        `json:"current_serving"`
	WindowNumber   *int       `json:"window_number"`
	WaitingCount   int        `json:"waiting_count"`
	CompletedCount int        `json:"completed_count"`
	TotalBookings  int        `json:"total_bookings"`
	Date           string     `json:"date"`
	IsActive       bool       `json:"is_active"`
	LastRecallTime *time.Time `json:"last_recall_time"`
}

// NewQueueStatusResponse maps a status.
func NewQueueStatusResponse(s *domain.QueueStatus) QueueStatusResponse {
	return QueueStatusResponse{
		CurrentServing: s.CurrentServing,
		WindowNumber:   s.WindowNumber,
		WaitingCount:   s.WaitingCount,
		CompletedCount: s.CompletedCount,
		TotalBookings:  s.TotalBookings,
		Date:           s.Date,
		IsActive:       s.Active,
		LastRecallTime: s.LastRecallAt,
	}
}

// TrackingResponse represents the stored tracking record.
type TrackingResponse struct {
	ID             string     `json:"id"`
	Date           string     `json:"date"`
	CurrentServing int        `json:"current_serving"`
	TotalBookings  int        `json:"total_bookings"`
	WaitingCount   int        `json:"waiting_count"`
	CompletedCount int        `json:"completed_count"`
	IsActive       bool       `json:"is_active"`
	LastRecallTime *time.Time `json:"last_recall_time"`
}

// NewTrackingResponse maps a tracking record.
func NewTrackingResponse(r *domain.TrackingRecord) TrackingResponse {
	return TrackingResponse{
		ID:             r.ID,
		Date:           r.Day.Format("2006-01-02"),
		CurrentServing: r.CurrentServing,
		TotalBookings:  r.TotalBookings,
		WaitingCount:   r.WaitingCount,
		CompletedCount: r.CompletedCount,
		IsActive:       r.Active,
		LastRecallTime: r.LastRecallAt,
	}
}

// TimeStatsResponse summarizes durations as MM:SS.
type TimeStatsResponse struct {
	Average        string `json:"average"`
	Min            string `json:"min"`
	Max            string `json:"max"`
	TotalCompleted int    `json:"total_completed"`
}

// StaffStatsResponse is one staff member's row on the dashboard.
type StaffStatsResponse struct {
	UserID    string            `json:"user_id"`
	Name      string            `json:"name"`
	Total     int               `json:"total"`
	Completed int               `json:"completed"`
	Cancelled int               `json:"cancelled"`
	TimeStats TimeStatsResponse `json:"time_stats"`
}

// DashboardResponse aggregates a day's bookings.
type DashboardResponse struct {
	Date       string               `json:"date"`
	Total      int                  `json:"total"`
	Waiting    int                  `json:"waiting"`
	InProgress int                  `json:"in_progress"`
	Completed  int                  `json:"completed"`
	Cancelled  int                  `json:"cancelled"`
	TimeStats  TimeStatsResponse    `json:"time_stats"`
	StaffStats []StaffStatsResponse `json:"staff_stats"`
}

// NewDashboardResponse maps dashboard statistics.
func NewDashboardResponse(s *domain.DashboardStats) DashboardResponse {
	staff := make([]StaffStatsResponse, 0, len(s.Staff))
	for _, row := range s.Staff {
		staff = append(staff, StaffStatsResponse{
			UserID:    row.UserID,
			Name:      row.Name,
			Total:     row.Total,
			Completed: row.Completed,
			Cancelled: row.Cancelled,
			TimeStats: newTimeStats(row.Time),
		})
	}
	return DashboardResponse{
		Date:       s.Date,
		Total:      s.Total,
		Waiting:    s.Waiting,
		InProgress: s.InProgress,
		Completed:  s.Completed,
		Cancelled:  s.Cancelled,
		TimeStats:  newTimeStats(s.Time),
		StaffStats: staff,
	}
}

func newTimeStats(t domain.TimeStats) TimeStatsResponse {
	return TimeStatsResponse{Average: t.Average, Min: t.Min, Max: t.Max, TotalCompleted: t.TotalCompleted}
}
