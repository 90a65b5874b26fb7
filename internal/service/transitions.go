package service

import "github.com/spec-kit/queue-booking-service/internal/domain"

type bookingAction string

const (
	actionStart    bookingAction = "start"
	actionComplete bookingAction = "complete"
	actionCancel   bookingAction = "cancel"
	actionReset    bookingAction = "reset"
)

// allowedFrom lists the statuses each action may be applied to.
var allowedFrom = map[bookingAction][]domain.BookingStatus{
	actionStart:    {domain.BookingStatusWaiting},
	actionComplete: {domain.BookingStatusInProgress},
	actionCancel:   {domain.BookingStatusWaiting, domain.BookingStatusInProgress, domain.BookingStatusCancelled},
	actionReset: {
		domain.BookingStatusWaiting,
		domain.BookingStatusInProgress,
		domain.BookingStatusCompleted,
		domain.BookingStatusCancelled,
	},
}

func canApply(action bookingAction, current domain.BookingStatus) bool {
	for _, candidate := range allowedFrom[action] {
		if candidate == current {
			return true
		}
	}
	return false
}
