package domain

import "time"

// Window is a physical service counter.
type Window struct {
	ID        string
	Name      string
	Number    int
	Active    bool
	CreatedAt time.Time
}

// WindowAssignment records a staff member working at a window. Rows are never deleted;
// a released assignment is kept with Active=false and ReleasedAt set.
type WindowAssignment struct {
	ID         string
	UserID     string
	WindowID   string
	Active     bool
	AssignedAt time.Time
	ReleasedAt *time.Time
}

// StaffRef is the minimal view of the staff member currently at a window.
type StaffRef struct {
	ID   string
	Name string
}
