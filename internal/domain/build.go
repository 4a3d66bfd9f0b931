package domain

import "time"

// Build status values. A build is created pending and transitions exactly
// once to success or failed.
const (
	BuildStatusPending = "pending"
	BuildStatusSuccess = "success"
	BuildStatusFailed  = "failed"
)

// Build captures a single build attempt for a project.
type Build struct {
	ID          string
	ProjectID   string
	BuildNumber int
	Status      string
	Log         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
