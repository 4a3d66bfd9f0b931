package domain

import "time"

// Deploy status values stored on a project.
const (
	DeployStatusNone     = "none"
	DeployStatusDeployed = "deployed"
)

// Project describes a registered site.
type Project struct {
	ID           string
	Name         string
	RepoURL      string
	LiveURL      string
	DeployStatus string
	CreatedAt    time.Time
}
