// internal/domain/models/project.go
package models

import "time"

// Project roles. A project has at most one ADMIN.
const (
	ProjectRoleAdmin  = "ADMIN"
	ProjectRoleEditor = "EDITOR"
	ProjectRoleViewer = "VIEWER"
)

// Project groups datasets and members inside an organization.
type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	OrganizationID string    `json:"organizationId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Dataset belongs to zero or one project. ProjectID must agree with the
// project_datasets link rows for this dataset.
type Dataset struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	OrganizationID string                `json:"organizationId,omitempty"`
	ProjectID      string                `json:"projectId,omitempty"`
	Collection     *CollectionAssignment `json:"collection,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

// CollectionAssignment is where a dataset's records live.
type CollectionAssignment struct {
	CollectionID   string `json:"collectionId"`
	CollectionName string `json:"collectionName,omitempty"`
}

// ProjectDataset is a row of the project_datasets link collection. It carries
// a snapshot of the dataset so readers never need a second fetch.
type ProjectDataset struct {
	ID          string                `json:"id"`
	ProjectID   string                `json:"projectId"`
	DatasetID   string                `json:"datasetId"`
	DatasetName string                `json:"datasetName,omitempty"`
	Collection  *CollectionAssignment `json:"collection,omitempty"`
	AssignedAt  time.Time             `json:"assignedAt"`
}

// ProjectMember is a role grant on a project.
type ProjectMember struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}
