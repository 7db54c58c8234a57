// internal/domain/models/user.go
package models

import "time"

// User statuses as stored.
const (
	UserActive   = "ACTIVE"
	UserInactive = "INACTIVE"
	UserPending  = "PENDING"
	UserDeleted  = "DELETED"
)

// User is the canonical person record from the users collection.
//
// NOTE:
//   - email is the natural key. The same person may exist in orgMembers with a
//     different id; records are reconciled by email, never by id.
//   - LicenseAssignment is a denormalized copy of the license that is assigned
//     to this user. It is written only by the coordinator.
type User struct {
	ID                string             `json:"id"`
	Email             string             `json:"email"`
	Name              string             `json:"name,omitempty"`
	FirstName         string             `json:"firstName,omitempty"`
	LastName          string             `json:"lastName,omitempty"`
	OrganizationID    string             `json:"organizationId,omitempty"`
	LicenseID         string             `json:"licenseId,omitempty"`
	Role              string             `json:"role,omitempty"`
	Department        string             `json:"department,omitempty"`
	Status            string             `json:"status,omitempty"`
	LicenseAssignment *LicenseAssignment `json:"licenseAssignment,omitempty"`

	// Source is the collection the record was resolved from (users or orgMembers).
	Source string `json:"source,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LicenseAssignment is the copy of a license embedded on user-shaped records.
type LicenseAssignment struct {
	LicenseID  string    `json:"licenseId"`
	LicenseKey string    `json:"licenseKey,omitempty"`
	Tier       string    `json:"tier,omitempty"`
	AssignedAt time.Time `json:"assignedAt"`
}
