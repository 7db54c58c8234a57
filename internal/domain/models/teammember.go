// internal/domain/models/teammember.go
package models

import "time"

// TeamMember is the merged, role-scoped view of a person inside an
// organization. It is built from the users collection and overlaid with the
// teamMembers mirror (role, department, license fields).
type TeamMember struct {
	// ID is the users id when known, otherwise the teamMembers row id.
	ID                string             `json:"id"`
	UserID            string             `json:"userId,omitempty"`
	TeamMemberID      string             `json:"teamMemberId,omitempty"`
	Email             string             `json:"email"`
	Name              string             `json:"name,omitempty"`
	FirstName         string             `json:"firstName,omitempty"`
	LastName          string             `json:"lastName,omitempty"`
	DisplayName       string             `json:"displayName"`
	Role              string             `json:"role,omitempty"`
	Department        string             `json:"department,omitempty"`
	Status            string             `json:"status,omitempty"`
	OrganizationID    string             `json:"organizationId,omitempty"`
	LicenseAssignment *LicenseAssignment `json:"licenseAssignment,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
}

// OrgMember is a row of the orgMembers mirror. SeatReserved marks that the
// organization has counted this person against its seat total.
type OrgMember struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId"`
	Email          string    `json:"email"`
	Name           string    `json:"name,omitempty"`
	Role           string    `json:"role,omitempty"`
	Status         string    `json:"status,omitempty"`
	SeatReserved   bool      `json:"seatReserved"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UserProfile is a row of the userProfiles collection.
type UserProfile struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}
