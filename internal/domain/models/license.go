// internal/domain/models/license.go
package models

import "time"

// License statuses. PENDING means unassigned; ACTIVE means held by exactly one user.
const (
	LicensePending = "PENDING"
	LicenseActive  = "ACTIVE"
)

// License tiers.
const (
	TierEnterprise   = "ENTERPRISE"
	TierProfessional = "PROFESSIONAL"
	TierBasic        = "BASIC"
)

// License is the canonical shape of a licenses document after legacy field
// shapes have been normalized.
type License struct {
	ID               string      `json:"id"`
	Key              string      `json:"key"`
	Tier             string      `json:"tier"`
	Status           string      `json:"status"`
	OrganizationID   string      `json:"organizationId"`
	OrganizationName string      `json:"organizationName,omitempty"`
	AssignedTo       *AssignedTo `json:"assignedTo"`
	Usage            Usage       `json:"usage"`
	ReleasedFrom     *Release    `json:"releasedFrom,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// Assigned reports whether the license currently has an owner.
func (l License) Assigned() bool {
	return l.AssignedTo != nil && l.AssignedTo.UserID != ""
}

// AssignedTo identifies the owner of an assigned license.
type AssignedTo struct {
	UserID     string    `json:"userId"`
	Email      string    `json:"email,omitempty"`
	AssignedAt time.Time `json:"assignedAt"`
}

// Usage holds device limits for a license.
type Usage struct {
	MaxDevices    int        `json:"maxDevices"`
	ActiveDevices int        `json:"activeDevices"`
	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
}

// Release is the audit trail written when a license is taken back from a
// removed team member.
type Release struct {
	UserID     string    `json:"userId"`
	Email      string    `json:"email,omitempty"`
	ReleasedAt time.Time `json:"releasedAt"`
	ReleasedBy string    `json:"releasedBy,omitempty"`
}

// DefaultMaxDevices returns the device limit for a tier when a license
// document does not carry one.
func DefaultMaxDevices(tier string) int {
	switch tier {
	case TierEnterprise:
		return 10
	case TierProfessional:
		return 5
	default:
		return 2
	}
}
