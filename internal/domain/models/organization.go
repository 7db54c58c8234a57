// internal/domain/models/organization.go
package models

import "time"

// Organization is the billing owner of licenses and the scope of a team.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tier      string    `json:"tier,omitempty"`
	IsOwner   bool      `json:"isOwner"`
	OwnerID   string    `json:"ownerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Subscription statuses.
const (
	SubscriptionActive   = "ACTIVE"
	SubscriptionCanceled = "CANCELED"
	SubscriptionPastDue  = "PAST_DUE"
)

// Subscription is the billing plan attached to an organization. An organization
// has at most one ACTIVE subscription that matters: the most recently created.
type Subscription struct {
	ID               string     `json:"id"`
	OrganizationID   string     `json:"organizationId"`
	Status           string     `json:"status"`
	Tier             string     `json:"tier,omitempty"`
	Seats            int        `json:"seats"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// OrganizationContext is everything the portal needs about the signed-in
// user's organization in one value.
type OrganizationContext struct {
	User         *User         `json:"user"`
	Organization *Organization `json:"organization"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Members      []TeamMember  `json:"members"`
}
