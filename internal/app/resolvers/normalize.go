package resolvers

import (
	"strings"

	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/normalize"
	"github.com/dalemusser/licensehub/internal/domain/models"
)

// Legacy field shapes accepted on license documents.
//
// Organization:
//   - organizationId: "org-1"
//   - orgId: "org-1"
//   - organization: {id: "org-1", name: "Acme"}
//
// Assignee:
//   - assignedTo: {userId, email, assignedAt}
//   - assignedTo: "u1"
//   - assignedToUserId / assignedToEmail / assignedAt (flat)
//
// Usage:
//   - usage: {maxDevices, activeDevices, lastUsedAt}
//   - maxDevices / activeDevices / lastUsedAt (flat)
var (
	licenseOrgPaths      = []string{"organizationId", "orgId", "organization.id"}
	licenseHolderPaths   = []string{"assignedTo.userId", "assignedTo", "assignedToUserId"}
	licenseEmailPaths    = []string{"assignedTo.email", "assignedToEmail"}
	licenseAssignedPaths = []string{"assignedTo.assignedAt", "assignedAt"}
)

// LegacyAssigneeFields are the flat assignee fields written by older clients.
// Writers clearing an assignment must null whichever of these are present.
var LegacyAssigneeFields = []string{"assignedToUserId", "assignedToEmail", "assignedAt"}

// LicenseHolder returns the user id and email a license document is assigned
// to, whatever shape the assignee is stored in.
func LicenseHolder(d docstore.Doc) (userID, email string) {
	return d.FirstStr(licenseHolderPaths...), normalize.Email(d.FirstStr(licenseEmailPaths...))
}

// NormalizeLicense maps any accepted license shape to the canonical License.
// An ACTIVE license without an assignee is reported PENDING.
func NormalizeLicense(d docstore.Doc) models.License {
	l := models.License{
		ID:               d.ID(),
		Key:              d.FirstStr("key", "licenseKey"),
		Tier:             normalize.Tier(d.Str("tier")),
		Status:           normalize.Status(d.Str("status")),
		OrganizationID:   d.FirstStr(licenseOrgPaths...),
		OrganizationName: d.FirstStr("organizationName", "organization.name"),
		CreatedAt:        d.TimeOrZero("createdAt"),
		UpdatedAt:        d.TimeOrZero("updatedAt"),
	}

	if uid, email := LicenseHolder(d); uid != "" {
		l.AssignedTo = &models.AssignedTo{UserID: uid, Email: email}
		for _, p := range licenseAssignedPaths {
			if t, ok := d.Time(p); ok {
				l.AssignedTo.AssignedAt = t
				break
			}
		}
	}

	switch {
	case l.AssignedTo == nil && (l.Status == models.LicenseActive || l.Status == ""):
		l.Status = models.LicensePending
	case l.AssignedTo != nil && l.Status == "":
		l.Status = models.LicenseActive
	}

	l.Usage = normalizeUsage(d, l.Tier)

	if rel := d.Map("releasedFrom"); rel != nil {
		l.ReleasedFrom = &models.Release{
			UserID:     rel.Str("userId"),
			Email:      rel.Str("email"),
			ReleasedAt: rel.TimeOrZero("releasedAt"),
			ReleasedBy: rel.Str("releasedBy"),
		}
	}
	return l
}

func normalizeUsage(d docstore.Doc, tier string) models.Usage {
	var u models.Usage
	src := d.Map("usage")
	if src == nil {
		src = d
	}
	if n, ok := src.Int("maxDevices"); ok && n > 0 {
		u.MaxDevices = n
	} else {
		u.MaxDevices = models.DefaultMaxDevices(tier)
	}
	if n, ok := src.Int("activeDevices"); ok {
		u.ActiveDevices = n
	}
	if t, ok := src.Time("lastUsedAt"); ok {
		u.LastUsedAt = &t
	}
	return u
}

// assignment reads an embedded licenseAssignment, accepting the flat
// licenseId/licenseKey fields some mirrors carry instead.
func assignment(d docstore.Doc) *models.LicenseAssignment {
	if m := d.Map("licenseAssignment"); m != nil {
		if id := m.Str("licenseId"); id != "" {
			return &models.LicenseAssignment{
				LicenseID:  id,
				LicenseKey: m.Str("licenseKey"),
				Tier:       normalize.Tier(m.Str("tier")),
				AssignedAt: m.TimeOrZero("assignedAt"),
			}
		}
	}
	if _, embedded := d["licenseAssignment"]; embedded {
		return nil
	}
	if id := d.Str("licenseId"); id != "" {
		return &models.LicenseAssignment{LicenseID: id, LicenseKey: d.Str("licenseKey")}
	}
	return nil
}

// AssignmentOf returns the license assignment embedded on a user-shaped
// document, or nil.
func AssignmentOf(d docstore.Doc) *models.LicenseAssignment { return assignment(d) }

// userFromDoc maps a users or orgMembers document to a User.
func userFromDoc(d docstore.Doc, source string) *models.User {
	u := &models.User{
		ID:                d.ID(),
		Email:             normalize.Email(d.Str("email")),
		Name:              normalize.Name(d.FirstStr("name", "displayName")),
		FirstName:         normalize.Name(d.Str("firstName")),
		LastName:          normalize.Name(d.Str("lastName")),
		OrganizationID:    d.FirstStr("organizationId", "orgId"),
		Role:              normalize.Role(d.Str("role")),
		Department:        d.Str("department"),
		Status:            normalize.Status(d.Str("status")),
		LicenseAssignment: assignment(d),
		Source:            source,
		CreatedAt:         d.TimeOrZero("createdAt"),
		UpdatedAt:         d.TimeOrZero("updatedAt"),
	}
	if source == models.CollOrgMembers {
		// Mirror rows carry their own id; the person is userId.
		if uid := d.Str("userId"); uid != "" {
			u.ID = uid
		}
	}
	u.LicenseID = d.Str("licenseId")
	if u.LicenseID == "" && u.LicenseAssignment != nil {
		u.LicenseID = u.LicenseAssignment.LicenseID
	}
	return u
}

func organizationFromDoc(d docstore.Doc, viewerID string) *models.Organization {
	o := &models.Organization{
		ID:        d.ID(),
		Name:      normalize.Name(d.Str("name")),
		Tier:      normalize.Tier(d.Str("tier")),
		OwnerID:   d.Str("ownerId"),
		CreatedAt: d.TimeOrZero("createdAt"),
		UpdatedAt: d.TimeOrZero("updatedAt"),
	}
	if v, ok := d.Bool("isOwner"); ok {
		o.IsOwner = v
	} else {
		o.IsOwner = viewerID != "" && o.OwnerID == viewerID
	}
	return o
}

func subscriptionFromDoc(d docstore.Doc) *models.Subscription {
	s := &models.Subscription{
		ID:             d.ID(),
		OrganizationID: d.FirstStr("organizationId", "orgId"),
		Status:         normalize.Status(d.Str("status")),
		Tier:           normalize.Tier(d.Str("tier")),
		CreatedAt:      d.TimeOrZero("createdAt"),
	}
	if n, ok := d.Int("seats"); ok {
		s.Seats = n
	}
	if t, ok := d.Time("currentPeriodEnd"); ok {
		s.CurrentPeriodEnd = &t
	}
	return s
}

// excludedStatuses hide a record from team listings.
var excludedStatuses = map[string]bool{
	"REMOVED":   true,
	"SUSPENDED": true,
	"DELETED":   true,
}

// revocationFields hide a record when any of them is set.
var revocationFields = []string{"removedAt", "revokedAt", "deletedAt"}

// Excluded reports whether a user or team member document has been removed,
// suspended, deactivated or revoked.
func Excluded(d docstore.Doc) bool {
	if excludedStatuses[normalize.Status(d.Str("status"))] {
		return true
	}
	if active, ok := d.Bool("isActive"); ok && !active {
		return true
	}
	for _, f := range revocationFields {
		if d.Has(f) {
			return true
		}
	}
	return false
}

// sortKey orders team members by display name, then email.
func sortKey(m models.TeamMember) string {
	return strings.ToLower(m.DisplayName) + "\x00" + m.Email
}
