// Package authz decides whether a caller may act on an organization's data.
package authz

import (
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/domain/models"
)

// orgPaths are the fields a document may carry its organization under.
var orgPaths = []string{"organizationId", "orgId", "organization.id"}

// OrgOf returns the organization a stored document belongs to, or "".
func OrgOf(d docstore.Doc) string {
	if d == nil {
		return ""
	}
	return d.FirstStr(orgPaths...)
}

// CanAccessOrg reports whether caller may read or change orgID's data.
// Callers act only inside their own organization; a caller without one, or a
// target without one, is refused.
func CanAccessOrg(caller *models.User, orgID string) bool {
	if caller == nil || caller.OrganizationID == "" || orgID == "" {
		return false
	}
	return caller.OrganizationID == orgID
}
