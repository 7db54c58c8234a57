package resolvers

import (
	"fmt"
	"strings"

	"github.com/dalemusser/licensehub/internal/app/system/normalize"
	"github.com/dalemusser/licensehub/internal/domain/models"
)

// OrgOverrides pins named accounts to a fixed organization id regardless of
// what their user record says. It exists for operator accounts whose data
// lives in a different organization than their own record. Keep entries
// rare and documented; it is not a general routing mechanism.
type OrgOverrides map[string]string

// ParseOrgOverrides parses "email=orgId" pairs separated by commas.
// Whitespace is ignored and emails are normalized.
func ParseOrgOverrides(s string) (OrgOverrides, error) {
	out := OrgOverrides{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		email, org, ok := strings.Cut(pair, "=")
		email, org = normalize.Email(email), strings.TrimSpace(org)
		if !ok || email == "" || org == "" {
			return nil, fmt.Errorf("org override %q: want email=orgId", pair)
		}
		out[email] = org
	}
	return out, nil
}

// Lookup returns the pinned organization for email.
func (o OrgOverrides) Lookup(email string) (string, bool) {
	org, ok := o[normalize.Email(email)]
	return org, ok
}

// Apply rewrites u.OrganizationID when u's email is pinned. It reports
// whether u was changed.
func (o OrgOverrides) Apply(u *models.User) bool {
	if u == nil || len(o) == 0 {
		return false
	}
	org, ok := o.Lookup(u.Email)
	if !ok || u.OrganizationID == org {
		return false
	}
	u.OrganizationID = org
	return true
}
