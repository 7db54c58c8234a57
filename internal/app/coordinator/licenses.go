package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dalemusser/licensehub/internal/app/resolvers"
	"github.com/dalemusser/licensehub/internal/app/system/auditlog"
	"github.com/dalemusser/licensehub/internal/app/system/authz"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/normalize"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"go.uber.org/zap"
)

// AssignResult is the outcome of AssignLicense.
type AssignResult struct {
	License models.License `json:"license"`
	UserID  string         `json:"userId"`
	// PreviousUserID is set when the license moved from another user.
	PreviousUserID string       `json:"previousUserId,omitempty"`
	Mirrors        MirrorReport `json:"mirrors"`
}

// UnassignResult is the outcome of UnassignLicense.
type UnassignResult struct {
	License        models.License `json:"license"`
	PreviousUserID string         `json:"previousUserId,omitempty"`
	Mirrors        MirrorReport   `json:"mirrors"`
}

// AssignLicense gives licenseID to userID. Both must exist. The license,
// the user's licenseAssignment and every teamMembers/orgMembers row of the
// user are written in one batch; mirror rows that cannot be found are
// reported in the result, not treated as failures.
//
// With Config.ConditionalAssign the batch only commits if the license is
// still held by whoever held it when it was read, and assigning a license
// held by someone else fails with ErrLicenseAlreadyAssigned.
func (c *Coordinator) AssignLicense(ctx context.Context, licenseID, userID string) (*AssignResult, error) {
	res, err := remote.Mutate(ctx, c.cfg.Remote, "assign_license",
		func(ctx context.Context, cl *remote.Client) (*AssignResult, error) {
			var out AssignResult
			body := map[string]string{"userId": userID}
			if err := cl.Do(ctx, http.MethodPost, "/api/licenses/"+url.PathEscape(licenseID)+"/assign", body, &out); err != nil {
				return nil, remoteErr(err)
			}
			return &out, nil
		},
		func(ctx context.Context) (*AssignResult, error) {
			res, err := c.assignLicense(ctx, licenseID, userID)
			if err != nil {
				c.audit.Failed(ctx, auditlog.EventLicenseAssigned, actor(ctx), err, map[string]string{
					"license_id": licenseID,
					"user_id":    userID,
				})
			}
			return res, err
		})
	c.finish(ctx, "assign_license", err)
	return res, err
}

func (c *Coordinator) assignLicense(ctx context.Context, licenseID, userID string) (*AssignResult, error) {
	lic, err := c.fetch(ctx, models.CollLicenses, licenseID, ErrLicenseNotFound)
	if err != nil {
		return nil, err
	}
	user, err := c.fetch(ctx, models.CollUsers, userID, ErrUserNotFound)
	if err != nil {
		return nil, err
	}
	if org := resolvers.NormalizeLicense(lic).OrganizationID; org != "" {
		ok, err := c.belongsTo(ctx, user, org)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("license %s of %s to user %s of %q: %w",
				licenseID, org, userID, authz.OrgOf(user), ErrOrganizationMismatch)
		}
	}

	prevUID, _ := resolvers.LicenseHolder(lic)
	if c.cfg.ConditionalAssign && prevUID != "" && prevUID != userID {
		return nil, fmt.Errorf("license %s held by %s: %w", licenseID, prevUID, ErrLicenseAlreadyAssigned)
	}

	now := c.now()
	email := normalize.Email(user.Str("email"))
	la := docstore.Doc{
		"licenseId":  licenseID,
		"licenseKey": lic.FirstStr("key", "licenseKey"),
		"tier":       normalize.Tier(lic.Str("tier")),
		"assignedAt": now,
	}

	b := c.db.Batch()
	if c.cfg.ConditionalAssign {
		b.Require(models.CollLicenses, licenseID,
			docstore.Eq("assignedTo.userId", rawValue(lic, "assignedTo.userId")),
			docstore.Eq("assignedToUserId", rawValue(lic, "assignedToUserId")))
	}

	licData := clearLegacyAssignee(lic, docstore.Doc{
		"assignedTo": docstore.Doc{"userId": userID, "email": email, "assignedAt": now},
		"status":     models.LicenseActive,
	})
	b.Update(models.CollLicenses, licenseID, licData)
	b.Update(models.CollUsers, userID, docstore.Doc{"licenseAssignment": la, "licenseId": licenseID})

	res := &AssignResult{UserID: userID}

	rows, report := c.lookupMirrors(ctx, func(ctx context.Context, coll string) ([]docstore.Doc, error) {
		return c.db.Find(ctx, coll, docstore.Query{Where: []docstore.Condition{docstore.Eq("userId", userID)}})
	})
	for coll, docs := range rows {
		if len(docs) == 0 {
			c.log.Info("assign license: no mirror row",
				zap.String("collection", coll),
				zap.String("user_id", userID))
		}
		for _, d := range docs {
			b.Update(coll, d.ID(), docstore.Doc{"licenseAssignment": la, "licenseId": licenseID})
		}
	}
	res.Mirrors = report

	// Take the license away from its previous holder's records.
	if prevUID != "" && prevUID != userID {
		res.PreviousUserID = prevUID
		res.Mirrors = append(res.Mirrors, c.clearHolder(ctx, b, licenseID, prevUID, userID)...)
	}

	if err := b.Commit(ctx); err != nil {
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			return nil, fmt.Errorf("license %s changed hands: %w", licenseID, ErrLicenseAlreadyAssigned)
		}
		return nil, fmt.Errorf("assign license %s: %w", licenseID, err)
	}

	res.License = c.reloadLicense(ctx, licenseID, lic)
	who := actor(ctx)
	if res.PreviousUserID != "" {
		c.audit.LicenseUnassigned(ctx, who, licenseID, res.PreviousUserID, res.License.OrganizationID)
	}
	c.audit.LicenseAssigned(ctx, who, licenseID, userID, res.License.OrganizationID)
	return res, nil
}

// UnassignLicense returns licenseID to PENDING and clears the assignment
// from the previous holder's user record and mirrors. The previous holder is
// read from the license, whatever shape it is stored in. Unassigning an
// unassigned license succeeds.
func (c *Coordinator) UnassignLicense(ctx context.Context, licenseID string) (*UnassignResult, error) {
	res, err := remote.Mutate(ctx, c.cfg.Remote, "unassign_license",
		func(ctx context.Context, cl *remote.Client) (*UnassignResult, error) {
			var out UnassignResult
			if err := cl.Do(ctx, http.MethodPost, "/api/licenses/"+url.PathEscape(licenseID)+"/unassign", nil, &out); err != nil {
				return nil, remoteErr(err)
			}
			return &out, nil
		},
		func(ctx context.Context) (*UnassignResult, error) {
			res, err := c.unassignLicense(ctx, licenseID)
			if err != nil {
				c.audit.Failed(ctx, auditlog.EventLicenseUnassigned, actor(ctx), err, map[string]string{
					"license_id": licenseID,
				})
			}
			return res, err
		})
	c.finish(ctx, "unassign_license", err)
	return res, err
}

func (c *Coordinator) unassignLicense(ctx context.Context, licenseID string) (*UnassignResult, error) {
	lic, err := c.fetch(ctx, models.CollLicenses, licenseID, ErrLicenseNotFound)
	if err != nil {
		return nil, err
	}
	prevUID, _ := resolvers.LicenseHolder(lic)

	b := c.db.Batch()
	b.Update(models.CollLicenses, licenseID, clearLegacyAssignee(lic, docstore.Doc{
		"assignedTo": nil,
		"status":     models.LicensePending,
	}))
	report := c.clearHolder(ctx, b, licenseID, prevUID, "")

	if err := b.Commit(ctx); err != nil {
		return nil, fmt.Errorf("unassign license %s: %w", licenseID, err)
	}

	res := &UnassignResult{
		License:        c.reloadLicense(ctx, licenseID, lic),
		PreviousUserID: prevUID,
		Mirrors:        report,
	}
	c.audit.LicenseUnassigned(ctx, actor(ctx), licenseID, prevUID, res.License.OrganizationID)
	return res, nil
}

// clearHolder queues writes that remove licenseID from userID's users row
// and from every mirror row that refers to the license, except rows of
// keepUserID. userID may be empty when the license had no holder; mirror
// rows still pointing at the license are cleared either way.
func (c *Coordinator) clearHolder(ctx context.Context, b *docstore.Batch, licenseID, userID, keepUserID string) MirrorReport {
	cleared := docstore.Doc{"licenseAssignment": nil, "licenseId": nil}

	if userID != "" {
		if u := c.db.GetByID(ctx, models.CollUsers, userID); u != nil && refersTo(u, licenseID) {
			b.Update(models.CollUsers, userID, cleared)
		}
	}

	rows, report := c.lookupMirrors(ctx, func(ctx context.Context, coll string) ([]docstore.Doc, error) {
		var sets [][]docstore.Doc
		queries := [][]docstore.Condition{
			{docstore.Eq("licenseAssignment.licenseId", licenseID)},
			{docstore.Eq("licenseId", licenseID)},
		}
		if userID != "" {
			queries = append(queries, []docstore.Condition{docstore.Eq("userId", userID)})
		}
		for _, q := range queries {
			docs, err := c.db.Find(ctx, coll, docstore.Query{Where: q})
			if err != nil {
				return nil, err
			}
			sets = append(sets, docs)
		}
		var out []docstore.Doc
		seen := map[string]bool{}
		for _, set := range sets {
			for _, d := range set {
				if seen[d.ID()] || !refersTo(d, licenseID) {
					continue
				}
				if keepUserID != "" && d.Str("userId") == keepUserID {
					continue
				}
				seen[d.ID()] = true
				out = append(out, d)
			}
		}
		return out, nil
	})
	for coll, docs := range rows {
		for _, d := range docs {
			b.Update(coll, d.ID(), cleared)
		}
	}
	return report
}

// refersTo reports whether a user-shaped document carries licenseID.
func refersTo(d docstore.Doc, licenseID string) bool {
	a := resolvers.AssignmentOf(d)
	return a != nil && a.LicenseID == licenseID
}

// clearLegacyAssignee adds nulls for any flat assignee fields present on lic
// so they cannot contradict the embedded assignedTo.
func clearLegacyAssignee(lic, data docstore.Doc) docstore.Doc {
	for _, f := range resolvers.LegacyAssigneeFields {
		if _, ok := lic[f]; ok {
			data[f] = nil
		}
	}
	return data
}

func rawValue(d docstore.Doc, path string) any {
	v, _ := docstore.Lookup(d, path)
	return v
}

func (c *Coordinator) reloadLicense(ctx context.Context, licenseID string, fallback docstore.Doc) models.License {
	if d := c.db.GetByID(ctx, models.CollLicenses, licenseID); d != nil {
		return resolvers.NormalizeLicense(d)
	}
	return resolvers.NormalizeLicense(fallback)
}

// belongsTo reports whether user is in orgID, either by its users row or by
// a teamMembers row there.
func (c *Coordinator) belongsTo(ctx context.Context, user docstore.Doc, orgID string) (bool, error) {
	if authz.OrgOf(user) == orgID {
		return true, nil
	}
	rows, err := c.db.Find(ctx, models.CollTeamMembers, docstore.Query{
		Where: []docstore.Condition{
			docstore.Eq("userId", user.ID()),
			docstore.Eq("organizationId", orgID),
		},
		Limit: 1,
	})
	if err != nil {
		return false, fmt.Errorf("find team rows of %s: %w", user.ID(), err)
	}
	return len(rows) > 0, nil
}
