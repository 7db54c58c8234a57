package coordinator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/licensehub/internal/app/resolvers"
	"github.com/dalemusser/licensehub/internal/app/system/auditlog"
	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"github.com/dalemusser/licensehub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type harness struct {
	fx    *testutil.Fixtures
	cache *cache.Memory
	res   *resolvers.Resolvers
	co    *Coordinator
	logs  *observer.ObservedLogs
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	fx := testutil.NewFixtures(t)
	return newHarnessOn(t, fx, fx.DB(), cfg)
}

func newHarnessOn(t *testing.T, fx *testutil.Fixtures, db *docstore.Adapter, cfg Config) *harness {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	c := cache.NewMemory(nil)
	audit := auditlog.New(db, zap.New(core), auditlog.Config{Mode: auditlog.ModeAll})
	return &harness{
		fx:    fx,
		cache: c,
		res:   resolvers.New(db, c, resolvers.Config{}, nil),
		co:    New(db, c, audit, nil, cfg, nil),
		logs:  logs,
	}
}

// seedOrg creates org-1 with u1 and u2, their mirrors, and licenses L1, L2.
func seedOrg(fx *testutil.Fixtures) {
	fx.Organization("org-1", "Acme", models.TierProfessional)
	fx.User("u1", "u1@example.com", "Una One", "org-1")
	fx.User("u2", "u2@example.com", "Ulf Two", "org-1")
	fx.TeamMember("tm-1", "u1", "u1@example.com", "org-1", "MEMBER")
	fx.TeamMember("tm-2", "u2", "u2@example.com", "org-1", "MEMBER")
	fx.OrgMember("om-1", "u1", "u1@example.com", "org-1")
	fx.License("L1", "KEY-1", models.TierProfessional, "org-1")
	fx.License("L2", "KEY-2", models.TierProfessional, "org-1")
}

func ctx() context.Context { return testutil.IdentityContext("admin-1", "admin@example.com") }

func TestAssignLicense_WritesEveryCopy(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)

	res, err := h.co.AssignLicense(ctx(), "L1", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.LicenseActive, res.License.Status)
	require.NotNil(t, res.License.AssignedTo)
	assert.Equal(t, "u1", res.License.AssignedTo.UserID)
	assert.Equal(t, "u1@example.com", res.License.AssignedTo.Email)

	lic := h.fx.Get(models.CollLicenses, "L1")
	assert.Equal(t, models.LicenseActive, lic.Str("status"))
	assert.Equal(t, "u1", lic.Str("assignedTo.userId"))

	for _, ref := range []struct{ coll, id string }{
		{models.CollUsers, "u1"},
		{models.CollTeamMembers, "tm-1"},
		{models.CollOrgMembers, "om-1"},
	} {
		d := h.fx.Get(ref.coll, ref.id)
		assert.Equal(t, "L1", d.Str("licenseAssignment.licenseId"), ref.coll)
		assert.Equal(t, "KEY-1", d.Str("licenseAssignment.licenseKey"), ref.coll)
	}
	assert.Empty(t, h.fx.Get(models.CollTeamMembers, "tm-2").Str("licenseAssignment.licenseId"))

	require.Len(t, res.Mirrors, 2)
	assert.Equal(t, []string{"tm-1"}, res.Mirrors[0].Updated)
	assert.Equal(t, []string{"om-1"}, res.Mirrors[1].Updated)
	assert.Empty(t, res.Mirrors.Failed())

	assert.Equal(t, 1, h.logs.FilterField(zap.String("event_type", auditlog.EventLicenseAssigned)).Len())
}

func TestAssignLicense_NotFound(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)

	_, err := h.co.AssignLicense(ctx(), "missing", "u1")
	assert.ErrorIs(t, err, ErrLicenseNotFound)

	_, err = h.co.AssignLicense(ctx(), "L1", "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, models.LicensePending, h.fx.Get(models.CollLicenses, "L1").Str("status"))
}

func TestAssignLicense_OtherOrganization(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)
	h.fx.Organization("org-2", "Globex", models.TierBasic)
	h.fx.User("v1", "v1@example.com", "Vera One", "org-2")
	h.fx.License("L9", "KEY-9", models.TierBasic, "org-2")

	_, err := h.co.AssignLicense(ctx(), "L1", "v1")
	assert.ErrorIs(t, err, ErrOrganizationMismatch)
	_, err = h.co.AssignLicense(ctx(), "L9", "u1")
	assert.ErrorIs(t, err, ErrOrganizationMismatch)

	assert.Equal(t, models.LicensePending, h.fx.Get(models.CollLicenses, "L1").Str("status"))
	assert.Equal(t, models.LicensePending, h.fx.Get(models.CollLicenses, "L9").Str("status"))
	assert.Nil(t, h.fx.Get(models.CollUsers, "v1")["licenseAssignment"])

	// A team seat in org-1 is enough.
	h.fx.TeamMember("tm-v1-guest", "v1", "v1@example.com", "org-1", "MEMBER")
	res, err := h.co.AssignLicense(ctx(), "L1", "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", res.License.AssignedTo.UserID)
}

func TestAssignLicense_MissingMirrorIsNotFatal(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)
	h.fx.Store().FailCollection(models.CollOrgMembers, errors.New("unavailable"))

	res, err := h.co.AssignLicense(ctx(), "L1", "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{models.CollOrgMembers}, res.Mirrors.Failed())
	assert.Equal(t, "L1", h.fx.Get(models.CollUsers, "u2").Str("licenseAssignment.licenseId"))
	assert.Equal(t, "L1", h.fx.Get(models.CollTeamMembers, "tm-2").Str("licenseAssignment.licenseId"))
}

func TestAssignLicense_InvalidatesTeamMembers(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)

	before := h.res.TeamMembers(context.Background(), "org-1")
	require.Len(t, before, 2)
	for _, m := range before {
		require.Nil(t, m.LicenseAssignment)
	}
	require.Len(t, h.res.Licenses(context.Background(), "org-1"), 2)

	_, err := h.co.AssignLicense(ctx(), "L1", "u1")
	require.NoError(t, err)

	after := h.res.TeamMembers(context.Background(), "org-1")
	var u1 *models.TeamMember
	for i := range after {
		if after[i].ID == "u1" {
			u1 = &after[i]
		}
	}
	require.NotNil(t, u1)
	require.NotNil(t, u1.LicenseAssignment)
	assert.Equal(t, "L1", u1.LicenseAssignment.LicenseID)

	for _, l := range h.res.Licenses(context.Background(), "org-1") {
		if l.ID == "L1" {
			assert.Equal(t, models.LicenseActive, l.Status)
		}
	}
}

func TestAssignLicense_Conditional(t *testing.T) {
	h := newHarness(t, Config{ConditionalAssign: true})
	seedOrg(h.fx)

	_, err := h.co.AssignLicense(ctx(), "L1", "u1")
	require.NoError(t, err)

	// Re-assigning to the holder is fine.
	_, err = h.co.AssignLicense(ctx(), "L1", "u1")
	require.NoError(t, err)

	_, err = h.co.AssignLicense(ctx(), "L1", "u2")
	assert.ErrorIs(t, err, ErrLicenseAlreadyAssigned)
	assert.Equal(t, "u1", h.fx.Get(models.CollLicenses, "L1").Str("assignedTo.userId"))
	assert.Empty(t, h.fx.Get(models.CollUsers, "u2").Str("licenseAssignment.licenseId"))
}

// racingBackend lets another writer take the license between the
// coordinator's read and its commit.
type racingBackend struct {
	docstore.Backend
	race func(ctx context.Context)
}

func (r *racingBackend) Commit(ctx context.Context, writes []docstore.Write) error {
	if r.race != nil {
		r.race(ctx)
		r.race = nil
	}
	return r.Backend.Commit(ctx, writes)
}

func TestAssignLicense_ConditionalDetectsRace(t *testing.T) {
	fx := testutil.NewFixtures(t)
	seedOrg(fx)
	rb := &racingBackend{Backend: fx.Store()}
	rb.race = func(ctx context.Context) {
		_ = fx.Store().Patch(ctx, models.CollLicenses, "L1", docstore.Doc{
			"assignedTo": docstore.Doc{"userId": "u2"},
			"status":     models.LicenseActive,
		})
	}
	h := newHarnessOn(t, fx, docstore.NewAdapter(rb, nil), Config{ConditionalAssign: true})

	_, err := h.co.AssignLicense(ctx(), "L1", "u1")
	assert.ErrorIs(t, err, ErrLicenseAlreadyAssigned)
	assert.Equal(t, "u2", fx.Get(models.CollLicenses, "L1").Str("assignedTo.userId"))
	assert.Empty(t, fx.Get(models.CollUsers, "u1").Str("licenseAssignment.licenseId"))
}

func TestAssignLicense_LastWriterWinsMovesLicense(t *testing.T) {
	h := newHarness(t, Config{ConditionalAssign: false})
	seedOrg(h.fx)

	_, err := h.co.AssignLicense(ctx(), "L1", "u1")
	require.NoError(t, err)
	res, err := h.co.AssignLicense(ctx(), "L1", "u2")
	require.NoError(t, err)
	assert.Equal(t, "u1", res.PreviousUserID)

	assert.Equal(t, "u2", h.fx.Get(models.CollLicenses, "L1").Str("assignedTo.userId"))
	assert.Equal(t, "L1", h.fx.Get(models.CollUsers, "u2").Str("licenseAssignment.licenseId"))
	assert.Nil(t, h.fx.Get(models.CollUsers, "u1")["licenseAssignment"])
	assert.Nil(t, h.fx.Get(models.CollTeamMembers, "tm-1")["licenseAssignment"])
	assert.Nil(t, h.fx.Get(models.CollOrgMembers, "om-1")["licenseAssignment"])
}

func TestUnassignLicense_Idempotent(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)
	_, err := h.co.AssignLicense(ctx(), "L1", "u1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := h.co.UnassignLicense(ctx(), "L1")
		require.NoError(t, err, "call %d", i+1)
		assert.Equal(t, models.LicensePending, res.License.Status)
		assert.Nil(t, res.License.AssignedTo)

		lic := h.fx.Get(models.CollLicenses, "L1")
		assert.Equal(t, models.LicensePending, lic.Str("status"))
		v, present := lic["assignedTo"]
		assert.True(t, present)
		assert.Nil(t, v)
	}

	assert.Nil(t, h.fx.Get(models.CollUsers, "u1")["licenseAssignment"])
	assert.Nil(t, h.fx.Get(models.CollTeamMembers, "tm-1")["licenseAssignment"])
	assert.Nil(t, h.fx.Get(models.CollOrgMembers, "om-1")["licenseAssignment"])
}

func TestUnassignLicense_LegacyHolder(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)
	h.fx.Seed(models.CollLicenses, docstore.Doc{
		"id":               "L9",
		"key":              "KEY-9",
		"status":           models.LicenseActive,
		"organizationId":   "org-1",
		"assignedToUserId": "u2",
		"assignedToEmail":  "u2@example.com",
	})
	require.True(t, h.fx.DB().Update(context.Background(), models.CollUsers, "u2", docstore.Doc{
		"licenseAssignment": docstore.Doc{"licenseId": "L9"},
	}))

	res, err := h.co.UnassignLicense(ctx(), "L9")
	require.NoError(t, err)
	assert.Equal(t, "u2", res.PreviousUserID)

	lic := h.fx.Get(models.CollLicenses, "L9")
	assert.Nil(t, lic["assignedToUserId"])
	assert.Equal(t, models.LicensePending, resolvers.NormalizeLicense(lic).Status)
	assert.Nil(t, h.fx.Get(models.CollUsers, "u2")["licenseAssignment"])
}

func TestUnassignLicense_NotFound(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.co.UnassignLicense(ctx(), "nope")
	assert.ErrorIs(t, err, ErrLicenseNotFound)
}

func TestRemoveTeamMember_ReleasesAndDeletes(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)
	h.fx.OrgMember("om-other-org", "u1", "u1@example.com", "org-2")
	_, err := h.co.AssignLicense(ctx(), "L1", "u1")
	require.NoError(t, err)

	res, err := h.co.RemoveTeamMember(ctx(), "u1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, res.ReleasedLicenses)

	lic := h.fx.Get(models.CollLicenses, "L1")
	assert.Equal(t, models.LicensePending, lic.Str("status"))
	assert.Nil(t, lic["assignedTo"])
	assert.Equal(t, "u1", lic.Str("releasedFrom.userId"))
	assert.Equal(t, "u1@example.com", lic.Str("releasedFrom.email"))
	assert.Equal(t, "admin-1", lic.Str("releasedFrom.releasedBy"))
	assert.True(t, lic.Has("releasedFrom.releasedAt"))

	assert.False(t, h.fx.Exists(models.CollUsers, "u1"))
	assert.False(t, h.fx.Exists(models.CollTeamMembers, "tm-1"))
	assert.False(t, h.fx.Exists(models.CollOrgMembers, "om-1"))
	assert.True(t, h.fx.Exists(models.CollOrgMembers, "om-other-org"), "other organizations are untouched")
	assert.True(t, h.fx.Exists(models.CollUsers, "u2"))

	ms := h.res.TeamMembers(context.Background(), "org-1")
	require.Len(t, ms, 1)
	assert.Equal(t, "u2", ms[0].ID)
}

func TestRemoveTeamMember_ByTeamMemberID(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)

	res, err := h.co.RemoveTeamMember(ctx(), "tm-2", "org-1")
	require.NoError(t, err)
	assert.Equal(t, "u2", res.UserID)
	assert.False(t, h.fx.Exists(models.CollUsers, "u2"))
	assert.False(t, h.fx.Exists(models.CollTeamMembers, "tm-2"))
}

func TestRemoveTeamMember_NotFound(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.co.RemoveTeamMember(ctx(), "nobody", "org-1")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestRemoveTeamMember_WrongOrganization(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)
	h.fx.Organization("org-2", "Globex", models.TierBasic)
	_, err := h.co.AssignLicense(ctx(), "L1", "u1")
	require.NoError(t, err)

	for _, org := range []string{"no-such-org", "org-2"} {
		_, err := h.co.RemoveTeamMember(ctx(), "u1", org)
		assert.ErrorIs(t, err, ErrMemberNotFound, org)
		_, err = h.co.RemoveTeamMember(ctx(), "tm-2", org)
		assert.ErrorIs(t, err, ErrMemberNotFound, org)
	}

	assert.True(t, h.fx.Exists(models.CollUsers, "u1"))
	assert.True(t, h.fx.Exists(models.CollUsers, "u2"))
	assert.True(t, h.fx.Exists(models.CollTeamMembers, "tm-2"))
	lic := h.fx.Get(models.CollLicenses, "L1")
	assert.Equal(t, models.LicenseActive, lic.Str("status"))
	assert.Equal(t, "u1", lic.Str("assignedTo.userId"))
}

// A person whose home is org-2 but who also sits on org-1's team leaves
// org-1 only.
func TestRemoveTeamMember_GuestKeepsHomeOrganization(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)
	h.fx.Organization("org-2", "Globex", models.TierBasic)
	h.fx.User("v1", "v1@example.com", "Vera One", "org-2")
	h.fx.TeamMember("tm-v1-home", "v1", "v1@example.com", "org-2", "OWNER")
	h.fx.TeamMember("tm-v1-guest", "v1", "v1@example.com", "org-1", "MEMBER")
	h.fx.AssignedLicense("L9", "KEY-9", models.TierBasic, "org-2", "v1", "v1@example.com")

	res, err := h.co.RemoveTeamMember(ctx(), "v1", "org-1")
	require.NoError(t, err)
	assert.Empty(t, res.ReleasedLicenses)
	assert.Equal(t, []DeletedRow{{Collection: models.CollTeamMembers, ID: "tm-v1-guest"}}, res.Deleted)

	assert.True(t, h.fx.Exists(models.CollUsers, "v1"))
	assert.True(t, h.fx.Exists(models.CollTeamMembers, "tm-v1-home"))
	assert.Equal(t, "v1", h.fx.Get(models.CollLicenses, "L9").Str("assignedTo.userId"))
}

func TestDataset_RoundTrip(t *testing.T) {
	h := newHarness(t, Config{})
	h.fx.Project("P1", "Alpha", "org-1")
	h.fx.Project("P2", "Beta", "org-1")
	h.fx.Dataset("D1", "Sales", "org-1", "C9")

	link, err := h.co.AssignDatasetToProject(ctx(), "D1", "P1")
	require.NoError(t, err)
	assert.Equal(t, LinkID("P1", "D1"), link.ID)
	require.NotNil(t, link.Collection)
	assert.Equal(t, "C9", link.Collection.CollectionID)

	assert.Equal(t, "P1", h.fx.Get(models.CollDatasets, "D1").Str("projectId"))
	row := h.fx.Get(models.CollProjectDatasets, LinkID("P1", "D1"))
	assert.Equal(t, "C9", row.Str("collection.collectionId"))
	assert.Equal(t, "Sales", row.Str("datasetName"))

	p1 := h.fx.Get(models.CollProjects, "P1")
	assert.True(t, p1.TimeOrZero("updatedAt").After(p1.TimeOrZero("createdAt")))

	// Moving to P2 drops the P1 link.
	_, err = h.co.AssignDatasetToProject(ctx(), "D1", "P2")
	require.NoError(t, err)
	assert.False(t, h.fx.Exists(models.CollProjectDatasets, LinkID("P1", "D1")))
	assert.True(t, h.fx.Exists(models.CollProjectDatasets, LinkID("P2", "D1")))

	require.NoError(t, h.co.UnassignDatasetFromProject(ctx(), "D1"))
	ds := h.fx.Get(models.CollDatasets, "D1")
	v, present := ds["projectId"]
	assert.True(t, present)
	assert.Nil(t, v)
	assert.Zero(t, h.fx.Store().Count(models.CollProjectDatasets))

	// Unassigning a free dataset is fine.
	require.NoError(t, h.co.UnassignDatasetFromProject(ctx(), "D1"))
}

func TestDataset_NotFound(t *testing.T) {
	h := newHarness(t, Config{})
	h.fx.Project("P1", "Alpha", "org-1")
	h.fx.Dataset("D1", "Sales", "org-1", "C9")

	_, err := h.co.AssignDatasetToProject(ctx(), "nope", "P1")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
	_, err = h.co.AssignDatasetToProject(ctx(), "D1", "nope")
	assert.ErrorIs(t, err, ErrProjectNotFound)
	assert.ErrorIs(t, h.co.UnassignDatasetFromProject(ctx(), "nope"), ErrDatasetNotFound)
}

func TestDataset_InvalidatesProjectDatasets(t *testing.T) {
	h := newHarness(t, Config{})
	h.fx.Project("P1", "Alpha", "org-1")
	h.fx.Dataset("D1", "Sales", "org-1", "C9")
	h.cache.Set(context.Background(), cache.ProjectDatasetsKey("P1"), []string{"stale"})

	_, err := h.co.AssignDatasetToProject(ctx(), "D1", "P1")
	require.NoError(t, err)

	var v []string
	assert.False(t, h.cache.Get(context.Background(), cache.ProjectDatasetsKey("P1"), &v))
}

func TestProjectMembers_SingleAdmin(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)
	h.fx.Project("P1", "Alpha", "org-1")

	admin, err := h.co.AddProjectMember(ctx(), "P1", "u1", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectRoleAdmin, admin.Role)

	_, err = h.co.AddProjectMember(ctx(), "P1", "u2", models.ProjectRoleAdmin)
	assert.ErrorIs(t, err, ErrProjectAdminExists)
	assert.False(t, h.fx.Exists(models.CollProjectMembers, ProjectMemberID("P1", "u2")))

	editor, err := h.co.AddProjectMember(ctx(), "P1", "u2", models.ProjectRoleEditor)
	require.NoError(t, err)

	_, err = h.co.UpdateProjectMemberRole(ctx(), editor.ID, models.ProjectRoleAdmin)
	assert.ErrorIs(t, err, ErrProjectAdminExists)
	assert.Equal(t, models.ProjectRoleEditor, h.fx.Get(models.CollProjectMembers, editor.ID).Str("role"))
	assert.Equal(t, models.ProjectRoleAdmin, h.fx.Get(models.CollProjectMembers, admin.ID).Str("role"))

	// Demote the admin, then the editor can be promoted.
	_, err = h.co.UpdateProjectMemberRole(ctx(), admin.ID, models.ProjectRoleViewer)
	require.NoError(t, err)
	assert.Nil(t, h.fx.Get(models.CollProjects, "P1")["adminMemberId"])

	_, err = h.co.UpdateProjectMemberRole(ctx(), editor.ID, models.ProjectRoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, editor.ID, h.fx.Get(models.CollProjects, "P1").Str("adminMemberId"))
}

func TestProjectMembers_RunsReadiness(t *testing.T) {
	h := newHarness(t, Config{})
	h.fx.Project("P1", "Alpha", "org-1")
	h.fx.User("u5", "u5@example.com", "Five", "org-1")

	_, err := h.co.AddProjectMember(ctx(), "P1", "u5", models.ProjectRoleViewer)
	require.NoError(t, err)
	for _, coll := range []string{models.CollTeamMembers, models.CollOrgMembers, models.CollUserProfiles} {
		assert.Len(t, h.fx.DB().Query(context.Background(), coll, docstore.Eq("userId", "u5")), 1, coll)
	}

	_, err = h.co.AddProjectMember(ctx(), "P1", "ghost", models.ProjectRoleViewer)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestProjectMembers_Validation(t *testing.T) {
	h := newHarness(t, Config{})
	h.fx.Project("P1", "Alpha", "org-1")
	h.fx.User("u5", "u5@example.com", "Five", "org-1")

	_, err := h.co.AddProjectMember(ctx(), "P1", "u5", "owner")
	assert.ErrorIs(t, err, ErrInvalidRole)
	_, err = h.co.AddProjectMember(ctx(), "nope", "u5", models.ProjectRoleViewer)
	assert.ErrorIs(t, err, ErrProjectNotFound)
	_, err = h.co.UpdateProjectMemberRole(ctx(), "nope", models.ProjectRoleViewer)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestInviteMember(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)

	m, err := h.co.InviteMember(ctx(), "org-1", Invitation{Email: " New.Person@Example.com ", Name: "New <b>Person</b>"})
	require.NoError(t, err)
	assert.Equal(t, "new.person@example.com", m.Email)
	assert.Equal(t, "New Person", m.Name)
	assert.Equal(t, "MEMBER", m.Role)

	u := h.fx.Get(models.CollUsers, m.ID)
	assert.Equal(t, models.UserPending, u.Str("status"))
	assert.True(t, h.fx.Exists(models.CollTeamMembers, m.TeamMemberID))
	om := h.fx.DB().Query(context.Background(), models.CollOrgMembers, docstore.Eq("userId", m.ID))
	require.Len(t, om, 1)
	assert.Equal(t, true, om[0]["seatReserved"])

	names := []string{}
	for _, tm := range h.res.TeamMembers(context.Background(), "org-1") {
		names = append(names, tm.Email)
	}
	assert.Contains(t, names, "new.person@example.com")
}

func TestInviteMember_Rejects(t *testing.T) {
	h := newHarness(t, Config{})
	seedOrg(h.fx)

	tests := []struct {
		name string
		org  string
		inv  Invitation
		want error
	}{
		{"invalid email", "org-1", Invitation{Email: "not-an-email"}, ErrInvalidEmail},
		{"duplicate", "org-1", Invitation{Email: "U1@example.com"}, ErrDuplicateEmail},
		{"invalid role", "org-1", Invitation{Email: "x@example.com", Role: "wizard"}, ErrInvalidRole},
		{"unknown org", "org-9", Invitation{Email: "x@example.com"}, resolvers.ErrOrganizationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.co.InviteMember(ctx(), tt.org, tt.inv)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 2, h.fx.Store().Count(models.CollUsers))
}

func TestRemoteErrorsMapToSentinels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/licenses/L1/assign", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"license L1 held by u2: license is already assigned to another user"}`))
	}))
	defer srv.Close()

	opts := remote.Options{APIBaseURL: srv.URL}
	client, err := remote.NewClient(opts, "", nil)
	require.NoError(t, err)

	fx := testutil.NewFixtures(t)
	seedOrg(fx)
	c := New(fx.DB(), cache.NewMemory(nil), nil, nil, Config{Remote: remote.NewStrategy(opts, client, nil)}, nil)

	_, err = c.AssignLicense(ctx(), "L1", "u1")
	assert.ErrorIs(t, err, ErrLicenseAlreadyAssigned)
	assert.Equal(t, models.LicensePending, fx.Get(models.CollLicenses, "L1").Str("status"), "no direct write after a real 409")
}
