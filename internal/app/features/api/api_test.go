package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/licensehub/internal/app/coordinator"
	"github.com/dalemusser/licensehub/internal/app/features/api"
	"github.com/dalemusser/licensehub/internal/app/portal"
	"github.com/dalemusser/licensehub/internal/app/system/auth"
	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"github.com/dalemusser/licensehub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const serviceToken = "svc-token-for-tests"

type server struct {
	fx *testutil.Fixtures
	p  *portal.Portal
	h  http.Handler
}

func newServer(t *testing.T, cfg portal.Config) *server {
	t.Helper()
	fx := testutil.NewFixtures(t)
	fx.Organization("org-1", "Acme", models.TierProfessional)
	fx.User("u1", "u1@example.com", "Una One", "org-1")
	fx.User("u2", "u2@example.com", "Ulf Two", "org-1")
	fx.TeamMember("tm-1", "u1", "u1@example.com", "org-1", "OWNER")
	fx.License("L1", "KEY-1", models.TierProfessional, "org-1")
	fx.Project("P1", "Alpha", "org-1")
	fx.Dataset("D1", "Sales", "org-1", "C1")

	if cfg.AuditMode == "" {
		cfg.AuditMode = "off"
	}
	p, err := portal.New(fx.Store(), cache.NewMemory(nil), cfg, nil)
	require.NoError(t, err)

	sm, err := auth.NewSessionManager("test-session-key-for-testing-only-0123", "test-session", "", time.Hour, false, zap.NewNop())
	require.NoError(t, err)
	sm.WithServiceToken(serviceToken)

	r := chi.NewRouter()
	r.Use(sm.LoadIdentity)
	r.Mount("/api", api.Routes(api.NewHandler(p, nil)))
	return &server{fx: fx, p: p, h: r}
}

func (s *server) do(t *testing.T, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+serviceToken)
	req.Header.Set(auth.HeaderUserID, "u1")
	req.Header.Set(auth.HeaderUserEmail, "u1@example.com")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Error
}

func TestUnauthenticated(t *testing.T) {
	s := newServer(t, portal.Config{})
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	req.Header.Set(auth.HeaderUserID, "u1")
	rec = httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe(t *testing.T) {
	s := newServer(t, portal.Config{})
	rec := s.do(t, http.MethodGet, "/api/me", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var u models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "org-1", u.OrganizationID)

	rec = s.do(t, http.MethodGet, "/api/me", "", map[string]string{auth.HeaderUserID: "ghost", auth.HeaderUserEmail: "ghost@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMyOrganization(t *testing.T) {
	s := newServer(t, portal.Config{})
	rec := s.do(t, http.MethodGet, "/api/me/organization", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var oc models.OrganizationContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &oc))
	require.NotNil(t, oc.Organization)
	assert.Equal(t, "org-1", oc.Organization.ID)
}

func TestLicenses_ETag(t *testing.T) {
	s := newServer(t, portal.Config{})
	rec := s.do(t, http.MethodGet, "/api/organizations/org-1/licenses", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	var ls []models.License
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ls))
	require.Len(t, ls, 1)
	assert.Equal(t, models.LicensePending, ls[0].Status)

	rec = s.do(t, http.MethodGet, "/api/organizations/org-1/licenses", "", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	rec = s.do(t, http.MethodPost, "/api/licenses/L1/assign", `{"userId":"u2"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/organizations/org-1/licenses", "", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusOK, rec.Code, "the assignment changed the representation")
	assert.NotEqual(t, etag, rec.Header().Get("ETag"))
}

func TestAssignLicense_Errors(t *testing.T) {
	s := newServer(t, portal.Config{ConditionalAssign: true})

	rec := s.do(t, http.MethodPost, "/api/licenses/L1/assign", `{"userId":"u1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res coordinator.AssignResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, models.LicenseActive, res.License.Status)

	rec = s.do(t, http.MethodPost, "/api/licenses/L1/assign", `{"userId":"u2"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, errorOf(t, rec), coordinator.ErrLicenseAlreadyAssigned.Error())

	rec = s.do(t, http.MethodPost, "/api/licenses/nope/assign", `{"userId":"u2"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/licenses/L1/assign", `{"userId":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/licenses/L1/unassign", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.LicensePending, s.fx.Get(models.CollLicenses, "L1").Str("status"))
}

func TestMembers(t *testing.T) {
	s := newServer(t, portal.Config{})

	rec := s.do(t, http.MethodPost, "/api/organizations/org-1/members", `{"email":"bad"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/organizations/org-1/members", `{"email":"u2@example.com"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/organizations/org-1/members", `{"email":"new@example.com","name":"New Person"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var m models.TeamMember
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))

	rec = s.do(t, http.MethodGet, "/api/organizations/org-1/members", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ms []models.TeamMember
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ms))
	assert.Len(t, ms, 3)

	rec = s.do(t, http.MethodDelete, "/api/organizations/org-1/members/"+m.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, s.fx.Exists(models.CollUsers, m.ID))

	rec = s.do(t, http.MethodDelete, "/api/organizations/org-1/members/"+m.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatasetsAndProjectMembers(t *testing.T) {
	s := newServer(t, portal.Config{})

	rec := s.do(t, http.MethodPatch, "/api/datasets/D1/project", `{"projectId":"P1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/projects/P1/datasets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var links []models.ProjectDataset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &links))
	require.Len(t, links, 1)
	assert.Equal(t, "D1", links[0].DatasetID)

	rec = s.do(t, http.MethodDelete, "/api/datasets/D1/project", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/projects/P1/members", `{"userId":"u1","role":"ADMIN"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/projects/P1/members", `{"userId":"u2","role":"ADMIN"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/projects/P1/members", `{"userId":"u2","role":"OWNER"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/project-members/"+coordinator.ProjectMemberID("P1", "u1"), `{"role":"VIEWER"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ProjectRoleViewer, s.fx.Get(models.CollProjectMembers, coordinator.ProjectMemberID("P1", "u1")).Str("role"))
}

func TestReadiness(t *testing.T) {
	s := newServer(t, portal.Config{})
	rec := s.do(t, http.MethodPost, "/api/users/u2/readiness", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep struct {
		Success bool     `json:"success"`
		Created []string `json:"created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.True(t, rep.Success)
	assert.NotEmpty(t, rep.Created)
}

// A client portal with no data of its own reaches the server's store
// through the API.
func TestRemoteClientRoundTrip(t *testing.T) {
	s := newServer(t, portal.Config{})
	srv := httptest.NewServer(s.h)
	defer srv.Close()

	local := testutil.NewFixtures(t)
	client, err := portal.New(local.Store(), cache.NewMemory(nil), portal.Config{
		Remote:    remote.Options{APIBaseURL: srv.URL},
		APIToken:  serviceToken,
		AuditMode: "off",
	}, nil)
	require.NoError(t, err)

	ctx := testutil.IdentityContext("u1", "u1@example.com")
	u := client.Resolvers.CurrentUser(ctx)
	require.NotNil(t, u)
	assert.Equal(t, "org-1", u.OrganizationID)

	_, err = client.Coordinator.AssignLicense(ctx, "L1", "u2")
	require.NoError(t, err)
	assert.Equal(t, "u2", s.fx.Get(models.CollLicenses, "L1").Str("assignedTo.userId"))
	assert.Zero(t, local.Store().Count(models.CollLicenses))

	ls := client.Resolvers.Licenses(ctx, "org-1")
	require.Len(t, ls, 1)
	assert.Equal(t, models.LicenseActive, ls[0].Status)

	_, err = client.Coordinator.AssignLicense(context.Background(), "L1", "u1")
	assert.Error(t, err, "service calls need an acting user")
}

// seedOtherOrg adds a second organization whose data u1 must not reach.
func seedOtherOrg(s *server) {
	s.fx.Organization("org-2", "Globex", models.TierBasic)
	s.fx.User("v1", "v1@example.com", "Vera One", "org-2")
	s.fx.TeamMember("tm-v1", "v1", "v1@example.com", "org-2", "OWNER")
	s.fx.License("L9", "KEY-9", models.TierBasic, "org-2")
	s.fx.Project("P9", "Omega", "org-2")
	s.fx.Dataset("D9", "Ledger", "org-2", "C9")
	s.fx.Seed(models.CollProjectMembers, docstore.Doc{
		"id":        coordinator.ProjectMemberID("P9", "v1"),
		"projectId": "P9",
		"userId":    "v1",
		"role":      models.ProjectRoleViewer,
	})
}

func TestOtherOrganizationIsForbidden(t *testing.T) {
	s := newServer(t, portal.Config{})
	seedOtherOrg(s)

	tests := []struct {
		name, method, path, body string
	}{
		{"list members", http.MethodGet, "/api/organizations/org-2/members", ""},
		{"list licenses", http.MethodGet, "/api/organizations/org-2/licenses", ""},
		{"invite member", http.MethodPost, "/api/organizations/org-2/members", `{"email":"x@example.com"}`},
		{"remove member", http.MethodDelete, "/api/organizations/org-2/members/v1", ""},
		{"assign license", http.MethodPost, "/api/licenses/L9/assign", `{"userId":"u1"}`},
		{"unassign license", http.MethodPost, "/api/licenses/L9/unassign", ""},
		{"move dataset", http.MethodPatch, "/api/datasets/D9/project", `{"projectId":"P1"}`},
		{"free dataset", http.MethodDelete, "/api/datasets/D9/project", ""},
		{"project datasets", http.MethodGet, "/api/projects/P9/datasets", ""},
		{"add project member", http.MethodPost, "/api/projects/P9/members", `{"userId":"u1","role":"VIEWER"}`},
		{"change project role", http.MethodPatch, "/api/project-members/" + coordinator.ProjectMemberID("P9", "v1"), `{"role":"EDITOR"}`},
		{"user readiness", http.MethodPost, "/api/users/v1/readiness", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, "forbidden", errorOf(t, rec))
		})
	}

	assert.True(t, s.fx.Exists(models.CollUsers, "v1"))
	assert.Equal(t, models.LicensePending, s.fx.Get(models.CollLicenses, "L9").Str("status"))
	assert.Empty(t, s.fx.Get(models.CollLicenses, "L9").Str("assignedTo.userId"))
	assert.Empty(t, s.fx.Get(models.CollDatasets, "D9").Str("projectId"))
	assert.Equal(t, models.ProjectRoleViewer, s.fx.Get(models.CollProjectMembers, coordinator.ProjectMemberID("P9", "v1")).Str("role"))

	// The owner of org-2 reaches the same routes.
	v1 := map[string]string{auth.HeaderUserID: "v1", auth.HeaderUserEmail: "v1@example.com"}
	rec := s.do(t, http.MethodGet, "/api/organizations/org-2/members", "", v1)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/licenses/L9/assign", `{"userId":"v1"}`, v1)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDatasetMoveIntoOtherOrganizationIsForbidden(t *testing.T) {
	s := newServer(t, portal.Config{})
	seedOtherOrg(s)

	rec := s.do(t, http.MethodPatch, "/api/datasets/D1/project", `{"projectId":"P9"}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, s.fx.Get(models.CollDatasets, "D1").Str("projectId"))
}

func TestAssignLicenseToOutsiderIsRejected(t *testing.T) {
	s := newServer(t, portal.Config{})
	seedOtherOrg(s)

	rec := s.do(t, http.MethodPost, "/api/licenses/L1/assign", `{"userId":"v1"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, errorOf(t, rec), coordinator.ErrOrganizationMismatch.Error())
	assert.Equal(t, models.LicensePending, s.fx.Get(models.CollLicenses, "L1").Str("status"))
}

func TestMissingTargetsStillAnswerNotFound(t *testing.T) {
	s := newServer(t, portal.Config{})

	rec := s.do(t, http.MethodPost, "/api/licenses/nope/unassign", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/datasets/nope/project", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodPatch, "/api/project-members/nope", `{"role":"EDITOR"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallerWithoutRecordIsForbidden(t *testing.T) {
	s := newServer(t, portal.Config{})
	ghost := map[string]string{auth.HeaderUserID: "ghost", auth.HeaderUserEmail: "ghost@example.com"}
	rec := s.do(t, http.MethodGet, "/api/organizations/org-1/licenses", "", ghost)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReadinessInvalidatesTeamViews(t *testing.T) {
	s := newServer(t, portal.Config{})
	ctx := context.Background()

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/organizations/org-1/members", "", nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/me/organization", "", nil).Code)
	var scratch any
	require.True(t, s.p.Cache.Get(ctx, cache.TeamMembersKey("org-1"), &scratch))
	require.True(t, s.p.Cache.Get(ctx, cache.OrgContextKey("org-1"), &scratch))

	rec := s.do(t, http.MethodPost, "/api/users/u2/readiness", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.False(t, s.p.Cache.Get(ctx, cache.TeamMembersKey("org-1"), &scratch))
	assert.False(t, s.p.Cache.Get(ctx, cache.OrgContextKey("org-1"), &scratch))
}
