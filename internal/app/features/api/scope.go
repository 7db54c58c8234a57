// internal/app/features/api/scope.go
package api

import (
	"net/http"

	"github.com/dalemusser/licensehub/internal/app/resolvers"
	"github.com/dalemusser/licensehub/internal/app/system/authz"
	"github.com/dalemusser/licensehub/internal/app/system/metrics"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// orgOf finds the organization a request targets. found is false when the
// target does not exist, so the handler can answer 404 itself.
type orgOf func(h *Handler, r *http.Request) (org string, found bool)

// inOrg refuses requests whose target belongs to an organization other than
// the caller's.
func (h *Handler) inOrg(target orgOf) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if org, found := target(h, r); found && !h.allowed(r, org) {
				h.forbid(w, r, org)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) allowed(r *http.Request, org string) bool {
	return authz.CanAccessOrg(h.Portal.Resolvers.CurrentUser(r.Context()), org)
}

func (h *Handler) forbid(w http.ResponseWriter, r *http.Request, org string) {
	metrics.Forbidden.Inc()
	h.Log.Warn("cross-organization request refused",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("org_id", org))
	writeJSON(w, r, http.StatusForbidden, errorResponse{Error: "forbidden"})
}

func pathOrg(_ *Handler, r *http.Request) (string, bool) {
	return chi.URLParam(r, "orgID"), true
}

func licenseOrg(h *Handler, r *http.Request) (string, bool) {
	d := h.Portal.Store.GetByID(r.Context(), models.CollLicenses, chi.URLParam(r, "licenseID"))
	if d == nil {
		return "", false
	}
	return resolvers.NormalizeLicense(d).OrganizationID, true
}

// docOrg reads the organization of the document named by the URL param.
func docOrg(collection, param string) orgOf {
	return func(h *Handler, r *http.Request) (string, bool) {
		d := h.Portal.Store.GetByID(r.Context(), collection, chi.URLParam(r, param))
		if d == nil {
			return "", false
		}
		return authz.OrgOf(d), true
	}
}

// projectMemberOrg follows a project_members row to its project.
func projectMemberOrg(h *Handler, r *http.Request) (string, bool) {
	m := h.Portal.Store.GetByID(r.Context(), models.CollProjectMembers, chi.URLParam(r, "memberID"))
	if m == nil {
		return "", false
	}
	return authz.OrgOf(h.Portal.Store.GetByID(r.Context(), models.CollProjects, m.Str("projectId"))), true
}
