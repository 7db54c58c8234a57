// internal/app/features/api/handler.go
package api

import (
	"net/http"

	"github.com/dalemusser/licensehub/internal/app/coordinator"
	"github.com/dalemusser/licensehub/internal/app/portal"
	"github.com/dalemusser/licensehub/internal/app/system/authz"
	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/ratelimit"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the licensehub HTTP API on top of a Portal. It is the
// server side of remote.Client.
type Handler struct {
	Portal *portal.Portal
	Log    *zap.Logger

	// WriteLimiter throttles mutations per identity. Nil disables it.
	WriteLimiter *ratelimit.Limiter
}

// NewHandler creates an API handler.
func NewHandler(p *portal.Portal, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Portal: p, Log: logger}
}

// GET /api/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u := h.Portal.Resolvers.CurrentUser(r.Context())
	if u == nil {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "no current user"})
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

// GET /api/me/organization
func (h *Handler) MyOrganization(w http.ResponseWriter, r *http.Request) {
	oc, err := h.Portal.Resolvers.OrganizationContext(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, oc)
}

// GET /api/organizations/{orgID}/licenses
func (h *Handler) Licenses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.Portal.Resolvers.Licenses(r.Context(), chi.URLParam(r, "orgID")))
}

// GET /api/organizations/{orgID}/members
func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.Portal.Resolvers.TeamMembers(r.Context(), chi.URLParam(r, "orgID")))
}

// POST /api/organizations/{orgID}/members
func (h *Handler) InviteMember(w http.ResponseWriter, r *http.Request) {
	var inv coordinator.Invitation
	if !decode(w, r, &inv) {
		return
	}
	m, err := h.Portal.Coordinator.InviteMember(r.Context(), chi.URLParam(r, "orgID"), inv)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, m)
}

// DELETE /api/organizations/{orgID}/members/{memberID}
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	res, err := h.Portal.Coordinator.RemoveTeamMember(r.Context(), chi.URLParam(r, "memberID"), chi.URLParam(r, "orgID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

type assignRequest struct {
	UserID string `json:"userId"`
}

// POST /api/licenses/{licenseID}/assign
func (h *Handler) AssignLicense(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Portal.Coordinator.AssignLicense(r.Context(), chi.URLParam(r, "licenseID"), req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// POST /api/licenses/{licenseID}/unassign
func (h *Handler) UnassignLicense(w http.ResponseWriter, r *http.Request) {
	res, err := h.Portal.Coordinator.UnassignLicense(r.Context(), chi.URLParam(r, "licenseID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

type datasetProjectRequest struct {
	ProjectID string `json:"projectId"`
}

// PATCH /api/datasets/{datasetID}/project
func (h *Handler) AssignDataset(w http.ResponseWriter, r *http.Request) {
	var req datasetProjectRequest
	if !decode(w, r, &req) {
		return
	}
	// The route checked the dataset; the destination must be ours too.
	if p := h.Portal.Store.GetByID(r.Context(), models.CollProjects, req.ProjectID); p != nil && !h.allowed(r, authz.OrgOf(p)) {
		h.forbid(w, r, authz.OrgOf(p))
		return
	}
	link, err := h.Portal.Coordinator.AssignDatasetToProject(r.Context(), chi.URLParam(r, "datasetID"), req.ProjectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, link)
}

// DELETE /api/datasets/{datasetID}/project
func (h *Handler) UnassignDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.Portal.Coordinator.UnassignDatasetFromProject(r.Context(), chi.URLParam(r, "datasetID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/projects/{projectID}/datasets
func (h *Handler) ProjectDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.Portal.Resolvers.ProjectDatasets(r.Context(), chi.URLParam(r, "projectID")))
}

type projectMemberRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// POST /api/projects/{projectID}/members
func (h *Handler) AddProjectMember(w http.ResponseWriter, r *http.Request) {
	var req projectMemberRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := h.Portal.Coordinator.AddProjectMember(r.Context(), chi.URLParam(r, "projectID"), req.UserID, req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

// PATCH /api/project-members/{memberID}
func (h *Handler) UpdateProjectMember(w http.ResponseWriter, r *http.Request) {
	var req projectMemberRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := h.Portal.Coordinator.UpdateProjectMemberRole(r.Context(), chi.URLParam(r, "memberID"), req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

// POST /api/users/{userID}/readiness
//
// A missing users row is reported in the body, not as an error status.
// Created mirror rows change the team and organization views.
func (h *Handler) EnsureReadiness(w http.ResponseWriter, r *http.Request) {
	rep := h.Portal.Readiness.Ensure(r.Context(), chi.URLParam(r, "userID"))
	if len(rep.Created) > 0 {
		cache.InvalidateAll(r.Context(), h.Portal.Cache, cache.PrefixTeamMembers, cache.PrefixOrgContext)
	}
	writeJSON(w, r, http.StatusOK, rep)
}
