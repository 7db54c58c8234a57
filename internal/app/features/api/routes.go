// internal/app/features/api/routes.go
package api

import (
	"net/http"
	"time"

	"github.com/dalemusser/licensehub/internal/app/system/auth"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/app/system/timeouts"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns the API router, mounted under /api. Requests must already
// carry an identity provider (auth.SessionManager.LoadIdentity). Routes that
// name an organization, or a license, dataset, project or user inside one,
// answer 403 to callers from another organization.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireIdentity)
	// The API is the remote end; serving it must never call itself.
	r.Use(directOnly)

	r.Group(func(r chi.Router) {
		r.Use(h.withTimeout(timeouts.Short))
		r.Get("/me", h.Me)
		r.Get("/me/organization", h.MyOrganization)
		r.With(h.inOrg(pathOrg)).Get("/organizations/{orgID}/licenses", h.Licenses)
		r.With(h.inOrg(pathOrg)).Get("/organizations/{orgID}/members", h.Members)
		r.With(h.inOrg(docOrg(models.CollProjects, "projectID"))).Get("/projects/{projectID}/datasets", h.ProjectDatasets)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.WriteLimiter.Middleware)
		r.Use(h.withTimeout(timeouts.Long))
		r.Group(func(r chi.Router) {
			r.Use(h.inOrg(pathOrg))
			r.Post("/organizations/{orgID}/members", h.InviteMember)
			r.Delete("/organizations/{orgID}/members/{memberID}", h.RemoveMember)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.inOrg(licenseOrg))
			r.Post("/licenses/{licenseID}/assign", h.AssignLicense)
			r.Post("/licenses/{licenseID}/unassign", h.UnassignLicense)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.inOrg(docOrg(models.CollDatasets, "datasetID")))
			r.Patch("/datasets/{datasetID}/project", h.AssignDataset)
			r.Delete("/datasets/{datasetID}/project", h.UnassignDataset)
		})

		r.With(h.inOrg(docOrg(models.CollProjects, "projectID"))).Post("/projects/{projectID}/members", h.AddProjectMember)
		r.With(h.inOrg(projectMemberOrg)).Patch("/project-members/{memberID}", h.UpdateProjectMember)

		r.With(h.inOrg(docOrg(models.CollUsers, "userID"))).Post("/users/{userID}/readiness", h.EnsureReadiness)
	})
	return r
}

func directOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(remote.DirectOnly(r.Context())))
	})
}

// withTimeout bounds the request by d and logs requests that run out of time.
func (h *Handler) withTimeout(d func() time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := timeouts.WithTimeout(r.Context(), d(), h.Log, r.Method+" "+r.URL.Path)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
