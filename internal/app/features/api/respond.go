// internal/app/features/api/respond.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/dalemusser/licensehub/internal/app/coordinator"
	"github.com/dalemusser/licensehub/internal/app/resolvers"
	"github.com/dalemusser/licensehub/internal/app/system/auth"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v. Successful GETs carry an ETag and must be
// revalidated; a matching If-None-Match gets 304.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet && status == http.StatusOK {
		etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
		// Responses depend on the acting user.
		w.Header().Set("Vary", auth.HeaderUserID)
		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func etagMatches(header, etag string) bool {
	for _, t := range strings.Split(header, ",") {
		t = strings.TrimPrefix(strings.TrimSpace(t), "W/")
		if t == etag || t == "*" {
			return true
		}
	}
	return false
}

// statusOf maps domain errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrLicenseNotFound),
		errors.Is(err, coordinator.ErrUserNotFound),
		errors.Is(err, coordinator.ErrMemberNotFound),
		errors.Is(err, coordinator.ErrDatasetNotFound),
		errors.Is(err, coordinator.ErrProjectNotFound),
		errors.Is(err, resolvers.ErrOrganizationNotFound),
		errors.Is(err, resolvers.ErrNoCurrentUser),
		errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrLicenseAlreadyAssigned),
		errors.Is(err, coordinator.ErrProjectAdminExists),
		errors.Is(err, coordinator.ErrDuplicateEmail),
		errors.Is(err, docstore.ErrPreconditionFailed):
		return http.StatusConflict
	case errors.Is(err, coordinator.ErrInvalidEmail),
		errors.Is(err, coordinator.ErrInvalidRole),
		errors.Is(err, coordinator.ErrOrganizationMismatch):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.Log.Error("api request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// decode reads a JSON request body into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(dst); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}
