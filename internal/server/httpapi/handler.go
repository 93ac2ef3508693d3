// Package httpapi exposes the publish pipeline and catalog search over a
// small JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/intunedeploy/internal/common"
	"github.com/dmitrijs2005/intunedeploy/internal/logging"
	"github.com/dmitrijs2005/intunedeploy/internal/server/history"
	"github.com/dmitrijs2005/intunedeploy/internal/uploader"
	"github.com/dmitrijs2005/intunedeploy/internal/winget"
)

const defaultRunsLimit = 50

// UploadService runs the publish pipeline for one package.
type UploadService interface {
	Upload(ctx context.Context, req uploader.Request) (string, error)
}

// SearchService queries the package catalog.
type SearchService interface {
	Search(ctx context.Context, term string) ([]winget.Package, error)
}

type Handler struct {
	uploads UploadService
	search  SearchService
	runs    *history.Service
	logger  logging.Logger
}

func NewHandler(uploads UploadService, search SearchService, runs *history.Service, logger logging.Logger) *Handler {
	return &Handler{uploads: uploads, search: search, runs: runs, logger: logger}
}

// Router builds the request multiplexer for the API surface.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /search", h.handleSearch)
	mux.HandleFunc("POST /apps", h.handleCreateApp)
	mux.HandleFunc("GET /runs", h.handleListRuns)
	return mux
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "intunedeploy API"})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("search_term")
	if term == "" {
		writeError(w, http.StatusBadRequest, "missing search_term parameter")
		return
	}

	packages, err := h.search.Search(r.Context(), term)
	if err != nil {
		h.logger.Error(r.Context(), "catalog search failed", "term", term, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if len(packages) == 0 {
		writeError(w, http.StatusNotFound, "no packages found")
		return
	}

	writeJSON(w, http.StatusOK, packages)
}

// createAppRequest is the POST /apps body.
type createAppRequest struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	PackageID   string `json:"package_id"`
	Description string `json:"description"`
	Publisher   string `json:"publisher"`
}

type createAppResponse struct {
	AppID string `json:"app_id"`
}

func (h *Handler) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var req createAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" || req.DisplayName == "" || req.PackageID == "" {
		writeError(w, http.StatusBadRequest, "path, display_name and package_id are required")
		return
	}

	ctx := r.Context()
	runID := h.runs.Start(ctx, req.Path, req.DisplayName, req.PackageID, string(uploader.StateStarted))

	appID, err := h.uploads.Upload(ctx, uploader.Request{
		Path:        req.Path,
		DisplayName: req.DisplayName,
		PackageID:   req.PackageID,
		Description: req.Description,
		Publisher:   req.Publisher,
	})
	if err != nil {
		h.runs.Finish(ctx, runID, appID, string(uploader.StateFailed), err.Error())
		h.logger.Error(ctx, "upload run failed", "package", req.PackageID, "appId", appID, "error", err.Error())
		writeError(w, statusForError(err), err.Error())
		return
	}

	h.runs.Finish(ctx, runID, appID, string(uploader.StatePublished), "")
	writeJSON(w, http.StatusCreated, createAppResponse{AppID: appID})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.ListRecent(r.Context(), defaultRunsLimit)
	if err != nil {
		h.logger.Error(r.Context(), "listing runs failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "listing runs failed")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// statusForError maps pipeline failures onto HTTP classes: bad input 400,
// wait budget exhausted 504, remote-side rejection 502, everything else 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound),
		errors.Is(err, common.ErrMalformedContainer),
		errors.Is(err, common.ErrDecryptionFailed):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, common.ErrRemoteRejected),
		errors.Is(err, common.ErrCommitFailed),
		errors.Is(err, common.ErrUploadFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
