// Package api exposes the simplepool service over HTTP. Command parsing
// and message rendering stay with the callers; these endpoints are the
// transport collaborators use to reach the engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-pool/pkg/simplepool"
)

// Handler handles HTTP requests for the submission pool
type Handler struct {
	service simplepool.Service
}

// NewHandler creates a new pool handler
func NewHandler(service simplepool.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for pool endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/submissions", h.Ingest)
	r.Post("/duplicates/query", h.QueryDuplicates)
	r.Post("/moderation/all/{action}", h.ModerateAll)
	r.Post("/moderation/{id}/{action}", h.Moderate)
	r.Get("/records/random", h.RandomRecord)
	r.Get("/records/{id}", h.GetRecord)
	r.Delete("/records/{id}", h.DeleteRecord)
	r.Get("/pending", h.ListPending)
	r.Get("/approved", h.ListApproved)
	r.Get("/contributors/{contributorId}/records", h.ContributorRecords)
	return r
}

// Ingest submits a record. Media bytes arrive base64-encoded in the
// element data field. A duplicate submission answers 409 with the match.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req simplepool.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Ingest(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result.Duplicate != nil {
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, result)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// Moderate approves or rejects a single pending record
func (h *Handler) Moderate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid record ID", http.StatusBadRequest)
		return
	}
	action, ok := parseAction(chi.URLParam(r, "action"))
	if !ok {
		http.Error(w, "Invalid moderation action", http.StatusBadRequest)
		return
	}

	result, err := h.service.Moderate(r.Context(), simplepool.ModerateRequest{ID: id, Action: action})
	if err != nil {
		h.writeError(w, err)
		return
	}
	render.JSON(w, r, result)
}

// ModerateAll approves or rejects every pending record
func (h *Handler) ModerateAll(w http.ResponseWriter, r *http.Request) {
	action, ok := parseAction(chi.URLParam(r, "action"))
	if !ok {
		http.Error(w, "Invalid moderation action", http.StatusBadRequest)
		return
	}

	result, err := h.service.Moderate(r.Context(), simplepool.ModerateRequest{All: true, Action: action})
	if err != nil {
		h.writeError(w, err)
		return
	}
	render.JSON(w, r, result)
}

// QueryDuplicates checks candidate content against the fingerprint index
func (h *Handler) QueryDuplicates(w http.ResponseWriter, r *http.Request) {
	var req simplepool.QueryDuplicatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.service.QueryDuplicates(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	render.JSON(w, r, report)
}

// GetRecord returns a record from either partition
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid record ID", http.StatusBadRequest)
		return
	}
	record, err := h.service.GetRecord(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	render.JSON(w, r, record)
}

// RandomRecord returns a uniformly random approved record
func (h *Handler) RandomRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.RandomApproved(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	render.JSON(w, r, record)
}

// DeleteRecord removes a record, its media files and fingerprints, and
// recycles its id. The requester is identified by query parameters; the
// permission rule itself lives in the service.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid record ID", http.StatusBadRequest)
		return
	}
	req := simplepool.DeleteRequest{
		ID:          id,
		RequesterID: r.URL.Query().Get("requesterId"),
		Manager:     r.URL.Query().Get("manager") == "true",
	}
	if err := h.service.Delete(r.Context(), req); err != nil {
		h.writeError(w, err)
		return
	}
	render.NoContent(w, r)
}

// ListPending returns the pending partition
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListPending(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	render.JSON(w, r, records)
}

// ListApproved returns the approved partition
func (h *Handler) ListApproved(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListApproved(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	render.JSON(w, r, records)
}

// ContributorRecords returns the approved records of one contributor
func (h *Handler) ContributorRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ContributorRecords(r.Context(), chi.URLParam(r, "contributorId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	render.JSON(w, r, records)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, simplepool.ErrRecordNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, simplepool.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, simplepool.ErrEmptySubmission):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, simplepool.ErrNotInitialized):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseAction(s string) (simplepool.ModerationAction, bool) {
	switch simplepool.ModerationAction(s) {
	case simplepool.ActionApprove:
		return simplepool.ActionApprove, true
	case simplepool.ActionReject:
		return simplepool.ActionReject, true
	default:
		return "", false
	}
}
