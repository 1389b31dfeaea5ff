// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/campus-ticketing/internal/intent"
	"github.com/Shivanand-hulikatti/campus-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/campus-ticketing/internal/service"
)

// maxBodyBytes caps request bodies at 1 MB.
const maxBodyBytes = 1 << 20

// EventHandler holds all HTTP handlers for the ticketing API.
type EventHandler struct {
	svc       *service.EventService
	parser    intent.Parser
	assistant intent.Assistant
	logger    *slog.Logger
}

// NewEventHandler constructs an EventHandler. Natural-language requests use
// the keyword parser and the chat assistant reports itself unavailable until
// WithParser and WithAssistant install others.
func NewEventHandler(svc *service.EventService, logger *slog.Logger) *EventHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EventHandler{
		svc:       svc,
		parser:    intent.Fallback{},
		assistant: intent.Unavailable{},
		logger:    logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	err := decodeJSON(w, r, dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Error codes are part of the API contract.
const (
	CodeEventNotFound     = "EVENT_NOT_FOUND"
	CodeNotEnoughTickets  = "NOT_ENOUGH_TICKETS"
	CodeInvalidQuantity   = "INVALID_QUANTITY"
	CodeCapacityBelowSold = "CAPACITY_BELOW_SOLD"
	CodeValidation        = "VALIDATION_ERROR"
	CodeStorage           = "STORAGE_ERROR"
	CodeParserUnavailable = "PARSER_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// writeServiceError maps a service error to its status and stable code.
func (h *EventHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrEventNotFound):
		writeError(w, http.StatusNotFound, CodeEventNotFound, model.ErrEventNotFound.Error())
	case errors.Is(err, model.ErrNotEnoughTickets):
		writeError(w, http.StatusConflict, CodeNotEnoughTickets, model.ErrNotEnoughTickets.Error())
	case errors.Is(err, model.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, CodeInvalidQuantity, err.Error())
	case errors.Is(err, model.ErrCapacityBelowSold):
		writeError(w, http.StatusConflict, CodeCapacityBelowSold, err.Error())
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, model.ErrStorage):
		h.logger.Error("storage failure",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusServiceUnavailable, CodeStorage, "storage temporarily unavailable, please retry")
	default:
		h.logger.Error("unhandled error",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
// Returns the list projection of every event, soonest first.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	// Empty array rather than null.
	summaries := make([]model.EventSummary, 0, len(events))
	for i := range events {
		summaries = append(summaries, events[i].Summary())
	}

	writeJSON(w, http.StatusOK, summaries)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// LookupEvent handles GET /events/lookup?title=
func (h *EventHandler) LookupEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEventByName(r.Context(), r.URL.Query().Get("title"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// UpdateEvent handles PATCH /events/{id}
// Only the fields present in the body change.
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var patch model.EventPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.UpdateEvent(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// Purchase handles POST /events/{id}/purchase
// The body is optional; without a quantity one ticket is bought.
func (h *EventHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req model.PurchaseRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidQuantity, "invalid request body: "+err.Error())
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	res, err := h.svc.Purchase(r.Context(), chi.URLParam(r, "id"), quantity)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ListBookings handles GET /events/{id}/bookings
func (h *EventHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.svc.ListBookings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if bookings == nil {
		bookings = []model.Booking{}
	}

	writeJSON(w, http.StatusOK, bookings)
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
