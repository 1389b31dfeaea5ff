package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Shivanand-hulikatti/campus-ticketing/internal/intent"
	"github.com/Shivanand-hulikatti/campus-ticketing/internal/model"
)

// maxHistory is how many prior chat turns are forwarded to the assistant.
const maxHistory = 20

// ParseResponse is the parsed intent plus what the inventory knows about it.
// EventID, Remaining and SoldOut are set when a booking names an existing
// event; Events is set for listing requests.
type ParseResponse struct {
	intent.Intent
	EventID   string               `json:"event_id,omitempty"`
	Remaining *int                 `json:"remaining,omitempty"`
	SoldOut   bool                 `json:"sold_out,omitempty"`
	Events    []model.EventSummary `json:"events,omitempty"`
}

// MessageRequest is one chat turn for the assistant. Context holds the
// earlier turns, oldest first.
type MessageRequest struct {
	Message string               `json:"message"`
	Context []intent.ChatMessage `json:"context,omitempty"`
}

// WithParser replaces the parser behind /llm/parse.
func (h *EventHandler) WithParser(p intent.Parser) *EventHandler {
	h.parser = p
	return h
}

// WithAssistant replaces the assistant behind /llm/message.
func (h *EventHandler) WithAssistant(a intent.Assistant) *EventHandler {
	h.assistant = a
	return h
}

// ParseIntent handles POST /llm/parse
// It only reads the inventory; nothing is booked until confirm-booking.
func (h *EventHandler) ParseIntent(w http.ResponseWriter, r *http.Request) {
	var req model.ParseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "text is required")
		return
	}

	parsed, err := h.parser.Parse(r.Context(), req.Text)
	if err != nil {
		h.logger.Warn("intent parse aborted", "error", err)
		writeError(w, http.StatusServiceUnavailable, CodeParserUnavailable, "unable to parse request, please retry")
		return
	}

	resp := ParseResponse{Intent: parsed}
	switch parsed.Kind {
	case intent.KindBook:
		if parsed.Event == "" {
			break
		}
		event, err := h.svc.GetEventByName(r.Context(), parsed.Event)
		if err != nil && !errors.Is(err, model.ErrEventNotFound) {
			h.writeServiceError(w, r, err)
			return
		}
		// An unknown title still returns the intent so the caller can correct it.
		if err == nil {
			resp.EventID = event.ID
			remaining := event.AvailableTickets
			resp.Remaining = &remaining
			resp.SoldOut = event.SoldOut()
		}
	case intent.KindList:
		events, err := h.svc.ListEvents(r.Context())
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		resp.Events = make([]model.EventSummary, 0, len(events))
		for i := range events {
			resp.Events = append(resp.Events, events[i].Summary())
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ConfirmBooking handles POST /llm/confirm-booking
// It books by title through the same purchase path as the REST API.
func (h *EventHandler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	var req model.ConfirmBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Event) == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "event is required")
		return
	}

	// Only an absent count means one ticket; an explicit zero is rejected.
	tickets := 1
	if req.Tickets != nil {
		tickets = *req.Tickets
	}

	res, err := h.svc.BookByName(r.Context(), req.Event, tickets)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ConfirmBookingResponse{
		Message:        fmt.Sprintf("Successfully booked %d ticket(s) for %s", tickets, strings.TrimSpace(req.Event)),
		PurchaseResult: *res,
	})
}

// Message handles POST /llm/message
// The assistant only talks; bookings still go through confirm-booking.
func (h *EventHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "message is required")
		return
	}
	for i, m := range req.Context {
		if m.Role != intent.RoleUser && m.Role != intent.RoleAssistant {
			writeError(w, http.StatusBadRequest, CodeValidation,
				fmt.Sprintf("context[%d]: role must be %q or %q", i, intent.RoleUser, intent.RoleAssistant))
			return
		}
	}

	history := req.Context
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	reply, err := h.assistant.Chat(r.Context(), req.Message, history)
	if err != nil {
		h.logger.Warn("assistant chat aborted", "error", err)
		writeError(w, http.StatusServiceUnavailable, CodeParserUnavailable, "unable to answer, please retry")
		return
	}

	writeJSON(w, http.StatusOK, reply)
}
