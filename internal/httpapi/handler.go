package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"

	"hospitalops/queue-service/internal/queue"
)

type Handler struct {
	engine queue.Engine
}

type joinRequest struct {
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	Priority    string `json:"priority"`
}

type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type priorityRequest struct {
	Priority string `json:"priority"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(engine queue.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/queues", h.handleListQueues)
	mux.HandleFunc("/api/queues/stats", h.handleStats)
	mux.HandleFunc("/api/queues/", h.handleQueue)
	mux.HandleFunc("/api/tickets/", h.handleTicket)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleListQueues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter := queue.ListFilter{
		DepartmentID: strings.TrimSpace(r.URL.Query().Get("department_id")),
		GroupID:      strings.TrimSpace(r.URL.Query().Get("group_id")),
	}
	queues, err := h.engine.ListQueues(filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, queues)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter := queue.ListFilter{
		DepartmentID: strings.TrimSpace(r.URL.Query().Get("department_id")),
		GroupID:      strings.TrimSpace(r.URL.Query().Get("group_id")),
	}
	stats, err := h.engine.Stats(filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleQueue serves /api/queues/{queueID} and /api/queues/{queueID}/tickets.
func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/queues/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.handleGetQueue(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "tickets":
		h.handleJoinQueue(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetQueue(w http.ResponseWriter, r *http.Request, queueID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	result, err := h.engine.GetQueue(queueID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleJoinQueue(w http.ResponseWriter, r *http.Request, queueID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req joinRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.Priority = strings.TrimSpace(req.Priority)
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_id is required")
		return
	}

	ticket, err := h.engine.JoinQueue(queue.JoinInput{
		QueueID:     queueID,
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		Priority:    req.Priority,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// handleTicket serves /api/tickets/{ticketID} and
// /api/tickets/{ticketID}/actions/{transition|priority}.
func (h *Handler) handleTicket(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.handleGetTicket(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions" && parts[2] == "transition":
		h.handleTransition(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions" && parts[2] == "priority":
		h.handleSetPriority(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ticket, err := h.engine.GetTicket(ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing caller identity")
		return
	}
	var req transitionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Status = strings.TrimSpace(req.Status)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "status is required")
		return
	}

	ticket, err := h.engine.Transition(queue.TransitionInput{
		TicketID:         ticketID,
		ToStatus:         req.Status,
		Operator:         identity.Operator,
		Reason:           req.Reason,
		CallerRole:       identity.Role,
		CallerDepartment: identity.DepartmentID,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleSetPriority(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req priorityRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Priority = strings.TrimSpace(req.Priority)
	if req.Priority == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "priority is required")
		return
	}

	ticket, err := h.engine.SetPriority(ticketID, req.Priority)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, queue.ErrQueueNotFound):
		return http.StatusNotFound, "not_found", "queue not found"
	case errors.Is(err, queue.ErrTicketNotFound):
		return http.StatusNotFound, "not_found", "ticket not found"
	case errors.Is(err, queue.ErrInvalidTransition):
		// The message names both states so callers can see which retry
		// raced them.
		return http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, queue.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied", "permission denied"
	case errors.Is(err, queue.ErrValidation):
		return http.StatusBadRequest, "invalid_request", err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
