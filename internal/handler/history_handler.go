package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pairchat/internal/domain"
	"pairchat/internal/middleware"
	"pairchat/internal/service"

	"github.com/go-chi/chi/v5"
)

// HistoryHandler serves the persisted conversation between the caller and a peer
type HistoryHandler struct {
	dispatch    *service.DispatchService
	authService *service.AuthService
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(dispatch *service.DispatchService, authService *service.AuthService) *HistoryHandler {
	return &HistoryHandler{
		dispatch:    dispatch,
		authService: authService,
	}
}

// HistoryResponse wraps a page of messages
type HistoryResponse struct {
	Messages []*domain.Message `json:"messages"`
}

// GetMessages handles GET /api/v1/messages/{peer}.
// Optional query parameters: limit (page size), before (RFC3339 cursor,
// exclusive; the sent_at of the oldest message already held) and before_id
// (that message's id, breaking ties when two messages share a timestamp).
func (h *HistoryHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error":"User not found"}`, http.StatusUnauthorized)
		return
	}

	peer := chi.URLParam(r, "peer")
	if peer == "" {
		http.Error(w, `{"error":"Peer username required"}`, http.StatusBadRequest)
		return
	}

	var page domain.HistoryPage
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			http.Error(w, `{"error":"Invalid limit"}`, http.StatusBadRequest)
			return
		}
		page.Limit = limit
	}
	if v := r.URL.Query().Get("before"); v != "" {
		before, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			http.Error(w, `{"error":"Invalid before cursor"}`, http.StatusBadRequest)
			return
		}
		page.Before = before
	}
	if v := r.URL.Query().Get("before_id"); v != "" {
		beforeID, err := strconv.ParseInt(v, 10, 64)
		if err != nil || beforeID < 1 {
			http.Error(w, `{"error":"Invalid before_id cursor"}`, http.StatusBadRequest)
			return
		}
		page.BeforeID = beforeID
	}

	messages, err := h.dispatch.History(r.Context(), user.Username, peer, page)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrStoreUnavailable):
			status = http.StatusServiceUnavailable
		}
		http.Error(w, `{"error":"`+err.Error()+`"}`, status)
		return
	}

	if messages == nil {
		messages = []*domain.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HistoryResponse{Messages: messages})
}
