package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	gmail_domain "github.com/reworx/mailorder/internal/domain/gmail"
	"github.com/reworx/mailorder/internal/service/extraction"
)

type OrdersHandler struct {
	extractionService *extraction.Service
}

func NewOrdersHandler(extractionService *extraction.Service) *OrdersHandler {
	return &OrdersHandler{
		extractionService: extractionService,
	}
}

type connectRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

type syncRequest struct {
	UserID string `json:"user_id"`
}

// HandleConnect exchanges an authorization code for tokens and runs a
// full extraction. A run that finds nothing still returns 200 with an
// empty order list; only a rejected credential is a failure.
func (h *OrdersHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Code == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	result, err := h.extractionService.ConnectMailbox(r.Context(), req.UserID, req.Code)
	if err != nil {
		h.writeError(w, req.UserID, err)
		return
	}

	h.writeResult(w, result)
}

func (h *OrdersHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	result, err := h.extractionService.SyncOrders(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, req.UserID, err)
		return
	}

	h.writeResult(w, result)
}

func (h *OrdersHandler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	result, err := h.extractionService.OrderHistory(r.Context(), userID)
	if err != nil {
		slog.Error("failed to load order history", "user_id", userID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.writeResult(w, result)
}

func (h *OrdersHandler) writeResult(w http.ResponseWriter, result *extraction.Result) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *OrdersHandler) writeError(w http.ResponseWriter, userID string, err error) {
	var authErr *gmail_domain.AuthError
	if errors.As(err, &authErr) {
		slog.Warn("connection failed", "user_id", userID, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "connection failed, reconnect your account"})
		return
	}

	slog.Error("extraction failed", "user_id", userID, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
