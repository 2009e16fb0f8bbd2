package oauth

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/reworx/mailorder/internal/service/extraction"
)

const (
	htmlError   = `<html><body><h1>Connection failed</h1><p>Reconnect your account and try again.</p></body></html>`
	htmlSuccess = `<html><body><h1>Gmail connected</h1><p>You can close this window.</p></body></html>`
)

type GmailOAuthHandler struct {
	extractionService *extraction.Service
}

func NewGmailOAuthHandler(extractionService *extraction.Service) *GmailOAuthHandler {
	return &GmailOAuthHandler{
		extractionService: extractionService,
	}
}

// HandleAuthRedirect sends the user to the provider consent page. The
// user id rides along as the OAuth state parameter.
func (h *GmailOAuthHandler) HandleAuthRedirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	http.Redirect(w, r, h.extractionService.AuthURL(userID), http.StatusFound)
}

func (h *GmailOAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" || state == "" {
		slog.Error("missing code or state", "state", state)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if _, err := h.extractionService.ConnectMailbox(r.Context(), state, code); err != nil {
		slog.Error("failed to connect mailbox", "user_id", state, "error", err)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, htmlError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, htmlSuccess)
}
