package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chy168/google-chat-mcp-server/internal/auth"
	apperrors "github.com/chy168/google-chat-mcp-server/internal/errors"
)

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}

// HandleAuth returns the /auth handler. It short-circuits with a JSON
// body when valid credentials already exist, otherwise starts an
// authorization session and redirects the user-agent to the provider's
// consent page. An optional callback_url query parameter overrides the
// redirect URI for this attempt.
func HandleAuth(coord *auth.Coordinator, manager *auth.CredentialManager, defaultRedirectURI string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		cred, err := manager.GetCredential(r.Context())
		if err != nil {
			logger.Error("credential check failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, err.Error())

			return
		}

		if cred != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"status":  "already_authenticated",
				"expiry":  cred.Expiry,
				"message": "Valid credentials already exist.",
			})

			return
		}

		redirectURI := defaultRedirectURI
		if cb := r.URL.Query().Get("callback_url"); cb != "" {
			redirectURI = cb
		}

		authURL, _, err := coord.Begin(redirectURI)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, apperrors.ErrMissingClientConfig) {
				status = http.StatusBadRequest
			}

			logger.Error("starting authorization failed", slog.String("error", err.Error()))
			writeError(w, status, err.Error())

			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// HandleCallback returns the /auth/callback handler, the terminal end of
// the authorization flow. Rejections (provider error, unknown state,
// missing refresh token) are client errors; exchange transport failures
// are server errors.
func HandleCallback(coord *auth.Coordinator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		q := r.URL.Query()

		cred, err := coord.Complete(r.Context(), q.Get("state"), q.Get("code"), q.Get("error"))
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, apperrors.ErrProviderDenied),
				errors.Is(err, apperrors.ErrUnknownState),
				errors.Is(err, apperrors.ErrNoRefreshToken):
				status = http.StatusBadRequest
			}

			logger.Warn("authorization callback failed", slog.String("error", err.Error()))
			writeError(w, status, err.Error())

			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":            "success",
			"message":           "Authentication successful. You can close this window.",
			"expiry":            cred.Expiry,
			"has_refresh_token": cred.CanRefresh(),
		})
	}
}

// HandleRefresh returns the POST /auth/refresh handler, which forces a
// synchronous token refresh.
func HandleRefresh(manager *auth.CredentialManager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if err := manager.Refresh(r.Context()); err != nil {
			logger.Warn("manual refresh failed", slog.String("error", err.Error()))
			writeError(w, http.StatusBadRequest, err.Error())

			return
		}

		cred, err := manager.GetCredential(r.Context())
		if err != nil || cred == nil {
			writeError(w, http.StatusInternalServerError, "refresh succeeded but credential unreadable")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":       "success",
			"expiry":       cred.Expiry,
			"last_refresh": manager.Store().LastRefresh(),
		})
	}
}

// statusResponse is the GET /status body.
type statusResponse struct {
	Status          string     `json:"status"`
	TokenPath       string     `json:"token_path"`
	Expiry          *time.Time `json:"expiry,omitempty"`
	LastRefresh     *time.Time `json:"last_refresh,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	Message         string     `json:"message,omitempty"`
}

// HandleStatus returns the GET /status handler. It reports the credential
// state without side effects: no writes and no refresh attempts, only a
// read of the stored record.
func HandleStatus(store *auth.TokenStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		resp := statusResponse{TokenPath: store.Path()}

		cred, err := store.Load()
		switch {
		case err != nil:
			resp.Status = "error"
			resp.Message = err.Error()
		case cred == nil:
			resp.Status = "not_authenticated"
		case cred.Valid():
			resp.Status = "authenticated"
		default:
			resp.Status = "expired"
		}

		if cred != nil {
			if !cred.Expiry.IsZero() {
				expiry := cred.Expiry
				resp.Expiry = &expiry
			}

			resp.HasRefreshToken = cred.CanRefresh()
		}

		if lr := store.LastRefresh(); !lr.IsZero() {
			resp.LastRefresh = &lr
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
