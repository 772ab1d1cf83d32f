package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/proagenda/calendar-engine/internal/application/services"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
)

// CredentialHandler manages provider credential connections. Tokens are
// write-only through this surface; responses never echo them.
type CredentialHandler struct {
	credentials *services.CredentialService
}

// NewCredentialHandler creates a new credential handler.
func NewCredentialHandler(credentials *services.CredentialService) *CredentialHandler {
	return &CredentialHandler{credentials: credentials}
}

type connectRequest struct {
	Provider     entities.EventSource `json:"provider"`
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
}

type credentialView struct {
	Provider entities.EventSource     `json:"provider"`
	State    entities.CredentialState `json:"state"`
	LastSync *time.Time               `json:"last_sync,omitempty"`
}

// Connect handles POST /api/calendar/{ownerID}/credentials
func (h *CredentialHandler) Connect(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")
	if ownerID == "" {
		respondWithError(w, http.StatusBadRequest, "owner ID is required")
		return
	}

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.Provider == "" || req.AccessToken == "" {
		respondWithError(w, http.StatusBadRequest, "provider and access_token are required")
		return
	}

	cred, err := h.credentials.Connect(r.Context(), ownerID, req.Provider, req.AccessToken, req.RefreshToken)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, viewOf(cred))
}

// Disconnect handles DELETE /api/calendar/{ownerID}/credentials/{provider}
func (h *CredentialHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")
	provider := r.PathValue("provider")
	if ownerID == "" || provider == "" {
		respondWithError(w, http.StatusBadRequest, "owner ID and provider are required")
		return
	}

	if err := h.credentials.Disconnect(r.Context(), ownerID, entities.EventSource(provider)); err != nil {
		respondWithAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListCredentials handles GET /api/calendar/{ownerID}/credentials
func (h *CredentialHandler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")
	if ownerID == "" {
		respondWithError(w, http.StatusBadRequest, "owner ID is required")
		return
	}

	creds, err := h.credentials.ListConnected(r.Context(), ownerID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	views := make([]credentialView, 0, len(creds))
	for _, cred := range creds {
		views = append(views, viewOf(cred))
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"credentials": views,
	})
}

func viewOf(cred *entities.ProviderCredential) credentialView {
	view := credentialView{
		Provider: cred.Provider,
		State:    cred.State,
	}
	if !cred.LastSyncAt.IsZero() {
		sync := cred.LastSyncAt
		view.LastSync = &sync
	}
	return view
}
