package api

import (
	"context"
	"net/http"
)

// ReloadDependencies defines the registry operations used by the reload route.
type ReloadDependencies interface {
	Reload(ctx context.Context) (int, error)
}

// RegistryHandler handles registry maintenance requests.
type RegistryHandler struct {
	deps ReloadDependencies
}

type reloadResponse struct {
	Reloaded bool   `json:"reloaded"`
	Known    int    `json:"known"`
	Message  string `json:"message,omitempty"`
}

// NewRegistryHandler creates a new registry handler.
func NewRegistryHandler(deps ReloadDependencies) *RegistryHandler {
	return &RegistryHandler{deps: deps}
}

// HandleReload handles POST /reload. A failed reload answers 503 and keeps
// serving the previous registry.
func (h *RegistryHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	known, err := h.deps.Reload(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, reloadResponse{Known: known, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Reloaded: true, Known: known})
}
