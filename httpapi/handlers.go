package httpapi

import (
	"net/http"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

// readyz reports 503 until Redis and the stores answer.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.writeMappedError(w, r, "readyz", err)
		return
	}
	writeMessage(w, http.StatusOK, "ready")
}
