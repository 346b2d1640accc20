package documents

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/rhinocodelab/idms-v3/pkg/handlers"
	"github.com/rhinocodelab/idms-v3/pkg/routes"
)

// Handler serves stored documents.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "documents"),
	}
}

// Routes returns the route group definition for document endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/documents",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{key...}", Handler: h.Download},
		},
	}
}

// Download streams the document stored at the key path parameter.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidKey)
		return
	}

	rc, err := h.sys.Open(r.Context(), key)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("document stream interrupted", "key", key, "error", err)
	}
}
