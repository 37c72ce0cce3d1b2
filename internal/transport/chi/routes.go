package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler mounts the API on r and returns it.
func (s *Server) Handler(r chi.Router) http.Handler {
	r.Post("/search/text", s.SearchText)
	r.Post("/search/image", s.SearchImage)
	r.Post("/search/upload", s.UploadImage)
	r.Post("/search/import/{workspace_id}", s.importWorkspace)
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeBadRequest, "method not allowed")
	})
	return r
}

// importWorkspace binds the workspace_id path parameter.
func (s *Server) importWorkspace(w http.ResponseWriter, r *http.Request) {
	var workspaceID string
	err := runtime.BindStyledParameterWithOptions("simple", "workspace_id", chi.URLParam(r, "workspace_id"),
		&workspaceID, runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest,
			"Invalid format for parameter workspace_id: "+err.Error())
		return
	}
	s.ImportWorkspace(w, r, workspaceID)
}
