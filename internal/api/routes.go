package api

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/vigil/internal/config"
	"github.com/JaimeStill/vigil/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	logger *slog.Logger,
) {
	groups := []routes.Group{
		domain.Orchestrator.Handler(cfg.API.MaxUploadSizeBytes()).Routes(),
		domain.Reports.Handler().Routes(),
	}

	routes.Register(mux, groups...)
	logger.Debug("api routes registered", "base_path", cfg.API.BasePath, "routes", routes.Patterns(groups...))
}
