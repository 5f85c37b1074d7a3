package handlers

import (
	"encoding/json"
	"net/http"

	"actorset/internal/balancer"
	"actorset/internal/infra"
	"actorset/internal/manifest"
	"actorset/internal/plan"
)

// App bundles the dependencies the HTTP handlers need.
type App struct {
	Catalog      *manifest.Catalog
	Manifests    *manifest.Store
	Orchestrator *balancer.Orchestrator
	Targets      plan.Targets
	ProgressPath string
	// ExecuteEnabled gates the balance endpoint; it is false when the server
	// was started without generation credentials.
	ExecuteEnabled bool
	AllowedOrigins []string
	Logger         infra.Logger
}

// NewApp builds the handler container.
func NewApp(catalog *manifest.Catalog, manifests *manifest.Store, orch *balancer.Orchestrator, targets plan.Targets, progressPath string, executeEnabled bool, allowedOrigins []string, logger infra.Logger) *App {
	return &App{
		Catalog:        catalog,
		Manifests:      manifests,
		Orchestrator:   orch,
		Targets:        targets,
		ProgressPath:   progressPath,
		ExecuteEnabled: executeEnabled,
		AllowedOrigins: allowedOrigins,
		Logger:         logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) jsonError(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}
