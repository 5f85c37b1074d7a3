package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"actorset/internal/balancer"
	"actorset/internal/composite"
	"actorset/internal/domain"
	"actorset/internal/manifest"
	"actorset/internal/plan"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	dir := t.TempDir()
	actorsPath := filepath.Join(dir, "actors.json")
	actors := []domain.Actor{{ID: "a1", Name: "Ada"}}
	data, err := json.Marshal(actors)
	if err != nil {
		t.Fatalf("marshal actors: %v", err)
	}
	if err := os.WriteFile(actorsPath, data, 0o644); err != nil {
		t.Fatalf("write actors file: %v", err)
	}

	manifests, err := manifest.NewStore(filepath.Join(dir, "manifests"))
	if err != nil {
		t.Fatalf("manifest store: %v", err)
	}

	logger := zerolog.New(io.Discard)
	orch := balancer.NewOrchestrator(balancer.OrchestratorOptions{
		Manifests: manifests,
		Builder:   composite.NewBuilder(composite.Options{}),
		Targets:   plan.DefaultTargets(),
		Logger:    &logger,
	})

	catalog := manifest.NewCatalog(actorsPath)
	return NewApp(catalog, manifests, orch, plan.DefaultTargets(), filepath.Join(dir, "progress.json"), false, nil, logger)
}

// withID plants a chi route context so handlers can read the {id} param
// without going through the router.
func withID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestGetManifestMissingReturnsEmptyManifest(t *testing.T) {
	app := newTestApp(t)

	req := withID(httptest.NewRequest("GET", "/v1/actors/a1/manifest", nil), "a1")
	rr := httptest.NewRecorder()

	app.GetManifest(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d, want 200", rr.Code)
	}
	var m domain.Manifest
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if m.ActorID != "a1" {
		t.Fatalf("actor_id = %q, want a1", m.ActorID)
	}
	if len(m.Images) != 0 {
		t.Fatalf("expected empty image list, got %d entries", len(m.Images))
	}
}

func TestGetManifestUnknownActor(t *testing.T) {
	app := newTestApp(t)

	req := withID(httptest.NewRequest("GET", "/v1/actors/ghost/manifest", nil), "ghost")
	rr := httptest.NewRecorder()

	app.GetManifest(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status code: got %d, want 404", rr.Code)
	}
}
