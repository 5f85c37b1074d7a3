package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"actorset/internal/domain"
	"actorset/pkg/zip"
)

// ListActors returns the actor catalog.
func (a *App) ListActors(w http.ResponseWriter, r *http.Request) {
	actors, err := a.Catalog.Load()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.json(w, http.StatusOK, []domain.Actor{})
			return
		}
		a.Logger.Error().Err(err).Msg("api: load actor catalog failed")
		a.jsonError(w, http.StatusInternalServerError, "failed to load actors")
		return
	}
	a.json(w, http.StatusOK, actors)
}

// GetManifest returns one actor's image manifest. A missing manifest is an
// empty one, not an error: the actor simply has no training images yet.
func (a *App) GetManifest(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "id")
	if _, err := a.Catalog.Find(actorID); err != nil {
		a.jsonError(w, http.StatusNotFound, fmt.Sprintf("actor %s not found", actorID))
		return
	}
	m, err := a.Manifests.Load(actorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.json(w, http.StatusOK, domain.NewManifest(actorID))
			return
		}
		a.Logger.Error().Err(err).Str("actor", actorID).Msg("api: load manifest failed")
		a.jsonError(w, http.StatusInternalServerError, "failed to load manifest")
		return
	}
	a.json(w, http.StatusOK, m)
}

// ExportActor streams an actor's locally stored training images as a zip.
func (a *App) ExportActor(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "id")
	m, err := a.Manifests.Load(actorID)
	if err != nil {
		a.jsonError(w, http.StatusNotFound, fmt.Sprintf("no manifest for actor %s", actorID))
		return
	}
	assets := make([]zip.Asset, 0, len(m.Images))
	for _, img := range m.Images {
		if img.LocalPath == "" {
			continue
		}
		data, readErr := os.ReadFile(img.LocalPath)
		if readErr != nil {
			a.Logger.Warn().Err(readErr).Str("actor", actorID).Str("file", img.Filename).Msg("api: skipping unreadable image in export")
			continue
		}
		assets = append(assets, zip.Asset{Filename: img.Filename, MIME: "image/jpeg", Data: data})
	}
	if len(assets) == 0 {
		a.jsonError(w, http.StatusNotFound, "no locally stored images to export")
		return
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.Logger.Error().Err(err).Str("actor", actorID).Msg("api: archive failed")
		a.jsonError(w, http.StatusInternalServerError, "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", actorID+"_dataset.zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
