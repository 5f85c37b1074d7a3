package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"actorset/internal/domain"
	"actorset/internal/plan"
)

// Evaluate runs the vision evaluation for one actor and returns the resulting
// plan without executing it.
func (a *App) Evaluate(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "id")
	actor, err := a.Catalog.Find(actorID)
	if err != nil {
		a.jsonError(w, http.StatusNotFound, fmt.Sprintf("actor %s not found", actorID))
		return
	}
	outcome, err := a.Orchestrator.ProcessActor(r.Context(), actor, false)
	if err != nil {
		if errors.Is(err, domain.ErrEvaluation) {
			a.jsonError(w, http.StatusBadGateway, err.Error())
			return
		}
		a.Logger.Error().Err(err).Str("actor", actorID).Msg("api: evaluation failed")
		a.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.json(w, http.StatusOK, outcome)
}

// Plan computes an action plan from the categories and scores already stored
// on the manifest, without a fresh vision call.
func (a *App) Plan(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "id")
	if _, err := a.Catalog.Find(actorID); err != nil {
		a.jsonError(w, http.StatusNotFound, fmt.Sprintf("actor %s not found", actorID))
		return
	}
	m, err := a.Manifests.Load(actorID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		a.Logger.Error().Err(err).Str("actor", actorID).Msg("api: load manifest failed")
		a.jsonError(w, http.StatusInternalServerError, "failed to load manifest")
		return
	}
	scores := make([]plan.ImageScore, 0, len(m.Images))
	for i, entry := range m.Images {
		if !entry.Evaluated() {
			continue
		}
		scores = append(scores, plan.ImageScore{
			Ordinal:      i,
			Filename:     entry.Filename,
			Category:     entry.Category,
			QualityScore: entry.QualityScore,
		})
	}
	a.json(w, http.StatusOK, plan.Compute(scores, a.Targets))
}

// Balance runs the full evaluate -> plan -> execute pipeline for one actor.
func (a *App) Balance(w http.ResponseWriter, r *http.Request) {
	if !a.ExecuteEnabled {
		a.jsonError(w, http.StatusServiceUnavailable, "execution disabled: generation credentials not configured")
		return
	}
	actorID := chi.URLParam(r, "id")
	actor, err := a.Catalog.Find(actorID)
	if err != nil {
		a.jsonError(w, http.StatusNotFound, fmt.Sprintf("actor %s not found", actorID))
		return
	}
	outcome, err := a.Orchestrator.ProcessActor(r.Context(), actor, true)
	if err != nil {
		a.Logger.Error().Err(err).Str("actor", actorID).Msg("api: balance failed")
		// The outcome still carries whatever partial work happened.
		a.json(w, http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"outcome": outcome,
		})
		return
	}
	a.json(w, http.StatusOK, outcome)
}
