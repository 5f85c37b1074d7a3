package handlers

import (
	"net/http"

	"actorset/internal/progress"
)

// Progress reports the current batch progress file.
func (a *App) Progress(w http.ResponseWriter, r *http.Request) {
	tracker, err := progress.Open(a.ProgressPath)
	if err != nil {
		a.Logger.Error().Err(err).Msg("api: open progress failed")
		a.jsonError(w, http.StatusInternalServerError, "failed to read progress")
		return
	}
	a.json(w, http.StatusOK, tracker.State())
}
