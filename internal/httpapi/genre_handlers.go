package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"tuna.org/internal/audit"
)

type createGenreRequest struct {
	Name string `json:"name"`
}

func (a *API) handleGenres(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createGenreRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		genre, err := a.catalog.CreateGenre(r.Context(), actor, req.Name)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "genre.create", map[string]any{
			"id":   genre.ID,
			"name": genre.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/genres/%s", genre.ID))
		writeJSON(w, http.StatusCreated, genre)
	case http.MethodGet:
		q := r.URL.Query()
		limit, err := queryInt(q.Get("limit"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "limit must be an integer")
			return
		}
		genres, err := a.catalog.ListGenres(r.Context(), actor, q.Get("name"), limit)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"genres": genres})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleGenreResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/genres/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := a.principal(w, r)
	if !ok {
		return
	}
	if err := a.catalog.DeleteGenre(r.Context(), actor, id); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "genre.delete", map[string]any{
		"id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}
