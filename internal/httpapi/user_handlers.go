package httpapi

import (
	"net/http"
	"strings"

	"tuna.org/internal/audit"
	"tuna.org/internal/auth"
)

type permissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := a.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := auth.UserFilter{
		Username: strings.TrimSpace(q.Get("username")),
	}
	if raw := strings.TrimSpace(q.Get("permission")); raw != "" {
		perm, err := auth.Parse(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		filter.Permission = perm
	}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be an integer")
		return
	}
	users, err := a.auth.ListUsers(r.Context(), actor, filter)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// handleUserResource routes /v1/users/{username} and
// /v1/users/{username}/permissions.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleUserDelete(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleUserPermissions(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserDelete(w http.ResponseWriter, r *http.Request, username string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := a.principal(w, r)
	if !ok {
		return
	}
	if err := a.auth.DeleteUser(r.Context(), actor, username); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.delete", map[string]any{
		"username": username,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request, username string) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
		return
	}
	actor, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req permissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perms, err := auth.ParseStrings(req.Permissions)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var (
		user  auth.User
		event string
	)
	if r.Method == http.MethodPost {
		user, err = a.auth.Grant(r.Context(), actor, username, perms)
		event = "user.permissions.grant"
	} else {
		user, err = a.auth.Revoke(r.Context(), actor, username, perms)
		event = "user.permissions.revoke"
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"username":    username,
		"permissions": perms.Strings(),
	})
	writeJSON(w, http.StatusOK, user)
}
