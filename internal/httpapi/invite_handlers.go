package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"tuna.org/internal/audit"
	"tuna.org/internal/auth"
)

type createInviteRequest struct {
	Code        string   `json:"code"`
	Permissions []string `json:"permissions"`
	Remaining   int      `json:"remaining"`
}

func (a *API) handleInvites(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleInviteCreate(w, r)
	case http.MethodGet:
		a.handleInviteList(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleInviteCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perms, err := auth.ParseStrings(req.Permissions)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	invite, err := a.auth.CreateInvite(r.Context(), actor, auth.Invite{
		Code:        req.Code,
		Permissions: perms,
		Remaining:   req.Remaining,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "invite.create", map[string]any{
		"code":      invite.Code,
		"remaining": invite.Remaining,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/invites/%s", invite.Code))
	writeJSON(w, http.StatusCreated, invite)
}

func (a *API) handleInviteList(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := auth.InviteFilter{
		Code:    strings.TrimSpace(q.Get("code")),
		Creator: strings.TrimSpace(q.Get("creator")),
	}
	var err error
	if filter.MinRemaining, err = queryInt(q.Get("min_remaining")); err != nil {
		writeError(w, r, http.StatusBadRequest, "min_remaining must be an integer")
		return
	}
	if filter.MaxRemaining, err = queryInt(q.Get("max_remaining")); err != nil {
		writeError(w, r, http.StatusBadRequest, "max_remaining must be an integer")
		return
	}
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be an integer")
		return
	}
	invites, err := a.auth.ListInvites(r.Context(), actor, filter)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

// handleInviteResource routes POST (redeem) and DELETE on a single invite.
func (a *API) handleInviteResource(w http.ResponseWriter, r *http.Request) {
	code := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/invites/"), "/")
	if code == "" || strings.Contains(code, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPost:
		a.handleInviteRedeem(w, r, code)
	case http.MethodDelete:
		a.handleInviteDelete(w, r, code)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleInviteRedeem(w http.ResponseWriter, r *http.Request, code string) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.RedeemInvite(r.Context(), code, auth.Login{Username: req.Username, Password: req.Password})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "invite.redeem", map[string]any{
		"code":     code,
		"username": user.Username,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.Username))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleInviteDelete(w http.ResponseWriter, r *http.Request, code string) {
	actor, ok := a.principal(w, r)
	if !ok {
		return
	}
	if err := a.auth.DeleteInvite(r.Context(), actor, code); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "invite.delete", map[string]any{
		"code": code,
	})
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
