package httpapi

import (
	"context"
	"strings"
	"sync"
	"time"

	"tuna.org/internal/auth"
	"tuna.org/internal/catalog"
)

// memStore is an in-memory auth.Store with the same transactional
// semantics as the Postgres implementation, used to exercise the HTTP
// layer end to end.
type memStore struct {
	mu      sync.Mutex
	users   map[string]*memUser
	tokens  map[string]string
	invites map[string]*auth.Invite
}

type memUser struct {
	hash    string
	perms   auth.Set
	created time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]*memUser),
		tokens:  make(map[string]string),
		invites: make(map[string]*auth.Invite),
	}
}

func (m *memStore) Initialize(_ context.Context, username, hash string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.users) > 0 || len(m.invites) > 0 {
		return auth.User{}, auth.ErrConflict
	}
	u := &memUser{hash: hash, perms: auth.FullSet(), created: time.Now().UTC()}
	m.users[username] = u
	return auth.User{Username: username, Permissions: u.perms.Clone(), CreatedAt: u.created}, nil
}

func (m *memStore) CredentialByUsername(_ context.Context, username string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return "", auth.ErrNotFound
	}
	return u.hash, nil
}

func (m *memStore) InsertToken(_ context.Context, token, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token]; ok {
		return auth.ErrConflict
	}
	m.tokens[token] = username
	return nil
}

func (m *memStore) ResolveToken(_ context.Context, token string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	username, ok := m.tokens[token]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	u, ok := m.users[username]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return auth.User{Username: username, Permissions: u.perms.Clone(), CreatedAt: u.created}, nil
}

func (m *memStore) DeleteToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token]; !ok {
		return auth.ErrNotFound
	}
	delete(m.tokens, token)
	return nil
}

func (m *memStore) DeleteUserTokens(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, owner := range m.tokens {
		if owner == username {
			delete(m.tokens, token)
		}
	}
	return nil
}

func (m *memStore) CreateInvite(_ context.Context, creator string, invite auth.Invite) (auth.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[creator]
	if !ok {
		return auth.Invite{}, auth.ErrForbidden
	}
	required := auth.Delegation(invite.Permissions, auth.PermInviteWrite)
	if !auth.May(u.perms, required) {
		return auth.Invite{}, auth.ErrForbidden
	}
	if _, ok := m.invites[invite.Code]; ok {
		return auth.Invite{}, auth.ErrConflict
	}
	invite.Creator = creator
	invite.CreatedAt = time.Now().UTC()
	stored := invite
	stored.Permissions = invite.Permissions.Clone()
	m.invites[invite.Code] = &stored
	return invite, nil
}

func (m *memStore) RedeemInvite(_ context.Context, code, username, hash string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[code]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	if _, ok := m.users[username]; ok {
		return auth.User{}, auth.ErrConflict
	}
	u := &memUser{hash: hash, perms: inv.Permissions.Clone(), created: time.Now().UTC()}
	m.users[username] = u
	if inv.Remaining > 1 {
		inv.Remaining--
	} else {
		delete(m.invites, code)
	}
	return auth.User{Username: username, Permissions: u.perms.Clone(), CreatedAt: u.created}, nil
}

func (m *memStore) DeleteInvite(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invites[code]; !ok {
		return auth.ErrNotFound
	}
	delete(m.invites, code)
	return nil
}

func (m *memStore) ListInvites(_ context.Context, f auth.InviteFilter) ([]auth.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.Invite
	for _, inv := range m.invites {
		if f.Code != "" && !strings.Contains(inv.Code, f.Code) {
			continue
		}
		if f.Creator != "" && !strings.Contains(inv.Creator, f.Creator) {
			continue
		}
		if f.MinRemaining > 0 && inv.Remaining < f.MinRemaining {
			continue
		}
		if f.MaxRemaining > 0 && inv.Remaining > f.MaxRemaining {
			continue
		}
		copied := *inv
		copied.Permissions = inv.Permissions.Clone()
		out = append(out, copied)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) GetUser(_ context.Context, username string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return auth.User{Username: username, Permissions: u.perms.Clone(), CreatedAt: u.created}, nil
}

func (m *memStore) ListUsers(_ context.Context, f auth.UserFilter) ([]auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.User
	for username, u := range m.users {
		if f.Username != "" && !strings.Contains(username, f.Username) {
			continue
		}
		if f.Permission != "" && !u.perms.Has(f.Permission) {
			continue
		}
		out = append(out, auth.User{Username: username, Permissions: u.perms.Clone(), CreatedAt: u.created})
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) GrantPermissions(_ context.Context, actor, username string, perms auth.Set) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.users[username]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	actorUser, ok := m.users[actor]
	if !ok {
		return auth.User{}, auth.ErrForbidden
	}
	required := auth.Delegation(perms, auth.PermPermissionAdd)
	if !auth.May(actorUser.perms, required) {
		return auth.User{}, auth.ErrForbidden
	}
	target.perms = target.perms.Union(perms)
	return auth.User{Username: username, Permissions: target.perms.Clone(), CreatedAt: target.created}, nil
}

func (m *memStore) RevokePermissions(_ context.Context, actor, username string, perms auth.Set) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.users[username]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	actorUser, ok := m.users[actor]
	if !ok {
		return auth.User{}, auth.ErrForbidden
	}
	required := auth.Delegation(target.perms, auth.PermPermissionDelete)
	if !auth.May(actorUser.perms, required) {
		return auth.User{}, auth.ErrForbidden
	}
	target.perms = target.perms.Without(perms)
	return auth.User{Username: username, Permissions: target.perms.Clone(), CreatedAt: target.created}, nil
}

func (m *memStore) DeleteUser(_ context.Context, actor, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.users[username]
	if !ok {
		return auth.ErrNotFound
	}
	if actor != username {
		actorUser, ok := m.users[actor]
		if !ok {
			return auth.ErrForbidden
		}
		required := auth.Delegation(target.perms, auth.PermUserDelete)
		if !auth.May(actorUser.perms, required) {
			return auth.ErrForbidden
		}
	}
	delete(m.users, username)
	for token, owner := range m.tokens {
		if owner == username {
			delete(m.tokens, token)
		}
	}
	return nil
}

// memCatalog is the in-memory catalog.Store counterpart.
type memCatalog struct {
	mu     sync.Mutex
	genres map[string]catalog.Genre
}

func newMemCatalog() *memCatalog {
	return &memCatalog{genres: make(map[string]catalog.Genre)}
}

func (m *memCatalog) CreateGenre(_ context.Context, id, name string) (catalog.Genre, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.genres {
		if g.Name == name {
			return catalog.Genre{}, auth.ErrConflict
		}
	}
	g := catalog.Genre{ID: id, Name: name, CreatedAt: time.Now().UTC()}
	m.genres[id] = g
	return g, nil
}

func (m *memCatalog) ListGenres(_ context.Context, name string, limit int) ([]catalog.Genre, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Genre
	for _, g := range m.genres {
		if name != "" && !strings.Contains(g.Name, name) {
			continue
		}
		out = append(out, g)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memCatalog) DeleteGenre(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.genres[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.genres, id)
	return nil
}
