package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tuna.org/internal/ids"
)

const (
	maxListLimit     = 500
	defaultListLimit = 100
)

// Service provides the identity, delegation and session operations exposed
// to the HTTP layer. Direct checks (fixed required sets) are decided here
// against the resolved principal; delegation checks are decided by the
// store inside the mutating transaction.
type Service struct {
	store    Store
	newToken func() string
	newCode  func() string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenSource overrides bearer token generation (useful for tests).
func WithTokenSource(fn func() string) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.newToken = fn
		}
		return nil
	}
}

// WithCodeSource overrides generated invite codes (useful for tests).
func WithCodeSource(fn func() string) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.newCode = fn
		}
		return nil
	}
}

// NewService constructs a Service backed by the given store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	svc := &Service{
		store:    store,
		newToken: uuid.NewString,
		newCode:  ids.New,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Initialize creates the very first user, holding every permission in the
// registry. It succeeds at most once system-wide.
func (s *Service) Initialize(ctx context.Context, login Login) (User, error) {
	username, err := normalizeUsername(login.Username)
	if err != nil {
		return User{}, err
	}
	hash, err := hashCredential(login.Password)
	if err != nil {
		return User{}, err
	}
	return s.store.Initialize(ctx, username, hash)
}

// Login verifies credentials and issues a fresh opaque bearer token. An
// unknown username and a wrong password are indistinguishable to the
// caller: both surface as ErrForbidden so usernames cannot be enumerated.
func (s *Service) Login(ctx context.Context, login Login) (string, User, error) {
	username := strings.TrimSpace(login.Username)
	if username == "" || login.Password == "" {
		return "", User{}, ErrForbidden
	}
	hash, err := s.store.CredentialByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", User{}, ErrForbidden
		}
		return "", User{}, err
	}
	if err := VerifyPassword(hash, login.Password); err != nil {
		return "", User{}, ErrForbidden
	}
	// The token row is written last: a login that fails for any reason
	// leaves no live session behind.
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return "", User{}, err
	}
	token := s.newToken()
	if err := s.store.InsertToken(ctx, token, username); err != nil {
		return "", User{}, err
	}
	return token, user, nil
}

// Resolve is the per-request authentication step: it maps a bearer token
// to its principal in a single read-consistent lookup. Tokens carry no
// expiry; they are valid until revoked.
func (s *Service) Resolve(ctx context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	user, err := s.store.ResolveToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrUnauthenticated
		}
		return User{}, err
	}
	return user, nil
}

// RevokeToken destroys a single session token. Revoking a token that no
// longer exists is a no-op success.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	err := s.store.DeleteToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// RevokeUserTokens destroys every session of the named user. A user may
// always revoke their own sessions; revoking another's requires
// TokenDelete.
func (s *Service) RevokeUserTokens(ctx context.Context, actor User, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if username != actor.Username && !May(actor.Permissions, NewSet(PermTokenDelete)) {
		return ErrForbidden
	}
	return s.store.DeleteUserTokens(ctx, username)
}

// CreateInvite records a consumable invite. The delegation check (creator
// must hold InviteWrite plus every granted permission) runs inside the
// store transaction against the creator's current row.
func (s *Service) CreateInvite(ctx context.Context, actor User, invite Invite) (Invite, error) {
	invite.Code = strings.TrimSpace(invite.Code)
	if invite.Code == "" {
		invite.Code = s.newCode()
	}
	if invite.Remaining < 1 {
		return Invite{}, fmt.Errorf("%w: remaining must be at least 1", ErrInvalidInput)
	}
	if invite.Permissions == nil {
		invite.Permissions = Set{}
	}
	invite.Creator = actor.Username
	return s.store.CreateInvite(ctx, actor.Username, invite)
}

// RedeemInvite consumes one use of an invite and creates the new user with
// the invite's permission snapshot. Unauthenticated by design: the code is
// the credential.
func (s *Service) RedeemInvite(ctx context.Context, code string, login Login) (User, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return User{}, fmt.Errorf("%w: invite code is required", ErrInvalidInput)
	}
	username, err := normalizeUsername(login.Username)
	if err != nil {
		return User{}, err
	}
	hash, err := hashCredential(login.Password)
	if err != nil {
		return User{}, err
	}
	return s.store.RedeemInvite(ctx, code, username, hash)
}

// DeleteInvite removes an invite unconditionally. Deleting an absent code
// is ErrNotFound.
func (s *Service) DeleteInvite(ctx context.Context, actor User, code string) error {
	if !May(actor.Permissions, NewSet(PermInviteDelete)) {
		return ErrForbidden
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%w: invite code is required", ErrInvalidInput)
	}
	return s.store.DeleteInvite(ctx, code)
}

// ListInvites returns invites matching the filter; requires InviteRead.
func (s *Service) ListInvites(ctx context.Context, actor User, f InviteFilter) ([]Invite, error) {
	if !May(actor.Permissions, NewSet(PermInviteRead)) {
		return nil, ErrForbidden
	}
	f.Limit = clampLimit(f.Limit)
	return s.store.ListInvites(ctx, f)
}

// ListUsers returns users matching the filter; requires UserRead.
func (s *Service) ListUsers(ctx context.Context, actor User, f UserFilter) ([]User, error) {
	if !May(actor.Permissions, NewSet(PermUserRead)) {
		return nil, ErrForbidden
	}
	f.Limit = clampLimit(f.Limit)
	return s.store.ListUsers(ctx, f)
}

// Grant expands the target's permission set. The delegation check
// (perms ∪ {PermissionAdd} against the actor's current set) runs inside
// the store transaction.
func (s *Service) Grant(ctx context.Context, actor User, username string, perms Set) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(perms) == 0 {
		return User{}, fmt.Errorf("%w: permissions are required", ErrInvalidInput)
	}
	return s.store.GrantPermissions(ctx, actor.Username, username, perms)
}

// Revoke shrinks the target's permission set. The actor must dominate the
// target's entire current set plus PermissionDelete; revoking a permission
// the target does not hold is a no-op.
func (s *Service) Revoke(ctx context.Context, actor User, username string, perms Set) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(perms) == 0 {
		return User{}, fmt.Errorf("%w: permissions are required", ErrInvalidInput)
	}
	return s.store.RevokePermissions(ctx, actor.Username, username, perms)
}

// DeleteUser removes a principal and, via cascade, its sessions.
// Self-deletion never requires a delegation check.
func (s *Service) DeleteUser(ctx context.Context, actor User, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return s.store.DeleteUser(ctx, actor.Username, username)
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return username, nil
}

func hashCredential(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
