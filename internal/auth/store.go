package auth

import "context"

// Store describes persistence operations required by the identity core.
//
// Every mutation that spans a check and a write (bootstrap, invite
// creation and redemption, grant, revoke, user deletion) executes as a
// single transaction inside the implementation, and the delegation
// predicate is evaluated against permission rows read under that same
// transaction. The service layer never sees a half-applied mutation.
type Store interface {
	// Initialize creates the first user with the full permission registry.
	// It fails with ErrConflict unless the user and invite tables are both
	// empty; concurrent callers serialize so at most one succeeds.
	Initialize(ctx context.Context, username, passwordHash string) (User, error)

	// CredentialByUsername returns the stored password digest.
	CredentialByUsername(ctx context.Context, username string) (string, error)

	InsertToken(ctx context.Context, token, username string) error
	// ResolveToken joins the token to its user and permission set in one
	// read-consistent query.
	ResolveToken(ctx context.Context, token string) (User, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteUserTokens(ctx context.Context, username string) error

	// CreateInvite checks invite.Permissions ∪ {InviteWrite} against the
	// creator's current set inside the inserting transaction.
	CreateInvite(ctx context.Context, creator string, invite Invite) (Invite, error)
	// RedeemInvite consumes one use and creates the new user atomically:
	// of N concurrent redemptions of a single-use invite exactly one
	// succeeds, the rest observe ErrNotFound.
	RedeemInvite(ctx context.Context, code, username, passwordHash string) (User, error)
	DeleteInvite(ctx context.Context, code string) error
	ListInvites(ctx context.Context, f InviteFilter) ([]Invite, error)

	GetUser(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]User, error)
	// GrantPermissions requires perms ∪ {PermissionAdd} ⊆ actor's current
	// set, re-read inside the transaction; the merge is idempotent.
	GrantPermissions(ctx context.Context, actor, username string, perms Set) (User, error)
	// RevokePermissions requires the target's entire current set plus
	// PermissionDelete to be dominated by the actor's current set.
	RevokePermissions(ctx context.Context, actor, username string, perms Set) (User, error)
	// DeleteUser is unconditional for self-deletion; deleting another user
	// requires the target's current set plus UserDelete to be dominated.
	DeleteUser(ctx context.Context, actor, username string) error
}
