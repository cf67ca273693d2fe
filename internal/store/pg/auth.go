package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tuna.org/internal/auth"
)

var _ auth.Store = (*Store)(nil)

// Initialize creates the first user with the full permission registry.
// The table lock serializes concurrent bootstrap attempts so two callers
// cannot both observe an empty store; the loser fails with ErrConflict.
func (s *Store) Initialize(ctx context.Context, username, passwordHash string) (auth.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `lock table users in share row exclusive mode`); err != nil {
		return auth.User{}, err
	}

	var occupied bool
	err = tx.QueryRowContext(ctx, `
		select exists(select 1 from users) or exists(select 1 from invites)
	`).Scan(&occupied)
	if err != nil {
		return auth.User{}, err
	}
	if occupied {
		return auth.User{}, auth.ErrConflict
	}

	perms := auth.FullSet()
	var created time.Time
	err = tx.QueryRowContext(ctx, `
		insert into users (username, hash, permissions)
		values ($1, $2, $3)
		returning created_at
	`, username, passwordHash, auth.EncodeSet(perms)).Scan(&created)
	if err != nil {
		return auth.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.User{}, err
	}
	return auth.User{Username: username, Permissions: perms, CreatedAt: created}, nil
}

func (s *Store) CredentialByUsername(ctx context.Context, username string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		select hash from users where username = $1
	`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (s *Store) InsertToken(ctx context.Context, token, username string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into tokens (id, username) values ($1, $2)
	`, token, username)
	if isUniqueViolation(err) {
		return auth.ErrConflict
	}
	return err
}

// ResolveToken joins the token to its user in one query so a token revoked
// mid-request can never resolve to a stale principal.
func (s *Store) ResolveToken(ctx context.Context, token string) (auth.User, error) {
	var (
		user     auth.User
		permsRaw string
	)
	err := s.db.QueryRowContext(ctx, `
		select u.username, u.permissions, u.created_at
		from tokens t
		join users u on u.username = t.username
		where t.id = $1
	`, token).Scan(&user.Username, &permsRaw, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	user.Permissions = auth.DecodeSet(permsRaw)
	return user, nil
}

func (s *Store) DeleteToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `delete from tokens where id = $1`, token)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUserTokens(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx, `delete from tokens where username = $1`, username)
	return err
}

// CreateInvite inserts the invite after verifying, inside the same
// transaction, that the creator currently holds InviteWrite plus every
// permission being granted.
func (s *Store) CreateInvite(ctx context.Context, creator string, invite auth.Invite) (auth.Invite, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.Invite{}, err
	}
	defer func() { _ = tx.Rollback() }()

	creatorPerms, err := permissionsOf(ctx, tx, creator, false)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return auth.Invite{}, auth.ErrForbidden
		}
		return auth.Invite{}, err
	}
	required := auth.Delegation(invite.Permissions, auth.PermInviteWrite)
	if !auth.May(creatorPerms, required) {
		return auth.Invite{}, auth.ErrForbidden
	}

	var created time.Time
	err = tx.QueryRowContext(ctx, `
		insert into invites (code, permissions, remaining, creator)
		values ($1, $2, $3, $4)
		returning created_at
	`, invite.Code, auth.EncodeSet(invite.Permissions), invite.Remaining, creator).Scan(&created)
	if isUniqueViolation(err) {
		return auth.Invite{}, auth.ErrConflict
	}
	if err != nil {
		return auth.Invite{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.Invite{}, err
	}
	invite.Creator = creator
	invite.CreatedAt = created
	return invite, nil
}

// RedeemInvite consumes one use and creates the user in a single
// transaction. The row lock on the invite means concurrent redemptions of
// a single-use invite serialize: the second one finds the row gone and
// fails with ErrNotFound.
func (s *Store) RedeemInvite(ctx context.Context, code, username, passwordHash string) (auth.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		permsRaw  string
		remaining int
	)
	err = tx.QueryRowContext(ctx, `
		select permissions, remaining from invites where code = $1 for update
	`, code).Scan(&permsRaw, &remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}

	var created time.Time
	err = tx.QueryRowContext(ctx, `
		insert into users (username, hash, permissions)
		values ($1, $2, $3)
		returning created_at
	`, username, passwordHash, permsRaw).Scan(&created)
	if isUniqueViolation(err) {
		return auth.User{}, auth.ErrConflict
	}
	if err != nil {
		return auth.User{}, err
	}

	if remaining > 1 {
		_, err = tx.ExecContext(ctx, `
			update invites set remaining = remaining - 1 where code = $1
		`, code)
	} else {
		_, err = tx.ExecContext(ctx, `delete from invites where code = $1`, code)
	}
	if err != nil {
		return auth.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.User{}, err
	}
	return auth.User{
		Username:    username,
		Permissions: auth.DecodeSet(permsRaw),
		CreatedAt:   created,
	}, nil
}

func (s *Store) DeleteInvite(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, `delete from invites where code = $1`, code)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) ListInvites(ctx context.Context, f auth.InviteFilter) ([]auth.Invite, error) {
	var (
		clauses []string
		args    []any
		idx     = 1
	)
	if f.Code != "" {
		clauses = append(clauses, fmt.Sprintf("code like $%d", idx))
		args = append(args, "%"+f.Code+"%")
		idx++
	}
	if f.Creator != "" {
		clauses = append(clauses, fmt.Sprintf("creator like $%d", idx))
		args = append(args, "%"+f.Creator+"%")
		idx++
	}
	if f.MinRemaining > 0 {
		clauses = append(clauses, fmt.Sprintf("remaining >= $%d", idx))
		args = append(args, f.MinRemaining)
		idx++
	}
	if f.MaxRemaining > 0 {
		clauses = append(clauses, fmt.Sprintf("remaining <= $%d", idx))
		args = append(args, f.MaxRemaining)
		idx++
	}

	query := `select code, permissions, remaining, creator, created_at from invites`
	if len(clauses) > 0 {
		query += " where " + strings.Join(clauses, " and ")
	}
	query += " order by created_at"
	if f.Limit > 0 {
		query += fmt.Sprintf(" limit $%d", idx)
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []auth.Invite
	for rows.Next() {
		var (
			inv      auth.Invite
			permsRaw string
		)
		if err := rows.Scan(&inv.Code, &permsRaw, &inv.Remaining, &inv.Creator, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.Permissions = auth.DecodeSet(permsRaw)
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, username string) (auth.User, error) {
	var (
		user     auth.User
		permsRaw string
	)
	err := s.db.QueryRowContext(ctx, `
		select username, permissions, created_at from users where username = $1
	`, username).Scan(&user.Username, &permsRaw, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	user.Permissions = auth.DecodeSet(permsRaw)
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, f auth.UserFilter) ([]auth.User, error) {
	var (
		clauses []string
		args    []any
		idx     = 1
	)
	if f.Username != "" {
		clauses = append(clauses, fmt.Sprintf("username like $%d", idx))
		args = append(args, "%"+f.Username+"%")
		idx++
	}
	if f.Permission != "" {
		clauses = append(clauses, fmt.Sprintf("permissions like $%d", idx))
		args = append(args, "%"+string(f.Permission)+"%")
		idx++
	}

	query := `select username, permissions, created_at from users`
	if len(clauses) > 0 {
		query += " where " + strings.Join(clauses, " and ")
	}
	query += " order by username"
	if f.Limit > 0 {
		query += fmt.Sprintf(" limit $%d", idx)
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		var (
			user     auth.User
			permsRaw string
		)
		if err := rows.Scan(&user.Username, &permsRaw, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.Permissions = auth.DecodeSet(permsRaw)
		users = append(users, user)
	}
	return users, rows.Err()
}

// GrantPermissions union-merges perms into the target's set. The target
// row is locked and the actor's set is re-read under the same transaction,
// so the gate decision and the write commit together.
func (s *Store) GrantPermissions(ctx context.Context, actor, username string, perms auth.Set) (auth.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := permissionsOf(ctx, tx, username, true)
	if err != nil {
		return auth.User{}, err
	}
	actorPerms, err := permissionsOf(ctx, tx, actor, false)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return auth.User{}, auth.ErrForbidden
		}
		return auth.User{}, err
	}

	required := auth.Delegation(perms, auth.PermPermissionAdd)
	if !auth.May(actorPerms, required) {
		return auth.User{}, auth.ErrForbidden
	}

	merged := current.Union(perms)
	user, err := updatePermissions(ctx, tx, username, merged)
	if err != nil {
		return auth.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.User{}, err
	}
	return user, nil
}

// RevokePermissions removes perms from the target's set. The actor must
// dominate the target's entire current set plus PermissionDelete, so a
// less privileged actor can never strip a more privileged principal.
// Revoking a permission the target does not hold is a no-op.
func (s *Store) RevokePermissions(ctx context.Context, actor, username string, perms auth.Set) (auth.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := permissionsOf(ctx, tx, username, true)
	if err != nil {
		return auth.User{}, err
	}
	actorPerms, err := permissionsOf(ctx, tx, actor, false)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return auth.User{}, auth.ErrForbidden
		}
		return auth.User{}, err
	}

	required := auth.Delegation(current, auth.PermPermissionDelete)
	if !auth.May(actorPerms, required) {
		return auth.User{}, auth.ErrForbidden
	}

	reduced := current.Without(perms)
	user, err := updatePermissions(ctx, tx, username, reduced)
	if err != nil {
		return auth.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.User{}, err
	}
	return user, nil
}

// DeleteUser removes the principal; the tokens table cascades. Deleting
// another user requires dominance over the target's full current set plus
// UserDelete; self-deletion is unconditional.
func (s *Store) DeleteUser(ctx context.Context, actor, username string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if actor != username {
		targetPerms, err := permissionsOf(ctx, tx, username, true)
		if err != nil {
			return err
		}
		actorPerms, err := permissionsOf(ctx, tx, actor, false)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				return auth.ErrForbidden
			}
			return err
		}
		required := auth.Delegation(targetPerms, auth.PermUserDelete)
		if !auth.May(actorPerms, required) {
			return auth.ErrForbidden
		}
	}

	res, err := tx.ExecContext(ctx, `delete from users where username = $1`, username)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return tx.Commit()
}

// permissionsOf reads a user's permission column inside tx, optionally
// locking the row for a pending write.
func permissionsOf(ctx context.Context, tx *sql.Tx, username string, forUpdate bool) (auth.Set, error) {
	query := `select permissions from users where username = $1`
	if forUpdate {
		query += ` for update`
	}
	var raw string
	err := tx.QueryRowContext(ctx, query, username).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return auth.DecodeSet(raw), nil
}

func updatePermissions(ctx context.Context, tx *sql.Tx, username string, perms auth.Set) (auth.User, error) {
	var created time.Time
	err := tx.QueryRowContext(ctx, `
		update users set permissions = $1 where username = $2
		returning created_at
	`, auth.EncodeSet(perms), username).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return auth.User{Username: username, Permissions: perms, CreatedAt: created}, nil
}
