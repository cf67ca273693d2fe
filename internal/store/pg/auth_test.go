package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"tuna.org/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInitializeRefusesOccupiedStore(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("lock table users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select exists").WillReturnRows(sqlmock.NewRows([]string{"occupied"}).AddRow(true))
	mock.ExpectRollback()

	if _, err := store.Initialize(context.Background(), "root", "hash"); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectMet(t, mock)
}

func TestInitializeCreatesFirstUserWithFullRegistry(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("lock table users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select exists").WillReturnRows(sqlmock.NewRows([]string{"occupied"}).AddRow(false))
	mock.ExpectQuery("insert into users").
		WithArgs("root", "hash", auth.EncodeSet(auth.FullSet())).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectCommit()

	user, err := store.Initialize(context.Background(), "root", "hash")
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(user.Permissions) != len(auth.All()) {
		t.Fatalf("expected full registry, got %v", user.Permissions.Strings())
	}
	if !user.CreatedAt.Equal(created) {
		t.Fatalf("unexpected created_at: %v", user.CreatedAt)
	}
	expectMet(t, mock)
}

func TestResolveTokenJoinsUser(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectQuery("select u.username, u.permissions, u.created_at").
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"username", "permissions", "created_at"}).
			AddRow("alice", "DocsRead,GenreRead", created))

	user, err := store.ResolveToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected username: %q", user.Username)
	}
	if !user.Permissions.Has(auth.PermDocsRead) || !user.Permissions.Has(auth.PermGenreRead) {
		t.Fatalf("unexpected permissions: %v", user.Permissions.Strings())
	}
	expectMet(t, mock)
}

func TestDeleteTokenMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from tokens").
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteToken(context.Background(), "gone"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestInsertTokenDuplicateMapsToConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into tokens").
		WithArgs("tok-1", "alice").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	if err := store.InsertToken(context.Background(), "tok-1", "alice"); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectMet(t, mock)
}

func TestCreateInviteRequiresDelegation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select permissions from users").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow("InviteWrite"))
	mock.ExpectRollback()

	invite := auth.Invite{Code: "CODE", Permissions: auth.NewSet(auth.PermGenreWrite), Remaining: 1}
	if _, err := store.CreateInvite(context.Background(), "alice", invite); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	expectMet(t, mock)
}

func TestCreateInviteDuplicateCode(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select permissions from users").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow("InviteWrite,GenreWrite"))
	mock.ExpectQuery("insert into invites").
		WithArgs("CODE", "GenreWrite", 1, "alice").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	invite := auth.Invite{Code: "CODE", Permissions: auth.NewSet(auth.PermGenreWrite), Remaining: 1}
	if _, err := store.CreateInvite(context.Background(), "alice", invite); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectMet(t, mock)
}

func TestRedeemInviteDecrementsRemaining(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select permissions, remaining from invites").
		WithArgs("CODE").
		WillReturnRows(sqlmock.NewRows([]string{"permissions", "remaining"}).AddRow("GenreRead", 3))
	mock.ExpectQuery("insert into users").
		WithArgs("newbie", "hash", "GenreRead").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectExec("update invites set remaining").
		WithArgs("CODE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := store.RedeemInvite(context.Background(), "CODE", "newbie", "hash")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !user.Permissions.Has(auth.PermGenreRead) || len(user.Permissions) != 1 {
		t.Fatalf("unexpected permissions: %v", user.Permissions.Strings())
	}
	expectMet(t, mock)
}

func TestRedeemInviteDeletesRowOnLastUse(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select permissions, remaining from invites").
		WithArgs("CODE").
		WillReturnRows(sqlmock.NewRows([]string{"permissions", "remaining"}).AddRow("", 1))
	mock.ExpectQuery("insert into users").
		WithArgs("newbie", "hash", "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectExec("delete from invites").
		WithArgs("CODE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := store.RedeemInvite(context.Background(), "CODE", "newbie", "hash")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if len(user.Permissions) != 0 {
		t.Fatalf("expected empty permission set, got %v", user.Permissions.Strings())
	}
	expectMet(t, mock)
}

func TestRedeemInviteUnknownCode(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select permissions, remaining from invites").
		WithArgs("GONE").
		WillReturnRows(sqlmock.NewRows([]string{"permissions", "remaining"}))
	mock.ExpectRollback()

	if _, err := store.RedeemInvite(context.Background(), "GONE", "newbie", "hash"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestGrantPermissionsMergesSets(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select permissions from users").
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow("DocsRead"))
	mock.ExpectQuery("select permissions from users").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow("PermissionAdd,GenreWrite"))
	mock.ExpectQuery("update users set permissions").
		WithArgs("DocsRead,GenreWrite", "bob").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectCommit()

	user, err := store.GrantPermissions(context.Background(), "alice", "bob", auth.NewSet(auth.PermGenreWrite))
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !user.Permissions.Has(auth.PermDocsRead) || !user.Permissions.Has(auth.PermGenreWrite) {
		t.Fatalf("unexpected merged set: %v", user.Permissions.Strings())
	}
	expectMet(t, mock)
}

func TestGrantPermissionsWithoutDelegationFails(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select permissions from users").
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow(""))
	mock.ExpectQuery("select permissions from users").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow("PermissionAdd"))
	mock.ExpectRollback()

	if _, err := store.GrantPermissions(context.Background(), "alice", "bob", auth.NewSet(auth.PermGenreWrite)); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	expectMet(t, mock)
}

func TestRevokeRequiresDominanceOverTargetSet(t *testing.T) {
	store, mock := newMockStore(t)

	// The actor holds PermissionDelete and the permission being revoked,
	// but not the rest of the target's current set.
	mock.ExpectBegin()
	mock.ExpectQuery("select permissions from users").
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow("DocsRead,GenreWrite"))
	mock.ExpectQuery("select permissions from users").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow("PermissionDelete,DocsRead"))
	mock.ExpectRollback()

	if _, err := store.RevokePermissions(context.Background(), "alice", "bob", auth.NewSet(auth.PermDocsRead)); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	expectMet(t, mock)
}

func TestRevokeUnheldPermissionIsNoop(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select permissions from users").
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow("DocsRead"))
	mock.ExpectQuery("select permissions from users").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow("PermissionDelete,DocsRead,GenreWrite"))
	mock.ExpectQuery("update users set permissions").
		WithArgs("DocsRead", "bob").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectCommit()

	user, err := store.RevokePermissions(context.Background(), "alice", "bob", auth.NewSet(auth.PermGenreWrite))
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !user.Permissions.Has(auth.PermDocsRead) || len(user.Permissions) != 1 {
		t.Fatalf("unexpected set after no-op revoke: %v", user.Permissions.Strings())
	}
	expectMet(t, mock)
}

func TestDeleteUserSelfSkipsDominanceCheck(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("delete from users").
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.DeleteUser(context.Background(), "alice", "alice"); err != nil {
		t.Fatalf("self delete: %v", err)
	}
	expectMet(t, mock)
}

func TestDeleteUserRequiresDominance(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select permissions from users").
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow("GenreWrite"))
	mock.ExpectQuery("select permissions from users").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow("UserDelete"))
	mock.ExpectRollback()

	if err := store.DeleteUser(context.Background(), "alice", "bob"); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	expectMet(t, mock)
}

func TestListUsersAppliesFilters(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectQuery("select username, permissions, created_at from users").
		WithArgs("%ali%", "%UserRead%", 10).
		WillReturnRows(sqlmock.NewRows([]string{"username", "permissions", "created_at"}).
			AddRow("alice", "UserRead", created))

	users, err := store.ListUsers(context.Background(), auth.UserFilter{
		Username:   "ali",
		Permission: auth.PermUserRead,
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].Username != "alice" {
		t.Fatalf("unexpected result: %+v", users)
	}
	expectMet(t, mock)
}
