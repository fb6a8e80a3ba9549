package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"crewhub.org/internal/authz"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewStore(db), mock
}

func roleRow(id string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "organization_id", "name", "description", "rank",
		"is_system_role", "is_editable", "is_active", "created_at", "updated_at",
	}).AddRow(id, "org-1", "Auditor", "read-only", 15, false, true, true, now, now)
}

func TestCreateRoleWithGrants(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`insert into roles`).
		WithArgs(sqlmock.AnyArg(), "org-1", "Auditor", sqlmock.AnyArg(), 15, false, true, true).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(`insert into role_permissions`).
		WithArgs(sqlmock.AnyArg(), "members.view").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into role_permissions`).
		WithArgs(sqlmock.AnyArg(), "reports.view").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	role := &authz.Role{
		OrganizationID: "org-1",
		Name:           "Auditor",
		Description:    "read-only",
		Rank:           15,
		IsEditable:     true,
		IsActive:       true,
		Permissions:    []authz.Permission{authz.PermMembersView, authz.PermReportsView},
	}
	if err := store.Create(context.Background(), role); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if role.ID == "" {
		t.Fatal("role ID not generated")
	}
	if role.CreatedAt.IsZero() {
		t.Fatal("timestamps not populated")
	}
}

func TestCreateRoleDuplicateName(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`insert into roles`).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	err := store.Create(context.Background(), &authz.Role{OrganizationID: "org-1", Name: "Auditor"})
	if !errors.Is(err, authz.ErrDuplicateRoleName) {
		t.Fatalf("err = %v, want ErrDuplicateRoleName", err)
	}
}

func TestFindRoleNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select .+ from roles where id`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Find(context.Background(), "missing")
	if !errors.Is(err, authz.ErrRoleNotFound) {
		t.Fatalf("err = %v, want ErrRoleNotFound", err)
	}
}

func TestFindRoleLoadsGrants(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select .+ from roles where id`).
		WithArgs("role-1").
		WillReturnRows(roleRow("role-1"))
	mock.ExpectQuery(`select permission from role_permissions`).
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"permission"}).
			AddRow("members.view").
			AddRow("reports.view"))

	role, err := store.Find(context.Background(), "role-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(role.Permissions) != 2 {
		t.Fatalf("grants = %v, want 2", role.Permissions)
	}
	if role.Description != "read-only" {
		t.Fatalf("description = %q", role.Description)
	}
}

func TestUpdateRoleNotEditable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`select is_editable from roles`).
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"is_editable"}).AddRow(false))
	mock.ExpectRollback()

	name := "Renamed"
	_, err := store.Update(context.Background(), "role-1", authz.RoleUpdate{Name: &name})
	if !errors.Is(err, authz.ErrRoleNotEditable) {
		t.Fatalf("err = %v, want ErrRoleNotEditable", err)
	}
}

func TestUpdateRoleReplacesGrants(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`select is_editable from roles`).
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"is_editable"}).AddRow(true))
	mock.ExpectExec(`delete from role_permissions`).
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`insert into role_permissions`).
		WithArgs("role-1", "events.view").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(`select .+ from roles where id`).
		WithArgs("role-1").
		WillReturnRows(roleRow("role-1"))
	mock.ExpectQuery(`select permission from role_permissions`).
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"permission"}).AddRow("events.view"))

	perms := []authz.Permission{authz.PermEventsView}
	role, err := store.Update(context.Background(), "role-1", authz.RoleUpdate{Permissions: &perms})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(role.Permissions) != 1 || role.Permissions[0] != authz.PermEventsView {
		t.Fatalf("grants = %v, want replaced set", role.Permissions)
	}
}

func TestDeleteRoleGuards(t *testing.T) {
	t.Run("system role", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`select is_editable, is_system_role from roles`).
			WithArgs("role-1").
			WillReturnRows(sqlmock.NewRows([]string{"is_editable", "is_system_role"}).AddRow(false, true))
		mock.ExpectRollback()

		if err := store.Delete(context.Background(), "role-1"); !errors.Is(err, authz.ErrSystemRoleProtected) {
			t.Fatalf("err = %v, want ErrSystemRoleProtected", err)
		}
	})

	t.Run("in use", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`select is_editable, is_system_role from roles`).
			WithArgs("role-1").
			WillReturnRows(sqlmock.NewRows([]string{"is_editable", "is_system_role"}).AddRow(true, false))
		mock.ExpectQuery(`select count\(\*\) from memberships`).
			WithArgs("role-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectRollback()

		if err := store.Delete(context.Background(), "role-1"); !errors.Is(err, authz.ErrRoleInUse) {
			t.Fatalf("err = %v, want ErrRoleInUse", err)
		}
	})

	t.Run("deletes grants then role", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`select is_editable, is_system_role from roles`).
			WithArgs("role-1").
			WillReturnRows(sqlmock.NewRows([]string{"is_editable", "is_system_role"}).AddRow(true, false))
		mock.ExpectQuery(`select count\(\*\) from memberships`).
			WithArgs("role-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`delete from role_permissions`).
			WithArgs("role-1").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`delete from roles`).
			WithArgs("role-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := store.Delete(context.Background(), "role-1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	})
}

func TestAddGrantsUnknownRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`insert into role_permissions`).
		WithArgs("missing", "members.view").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	mock.ExpectRollback()

	err := store.AddGrants(context.Background(), "missing", []authz.Permission{authz.PermMembersView})
	if !errors.Is(err, authz.ErrRoleNotFound) {
		t.Fatalf("err = %v, want ErrRoleNotFound", err)
	}
}

func TestAddGrantsEmptyIsNoop(t *testing.T) {
	store, _ := newMockStore(t)
	if err := store.AddGrants(context.Background(), "role-1", nil); err != nil {
		t.Fatalf("AddGrants: %v", err)
	}
}
