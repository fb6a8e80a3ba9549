package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"crewhub.org/internal/authz"
	"crewhub.org/internal/ids"
)

const roleColumns = `id, organization_id, name, description, rank, is_system_role, is_editable, is_active, created_at, updated_at`

// Create inserts the role row and one grant per permission in a single
// transaction, so a committed role always carries its grants.
func (s *Store) Create(ctx context.Context, role *authz.Role) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if role.ID == "" {
		role.ID = ids.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into roles (id, organization_id, name, description, rank, is_system_role, is_editable, is_active)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning created_at, updated_at
	`, role.ID, role.OrganizationID, role.Name, nullIfEmpty(role.Description),
		role.Rank, role.IsSystemRole, role.IsEditable, role.IsActive)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s in organization %s", authz.ErrDuplicateRoleName, role.Name, role.OrganizationID)
		}
		return err
	}

	for _, perm := range role.Permissions {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission, granted)
			values ($1, $2, true)
		`, role.ID, string(perm)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Find returns the role with its grants.
func (s *Store) Find(ctx context.Context, roleID string) (*authz.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where id = $1`, roleID)
	return s.scanRoleWithGrants(ctx, row)
}

// FindByName resolves (org, name) to the role with its grants.
func (s *Store) FindByName(ctx context.Context, orgID, name string) (*authz.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+roleColumns+` from roles
		where organization_id = $1 and name = $2
	`, orgID, name)
	return s.scanRoleWithGrants(ctx, row)
}

// ListByOrg returns the organization's active roles, highest rank first, then
// name ascending for a deterministic presentation.
func (s *Store) ListByOrg(ctx context.Context, orgID string) ([]*authz.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+` from roles
		where organization_id = $1 and is_active = true
		order by rank desc, name asc
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*authz.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, role := range roles {
		if err := s.loadGrants(ctx, role); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// Update patches the role; a permission set in the patch replaces every grant
// with delete-then-insert inside the same transaction.
func (s *Store) Update(ctx context.Context, roleID string, upd authz.RoleUpdate) (*authz.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var editable bool
	err = tx.QueryRowContext(ctx, `select is_editable from roles where id = $1 for update`, roleID).Scan(&editable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	if !editable {
		return nil, authz.ErrRoleNotEditable
	}

	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		if *upd.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", idx))
			args = append(args, *upd.Description)
			idx++
		}
	}
	if upd.Rank != nil {
		sets = append(sets, fmt.Sprintf("rank = $%d", idx))
		args = append(args, *upd.Rank)
		idx++
	}
	if upd.Active != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *upd.Active)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, roleID)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return nil, authz.ErrDuplicateRoleName
			}
			return nil, err
		}
	}

	if upd.Permissions != nil {
		if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
			return nil, err
		}
		for _, perm := range *upd.Permissions {
			if _, err := tx.ExecContext(ctx, `
				insert into role_permissions (role_id, permission, granted)
				values ($1, $2, true)
			`, roleID, string(perm)); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.Find(ctx, roleID)
}

// Delete removes the role through the guarded path. The guards, the in-use
// check and both deletes share one transaction so the role never lingers
// grant-less but assignable.
func (s *Store) Delete(ctx context.Context, roleID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		editable bool
		system   bool
	)
	err = tx.QueryRowContext(ctx, `
		select is_editable, is_system_role from roles where id = $1 for update
	`, roleID).Scan(&editable, &system)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.ErrRoleNotFound
	}
	if err != nil {
		return err
	}
	if system {
		return authz.ErrSystemRoleProtected
	}
	if !editable {
		return authz.ErrRoleNotEditable
	}

	var inUse int
	if err := tx.QueryRowContext(ctx, `
		select count(*) from memberships where role_id = $1 and is_active = true
	`, roleID).Scan(&inUse); err != nil {
		return err
	}
	if inUse > 0 {
		return fmt.Errorf("%w: %d active memberships", authz.ErrRoleInUse, inUse)
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from roles where id = $1`, roleID); err != nil {
		return err
	}
	return tx.Commit()
}

// AddGrants inserts only missing grants; existing rows are untouched.
func (s *Store) AddGrants(ctx context.Context, roleID string, perms []authz.Permission) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if len(perms) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, perm := range perms {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission, granted)
			values ($1, $2, true)
			on conflict (role_id, permission) do nothing
		`, roleID, string(perm)); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return authz.ErrRoleNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*authz.Role, error) {
	var (
		role authz.Role
		desc sql.NullString
	)
	err := row.Scan(&role.ID, &role.OrganizationID, &role.Name, &desc, &role.Rank,
		&role.IsSystemRole, &role.IsEditable, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return &role, nil
}

func (s *Store) scanRoleWithGrants(ctx context.Context, row rowScanner) (*authz.Role, error) {
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadGrants(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *Store) loadGrants(ctx context.Context, role *authz.Role) error {
	rows, err := s.db.QueryContext(ctx, `
		select permission from role_permissions
		where role_id = $1 and granted = true
		order by permission
	`, role.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return err
		}
		role.Permissions = append(role.Permissions, authz.Permission(perm))
	}
	return rows.Err()
}
