package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crewhub.org/internal/authz"
)

// Assign validates that the role belongs to the organization and upserts the
// membership's role reference. Rank checks are the engine's responsibility;
// this store does not know who is assigning.
func (s *Store) Assign(ctx context.Context, orgID, userID, roleID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var roleOrg string
	err = tx.QueryRowContext(ctx, `select organization_id from roles where id = $1`, roleID).Scan(&roleOrg)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.ErrRoleNotFound
	}
	if err != nil {
		return err
	}
	if roleOrg != orgID {
		return fmt.Errorf("%w: role belongs to a different organization", authz.ErrRoleNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		insert into memberships (organization_id, user_id, role_id, is_active, joined_at)
		values ($1, $2, $3, true, now())
		on conflict (organization_id, user_id) do update
		set role_id = excluded.role_id, updated_at = now()
	`, orgID, userID, roleID); err != nil {
		return err
	}
	return tx.Commit()
}

// Resolve returns the member's role: the strong role_id reference first, the
// legacy free-text name match second, Unresolved otherwise. A missing or
// inactive membership resolves to Unresolved without error.
func (s *Store) Resolve(ctx context.Context, orgID, userID string) (authz.RoleResolution, error) {
	if s.db == nil {
		return authz.Unresolved(), errors.New("database connection unavailable")
	}

	var (
		roleID     sql.NullString
		legacyRole sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select role_id, legacy_role from memberships
		where organization_id = $1 and user_id = $2 and is_active = true
	`, orgID, userID).Scan(&roleID, &legacyRole)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Unresolved(), nil
	}
	if err != nil {
		return authz.Unresolved(), err
	}

	if roleID.Valid && roleID.String != "" {
		role, err := s.Find(ctx, roleID.String)
		if errors.Is(err, authz.ErrRoleNotFound) {
			return authz.Unresolved(), nil
		}
		if err != nil {
			return authz.Unresolved(), err
		}
		return authz.ResolvedRole(role), nil
	}

	if legacyRole.Valid && legacyRole.String != "" {
		role, err := s.FindByName(ctx, orgID, legacyRole.String)
		if errors.Is(err, authz.ErrRoleNotFound) {
			return authz.Unresolved(), nil
		}
		if err != nil {
			return authz.Unresolved(), err
		}
		return authz.ResolvedRole(role), nil
	}
	return authz.Unresolved(), nil
}

// IsActiveMember reports whether the user has an active membership row.
func (s *Store) IsActiveMember(ctx context.Context, orgID, userID string) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	var one int
	err := s.db.QueryRowContext(ctx, `
		select 1 from memberships
		where organization_id = $1 and user_id = $2 and is_active = true
	`, orgID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListMembers returns members ordered by role rank descending, then join
// time ascending. Hidden members are excluded unless the viewer is an active
// member of the organization.
func (s *Store) ListMembers(ctx context.Context, orgID string, opts authz.ListMembersOptions) ([]authz.Member, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}

	includeHidden := false
	if opts.ViewerUserID != "" {
		viewerIsMember, err := s.IsActiveMember(ctx, orgID, opts.ViewerUserID)
		if err != nil {
			return nil, err
		}
		includeHidden = viewerIsMember
	}

	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		select m.organization_id, m.user_id, coalesce(m.role_id, ''), coalesce(r.name, m.legacy_role, ''),
		       coalesce(r.rank, -1), m.is_hidden, m.joined_at
		from memberships m
		left join roles r on r.id = m.role_id
		where m.organization_id = $1 and m.is_active = true
		  and ($2 or m.is_hidden = false)
		order by coalesce(r.rank, -1) desc, m.joined_at asc
		limit $3 offset $4
	`, orgID, includeHidden, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []authz.Member
	for rows.Next() {
		var m authz.Member
		if err := rows.Scan(&m.OrganizationID, &m.UserID, &m.RoleID, &m.RoleName, &m.Rank, &m.IsHidden, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Remove hard-deletes the membership row. Soft removal flips is_active
// through a different path; callers must be explicit about which they want.
func (s *Store) Remove(ctx context.Context, orgID, userID string) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from memberships where organization_id = $1 and user_id = $2
	`, orgID, userID)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}
