package authz

import "errors"

var (
	ErrDuplicateRoleName     = errors.New("authz: duplicate role name")
	ErrRoleNotFound          = errors.New("authz: role not found")
	ErrRoleNotEditable       = errors.New("authz: role not editable")
	ErrSystemRoleProtected   = errors.New("authz: system role protected")
	ErrRoleInUse             = errors.New("authz: role in use")
	ErrInsufficientAuthority = errors.New("authz: insufficient authority")
	ErrMembershipNotFound    = errors.New("authz: membership not found")
	ErrInvalidInput          = errors.New("authz: invalid input")
)
