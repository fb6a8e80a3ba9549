package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"crewhub.org/internal/authz"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Rank        int      `json:"rank"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Rank        *int      `json:"rank"`
	Active      *bool     `json:"active"`
	Permissions *[]string `json:"permissions"`
}

type replacePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type assignRoleRequest struct {
	RoleName string `json:"role_name"`
}

type roleResponse struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Rank           int      `json:"rank"`
	IsSystemRole   bool     `json:"is_system_role"`
	IsEditable     bool     `json:"is_editable"`
	IsActive       bool     `json:"is_active"`
	Permissions    []string `json:"permissions"`
}

func toRoleResponse(role *authz.Role) roleResponse {
	perms := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, string(p))
	}
	return roleResponse{
		ID:             role.ID,
		OrganizationID: role.OrganizationID,
		Name:           role.Name,
		Description:    role.Description,
		Rank:           role.Rank,
		IsSystemRole:   role.IsSystemRole,
		IsEditable:     role.IsEditable,
		IsActive:       role.IsActive,
		Permissions:    perms,
	}
}

func toPermissions(keys []string) []authz.Permission {
	perms := make([]authz.Permission, 0, len(keys))
	for _, k := range keys {
		perms = append(perms, authz.Permission(k))
	}
	return perms
}

// handleOrgScoped routes /v1/orgs/{org}/... paths.
func (a *API) handleOrgScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/orgs/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) < 2 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	orgID := parts[0]
	switch {
	case parts[1] == "roles" && len(parts) == 2:
		a.handleOrgRoles(w, r, orgID)
	case parts[1] == "members" && len(parts) == 2:
		a.handleOrgMembers(w, r, orgID)
	case parts[1] == "members" && len(parts) == 3:
		a.handleMember(w, r, orgID, parts[2])
	case parts[1] == "members" && len(parts) == 4 && parts[3] == "role":
		a.handleMemberRole(w, r, orgID, parts[2])
	case parts[1] == "provision" && len(parts) == 3:
		a.handleProvision(w, r, orgID, parts[2])
	case parts[1] == "reconcile-owner" && len(parts) == 2:
		a.handleReconcileOwner(w, r, orgID)
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleOrgRoles(w http.ResponseWriter, r *http.Request, orgID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if d := a.enforcer.RequirePermission(r.Context(), actor, orgID, authz.PermMembersView, "roles"); !d.Allowed {
			writeError(w, http.StatusForbidden, d.Reason)
			return
		}
		roles, err := a.svc.ListRoles(r.Context(), orgID)
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		out := make([]roleResponse, 0, len(roles))
		for _, role := range roles {
			out = append(out, toRoleResponse(role))
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		if d := a.enforcer.RequirePermission(r.Context(), actor, orgID, authz.PermRolesManage, "roles"); !d.Allowed {
			writeError(w, http.StatusForbidden, d.Reason)
			return
		}
		var req createRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.CreateRole(r.Context(), orgID, req.Name, req.Description, req.Rank, toPermissions(req.Permissions))
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		w.Header().Set("Location", "/v1/roles/"+role.ID)
		writeJSON(w, http.StatusCreated, toRoleResponse(role))
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (a *API) handleOrgMembers(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	opts := authz.ListMembersOptions{ViewerUserID: actor}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	members, err := a.svc.ListMembers(r.Context(), orgID, opts)
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (a *API) handleMember(w http.ResponseWriter, r *http.Request, orgID, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, "DELETE")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if d := a.enforcer.RequirePermission(r.Context(), actor, orgID, authz.PermMembersRemove, "members"); !d.Allowed {
		writeError(w, http.StatusForbidden, d.Reason)
		return
	}
	removed, err := a.svc.RemoveMember(r.Context(), orgID, userID)
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "membership not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMemberRole runs the composite assignment validation, then binds the
// role. The validation result's code lets clients branch without matching
// reason text.
func (a *API) handleMemberRole(w http.ResponseWriter, r *http.Request, orgID, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, "PUT")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	check, err := a.engine.ValidateRoleAssignment(r.Context(), orgID, actor, userID, req.RoleName)
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	if !check.Valid {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"valid":  false,
			"reason": check.Reason,
			"code":   check.Code,
		})
		return
	}
	role, err := a.svc.GetRoleByName(r.Context(), orgID, req.RoleName)
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	if err := a.svc.AssignRole(r.Context(), orgID, userID, role.ID); err != nil {
		handleAuthzError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"organization_id": orgID,
		"user_id":         userID,
		"role_id":         role.ID,
		"role_name":       role.Name,
	})
}

func (a *API) handleProvision(w http.ResponseWriter, r *http.Request, orgID, set string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var (
		roles []*authz.Role
		err   error
	)
	switch set {
	case "defaults":
		// The default set is created while the organization has no members
		// yet, so there is no in-org permission to hold; authentication is
		// enough and the organization lifecycle service is the caller.
		roles, err = a.prov.CreateDefaultRoles(r.Context(), orgID)
	case "hr":
		if d := a.enforcer.RequirePermission(r.Context(), actor, orgID, authz.PermRolesManage, "roles"); !d.Allowed {
			writeError(w, http.StatusForbidden, d.Reason)
			return
		}
		roles, err = a.prov.CreateSpecializedRoles(r.Context(), orgID)
	default:
		writeError(w, http.StatusNotFound, "unknown role set")
		return
	}
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) handleReconcileOwner(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if d := a.enforcer.RequirePermission(r.Context(), actor, orgID, authz.PermRolesManage, "roles"); !d.Allowed {
		writeError(w, http.StatusForbidden, d.Reason)
		return
	}
	if err := a.prov.ReconcileOwnerPermissions(r.Context(), orgID); err != nil {
		handleAuthzError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRoleResource routes /v1/roles/{id} and /v1/roles/{id}/permissions.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	parts := strings.Split(path, "/")
	if path == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	roleID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleRole(w, r, roleID)
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleRolePermissions(w, r, roleID)
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, roleID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	role, err := a.svc.GetRole(r.Context(), roleID)
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if d := a.enforcer.RequirePermission(r.Context(), actor, role.OrganizationID, authz.PermMembersView, "roles"); !d.Allowed {
			writeError(w, http.StatusForbidden, d.Reason)
			return
		}
		writeJSON(w, http.StatusOK, toRoleResponse(role))
	case http.MethodPatch:
		if d := a.enforcer.RequirePermission(r.Context(), actor, role.OrganizationID, authz.PermRolesManage, "roles"); !d.Allowed {
			writeError(w, http.StatusForbidden, d.Reason)
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		upd := authz.RoleUpdate{
			Name:        req.Name,
			Description: req.Description,
			Rank:        req.Rank,
			Active:      req.Active,
		}
		if req.Permissions != nil {
			perms := toPermissions(*req.Permissions)
			upd.Permissions = &perms
		}
		updated, err := a.svc.UpdateRole(r.Context(), roleID, upd)
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRoleResponse(updated))
	case http.MethodDelete:
		if d := a.enforcer.RequirePermission(r.Context(), actor, role.OrganizationID, authz.PermRolesManage, "roles"); !d.Allowed {
			writeError(w, http.StatusForbidden, d.Reason)
			return
		}
		if err := a.svc.DeleteRole(r.Context(), roleID); err != nil {
			handleAuthzError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, "GET, PATCH, DELETE")
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, "PUT")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	role, err := a.svc.GetRole(r.Context(), roleID)
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	if d := a.enforcer.RequirePermission(r.Context(), actor, role.OrganizationID, authz.PermRolesManage, "roles"); !d.Allowed {
		writeError(w, http.StatusForbidden, d.Reason)
		return
	}
	var req replacePermissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	perms := toPermissions(req.Permissions)
	updated, err := a.svc.UpdateRole(r.Context(), roleID, authz.RoleUpdate{Permissions: &perms})
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleResponse(updated))
}
