package authz

// Permission is a recognized capability key. Grants are persisted as plain
// strings, but everything inside the engine compares through this type so a
// misspelled key fails at compile time.
type Permission string

// Organization management.
const (
	PermOrgUpdate         Permission = "org.update"
	PermOrgDelete         Permission = "org.delete"
	PermOrgManageSettings Permission = "org.settings.manage"
)

// Membership.
const (
	PermMembersView   Permission = "members.view"
	PermMembersInvite Permission = "members.invite"
	PermMembersRemove Permission = "members.remove"
)

// Roles.
const (
	PermRolesManage Permission = "roles.manage"
	PermRolesAssign Permission = "roles.assign"
)

// Events and comments.
const (
	PermEventsView       Permission = "events.view"
	PermEventsManage     Permission = "events.manage"
	PermCommentsPost     Permission = "comments.post"
	PermCommentsModerate Permission = "comments.moderate"
)

// Invitations and integrations.
const (
	PermInvitesCreate      Permission = "invites.create"
	PermInvitesRevoke      Permission = "invites.revoke"
	PermIntegrationsManage Permission = "integrations.manage"
)

// Reporting.
const (
	PermReportsView Permission = "reports.view"
)

// HR subset.
const (
	PermApplicationsView   Permission = "hr.applications.view"
	PermApplicationsManage Permission = "hr.applications.manage"
	PermOnboardingView     Permission = "hr.onboarding.view"
	PermOnboardingManage   Permission = "hr.onboarding.manage"
	PermPerformanceView    Permission = "hr.performance.view"
	PermPerformanceManage  Permission = "hr.performance.manage"
	PermSkillsManage       Permission = "hr.skills.manage"
	PermDocumentsView      Permission = "hr.documents.view"
	PermDocumentsManage    Permission = "hr.documents.manage"
	PermHRAnalyticsView    Permission = "hr.analytics.view"
)

// Catalog is the deploy-time set of recognized permissions. It is an explicit
// value passed into provisioning and reconciliation rather than package state,
// so tests can run against smaller or grown catalogs.
type Catalog struct {
	perms []Permission
	index map[Permission]struct{}
}

// NewCatalog builds a catalog preserving order and dropping duplicates.
func NewCatalog(perms ...Permission) Catalog {
	c := Catalog{index: make(map[Permission]struct{}, len(perms))}
	for _, p := range perms {
		if p == "" {
			continue
		}
		if _, ok := c.index[p]; ok {
			continue
		}
		c.index[p] = struct{}{}
		c.perms = append(c.perms, p)
	}
	return c
}

// DefaultCatalog returns every permission the platform recognizes.
func DefaultCatalog() Catalog {
	return NewCatalog(
		PermOrgUpdate,
		PermOrgDelete,
		PermOrgManageSettings,
		PermMembersView,
		PermMembersInvite,
		PermMembersRemove,
		PermRolesManage,
		PermRolesAssign,
		PermEventsView,
		PermEventsManage,
		PermCommentsPost,
		PermCommentsModerate,
		PermInvitesCreate,
		PermInvitesRevoke,
		PermIntegrationsManage,
		PermReportsView,
		PermApplicationsView,
		PermApplicationsManage,
		PermOnboardingView,
		PermOnboardingManage,
		PermPerformanceView,
		PermPerformanceManage,
		PermSkillsManage,
		PermDocumentsView,
		PermDocumentsManage,
		PermHRAnalyticsView,
	)
}

// Contains reports whether p is part of the catalog.
func (c Catalog) Contains(p Permission) bool {
	_, ok := c.index[p]
	return ok
}

// All returns the catalog entries in declaration order.
func (c Catalog) All() []Permission {
	out := make([]Permission, len(c.perms))
	copy(out, c.perms)
	return out
}

// Size returns the number of catalog entries.
func (c Catalog) Size() int { return len(c.perms) }
