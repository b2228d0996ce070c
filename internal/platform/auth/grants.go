package auth

// GrantKind selects which grant set a check runs against.
type GrantKind string

const (
	GrantRole       GrantKind = "role"
	GrantPermission GrantKind = "permission"
)

// Roles.
const (
	RoleAdmin         = "admin"
	RoleClinician     = "clinician"
	RoleNurse         = "nurse"
	RoleCHW           = "community_health_worker"
	RoleFacilityStaff = "facility_staff"
)

// Permissions.
const (
	PermAssessmentsView     = "assessments.view"
	PermAssessmentsCreate   = "assessments.create"
	PermAssessmentsValidate = "assessments.validate"
	PermAssessmentsExport   = "assessments.export"
	PermReferralsView       = "referrals.view"
	PermReferralsManage     = "referrals.manage"
	PermAlertsView          = "alerts.view"
	PermAlertsCreate        = "alerts.create"
	PermFacilitiesView      = "facilities.view"
	PermUsersManage         = "users.manage"
)

// GrantChecker answers whether a principal holds at least one of a set of
// grants.
type GrantChecker interface {
	HasAnyOf(p *Principal, kind GrantKind, required []string) bool
	// Effective lists the grants of kind the principal holds, for diagnostics.
	Effective(p *Principal, kind GrantKind) []string
}

// ClaimGrants resolves grants from token claims. Permissions are the union
// of explicit permission claims and those implied by each role. SuperRole
// passes every check.
type ClaimGrants struct {
	RolePermissions map[string][]string
	SuperRole       string
}

// DefaultRolePermissions is the built-in role table.
var DefaultRolePermissions = map[string][]string{
	RoleClinician: {
		PermAssessmentsView, PermAssessmentsValidate, PermAssessmentsExport,
		PermReferralsView, PermReferralsManage, PermAlertsView, PermAlertsCreate, PermFacilitiesView,
	},
	RoleNurse: {
		PermAssessmentsView, PermAssessmentsCreate, PermReferralsView, PermAlertsView, PermFacilitiesView,
	},
	RoleCHW: {
		PermAssessmentsCreate, PermAlertsView, PermFacilitiesView,
	},
	RoleFacilityStaff: {
		PermReferralsView, PermReferralsManage, PermAlertsView, PermFacilitiesView,
	},
}

func NewClaimGrants() *ClaimGrants {
	return &ClaimGrants{RolePermissions: DefaultRolePermissions, SuperRole: RoleAdmin}
}

func (g *ClaimGrants) HasAnyOf(p *Principal, kind GrantKind, required []string) bool {
	if p == nil {
		return false
	}
	if g.SuperRole != "" && p.HasRole(g.SuperRole) {
		return true
	}
	held := g.Effective(p, kind)
	for _, want := range required {
		for _, has := range held {
			if has == want {
				return true
			}
		}
	}
	return false
}

func (g *ClaimGrants) Effective(p *Principal, kind GrantKind) []string {
	if p == nil {
		return []string{}
	}
	if kind == GrantRole {
		return append([]string{}, p.Roles...)
	}

	seen := make(map[string]struct{})
	out := []string{}
	add := func(perm string) {
		if _, ok := seen[perm]; !ok {
			seen[perm] = struct{}{}
			out = append(out, perm)
		}
	}
	for _, perm := range p.Permissions {
		add(perm)
	}
	for _, role := range p.Roles {
		for _, perm := range g.RolePermissions[role] {
			add(perm)
		}
	}
	return out
}
