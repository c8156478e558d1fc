// Package authz enforces role- and permission-based access control. The
// role→permission mapping is a static table defined once for the whole
// gateway; granting never touches a database.
package authz

// Role names match the platform's user records.
type Role string

const (
	RoleEmployee     Role = "employee"
	RoleTeamLead     Role = "team_lead"
	RoleDeptHead     Role = "dept_head"
	RoleHRSpecialist Role = "hr_specialist"
	RoleHRManager    Role = "hr_manager"
	RoleAdmin        Role = "admin"
	RoleSuperAdmin   Role = "super_admin"
)

// Permission is a "<resource>:<action>" grant.
type Permission string

const (
	PermProfileRead        Permission = "profile:read"
	PermProfileWrite       Permission = "profile:write"
	PermEmployeesRead      Permission = "employees:read"
	PermEmployeesWrite     Permission = "employees:write"
	PermSkillsRead         Permission = "skills:read"
	PermSkillsWrite        Permission = "skills:write"
	PermSkillsEndorse      Permission = "skills:endorse"
	PermVacanciesRead      Permission = "vacancies:read"
	PermVacanciesWrite     Permission = "vacancies:write"
	PermMatchesRead        Permission = "matches:read"
	PermMatchesWrite       Permission = "matches:write"
	PermAnalyticsRead      Permission = "analytics:read"
	PermAnalyticsExport    Permission = "analytics:export"
	PermGamificationRead   Permission = "gamification:read"
	PermGamificationManage Permission = "gamification:manage"
	PermUsersManage        Permission = "users:manage"
	PermRolesManage        Permission = "roles:manage"
	PermAuditRead          Permission = "audit:read"
	PermSystemManage       Permission = "system:manage"
)

// rolePermissions is the gateway-wide grant table. Order within a set is
// meaningless; membership is what matters.
var rolePermissions = map[Role][]Permission{
	RoleEmployee: {
		PermProfileRead, PermProfileWrite,
		PermSkillsRead, PermSkillsWrite,
		PermVacanciesRead, PermMatchesRead,
		PermGamificationRead,
	},
	RoleTeamLead: {
		PermProfileRead, PermProfileWrite,
		PermSkillsRead, PermSkillsWrite, PermSkillsEndorse,
		PermEmployeesRead,
		PermVacanciesRead, PermMatchesRead,
		PermGamificationRead,
		PermAnalyticsRead,
	},
	RoleDeptHead: {
		PermProfileRead, PermProfileWrite,
		PermSkillsRead, PermSkillsWrite, PermSkillsEndorse,
		PermEmployeesRead,
		PermVacanciesRead, PermVacanciesWrite,
		PermMatchesRead,
		PermGamificationRead,
		PermAnalyticsRead, PermAnalyticsExport,
	},
	RoleHRSpecialist: {
		PermProfileRead, PermProfileWrite,
		PermEmployeesRead, PermEmployeesWrite,
		PermSkillsRead, PermSkillsEndorse,
		PermVacanciesRead, PermVacanciesWrite,
		PermMatchesRead, PermMatchesWrite,
		PermGamificationRead,
		PermAnalyticsRead,
	},
	RoleHRManager: {
		PermProfileRead, PermProfileWrite,
		PermEmployeesRead, PermEmployeesWrite,
		PermSkillsRead, PermSkillsEndorse,
		PermVacanciesRead, PermVacanciesWrite,
		PermMatchesRead, PermMatchesWrite,
		PermGamificationRead, PermGamificationManage,
		PermAnalyticsRead, PermAnalyticsExport,
		PermAuditRead,
	},
	RoleAdmin: {
		PermProfileRead, PermProfileWrite,
		PermEmployeesRead, PermEmployeesWrite,
		PermSkillsRead, PermSkillsWrite, PermSkillsEndorse,
		PermVacanciesRead, PermVacanciesWrite,
		PermMatchesRead, PermMatchesWrite,
		PermGamificationRead, PermGamificationManage,
		PermAnalyticsRead, PermAnalyticsExport,
		PermUsersManage, PermRolesManage,
		PermAuditRead, PermSystemManage,
	},
	RoleSuperAdmin: {
		PermProfileRead, PermProfileWrite,
		PermEmployeesRead, PermEmployeesWrite,
		PermSkillsRead, PermSkillsWrite, PermSkillsEndorse,
		PermVacanciesRead, PermVacanciesWrite,
		PermMatchesRead, PermMatchesWrite,
		PermGamificationRead, PermGamificationManage,
		PermAnalyticsRead, PermAnalyticsExport,
		PermUsersManage, PermRolesManage,
		PermAuditRead, PermSystemManage,
	},
}

// Roles lists every role known to the gateway.
func Roles() []Role {
	roles := make([]Role, 0, len(rolePermissions))
	for r := range rolePermissions {
		roles = append(roles, r)
	}
	return roles
}

// PermissionsFor returns a copy of the role's permission set. Unknown roles
// get no permissions.
func PermissionsFor(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// PermissionStrings returns the role's permissions as plain strings for
// context threading and the X-User-Permissions header.
func PermissionStrings(role Role) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// HasPermission reports whether the role's static set contains permission.
func HasPermission(role Role, permission Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
