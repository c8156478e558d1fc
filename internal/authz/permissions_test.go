package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEveryRoleHasPermissions(t *testing.T) {
	for _, role := range Roles() {
		assert.NotEmpty(t, PermissionsFor(role), "role %s has no permissions", role)
	}
}

func TestUnknownRoleHasNoPermissions(t *testing.T) {
	assert.Empty(t, PermissionsFor(Role("contractor")))
	assert.False(t, HasPermission(Role("contractor"), PermProfileRead))
}

func TestRoleGrants(t *testing.T) {
	tests := []struct {
		role       Role
		permission Permission
		want       bool
	}{
		{RoleEmployee, PermProfileRead, true},
		{RoleEmployee, PermEmployeesRead, false},
		{RoleEmployee, PermAnalyticsRead, false},
		{RoleTeamLead, PermAnalyticsRead, true},
		{RoleTeamLead, PermAnalyticsExport, false},
		{RoleDeptHead, PermAnalyticsExport, true},
		{RoleHRSpecialist, PermEmployeesWrite, true},
		{RoleHRSpecialist, PermAuditRead, false},
		{RoleHRManager, PermAuditRead, true},
		{RoleHRManager, PermUsersManage, false},
		{RoleAdmin, PermUsersManage, true},
		{RoleSuperAdmin, PermSystemManage, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasPermission(tt.role, tt.permission),
			"%s / %s", tt.role, tt.permission)
	}
}

func TestPermissionsForReturnsACopy(t *testing.T) {
	perms := PermissionsFor(RoleEmployee)
	perms[0] = Permission("tampered")
	assert.NotContains(t, PermissionsFor(RoleEmployee), Permission("tampered"))
}

func TestPermissionStringsMatchPermissionSet(t *testing.T) {
	perms := PermissionsFor(RoleHRManager)
	strs := PermissionStrings(RoleHRManager)
	assert.Len(t, strs, len(perms))
	for i, p := range perms {
		assert.Equal(t, string(p), strs[i])
	}
}
