package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermDeviceRead, true},
		{RoleViewer, PermDeviceControl, false},
		{RoleViewer, PermUserManage, false},
		{RoleOperator, PermDeviceControl, true},
		{RoleOperator, PermScheduleManage, true},
		{RoleOperator, PermDeviceManage, false},
		{RoleOperator, PermUserManage, false},
		{RoleAdmin, PermDeviceManage, true},
		{RoleAdmin, PermUserManage, true},
		{Role("panel"), PermDeviceRead, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestPermissionsForCopies(t *testing.T) {
	perms := PermissionsFor(RoleViewer)
	if len(perms) != 1 {
		t.Fatalf("viewer permissions = %v", perms)
	}
	perms[0] = PermUserManage
	if HasPermission(RoleViewer, PermUserManage) {
		t.Fatal("mutating the returned slice changed the permission table")
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range ValidRoles {
		if !r.Valid() {
			t.Errorf("%s should be valid", r)
		}
	}
	if Role("owner").Valid() {
		t.Error("owner should not be a valid role")
	}
}
