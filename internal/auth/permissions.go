package auth

// Permission represents a named capability.
type Permission string

const (
	PermDeviceRead     Permission = "device:read"
	PermDeviceControl  Permission = "device:control"
	PermDeviceManage   Permission = "device:manage"
	PermScheduleManage Permission = "schedule:manage"
	PermAlertAck       Permission = "alert:ack"
	PermUserManage     Permission = "user:manage"
)

// rolePermissions maps each role to its granted permissions. This is the
// single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermDeviceRead,
	},
	RoleOperator: {
		PermDeviceRead,
		PermDeviceControl,
		PermScheduleManage,
		PermAlertAck,
	},
	RoleAdmin: {
		PermDeviceRead,
		PermDeviceControl,
		PermDeviceManage,
		PermScheduleManage,
		PermAlertAck,
		PermUserManage,
	},
}

// HasPermission reports whether the role grants the permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsFor returns the permissions granted to a role.
func PermissionsFor(role Role) []Permission {
	perms := rolePermissions[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}
