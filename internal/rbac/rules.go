package rbac

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super-admin"
)

// RolePermissions is the default policy. Roles do not inherit.
var RolePermissions = map[string][]string{
	RoleUser: {
		"catalog:view",
		"question:search",
		"quiz:play",
		"score:view-own",
		"report:create",
	},
	RoleAdmin: {
		"catalog:*",
		"question:*",
		"quiz:play",
		"score:view-own",
		"report:*",
	},
	RoleSuperAdmin: {
		"*",
	},
}
