package models

// Permission resources.
const (
	ResourceProjects      = "projects"
	ResourceStages        = "stages"
	ResourceTasks         = "tasks"
	ResourceDocuments     = "documents"
	ResourceUsers         = "users"
	ResourceActivityLogs  = "activity-logs"
	ResourceNotifications = "notifications"
	ResourceReports       = "reports"
)

// Permission actions.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionManage = "manage"
)

type permissionKey struct {
	Resource string
	Action   string
}

// rolePermissions is the immutable role lookup table, built once at package
// init and never mutated at runtime. ADMIN is handled by a wildcard.
var rolePermissions = map[UserRole]map[permissionKey]struct{}{
	RoleProjectManager: buildSet(
		permissionKey{ResourceProjects, ActionCreate},
		permissionKey{ResourceProjects, ActionRead},
		permissionKey{ResourceProjects, ActionUpdate},
		permissionKey{ResourceProjects, ActionDelete},
		permissionKey{ResourceTasks, ActionCreate},
		permissionKey{ResourceTasks, ActionRead},
		permissionKey{ResourceTasks, ActionUpdate},
		permissionKey{ResourceTasks, ActionDelete},
		permissionKey{ResourceStages, ActionCreate},
		permissionKey{ResourceStages, ActionRead},
		permissionKey{ResourceStages, ActionUpdate},
		permissionKey{ResourceStages, ActionDelete},
		permissionKey{ResourceDocuments, ActionCreate},
		permissionKey{ResourceDocuments, ActionRead},
		permissionKey{ResourceDocuments, ActionUpdate},
		permissionKey{ResourceDocuments, ActionDelete},
		permissionKey{ResourceUsers, ActionRead},
		permissionKey{ResourceActivityLogs, ActionRead},
		permissionKey{ResourceNotifications, ActionRead},
		permissionKey{ResourceNotifications, ActionUpdate},
		permissionKey{ResourceReports, ActionRead},
	),
	RoleEmployee: buildSet(
		permissionKey{ResourceProjects, ActionRead},
		permissionKey{ResourceTasks, ActionCreate},
		permissionKey{ResourceTasks, ActionRead},
		permissionKey{ResourceTasks, ActionUpdate},
		permissionKey{ResourceStages, ActionCreate},
		permissionKey{ResourceStages, ActionRead},
		permissionKey{ResourceStages, ActionUpdate},
		permissionKey{ResourceDocuments, ActionCreate},
		permissionKey{ResourceDocuments, ActionRead},
		permissionKey{ResourceActivityLogs, ActionRead},
		permissionKey{ResourceNotifications, ActionRead},
		permissionKey{ResourceNotifications, ActionUpdate},
	),
}

func buildSet(keys ...permissionKey) map[permissionKey]struct{} {
	set := make(map[permissionKey]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// HasPermission reports whether a role may perform an action on a resource.
func HasPermission(role UserRole, resource, action string) bool {
	if role == RoleAdmin {
		return true
	}
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	if _, ok := perms[permissionKey{resource, ActionManage}]; ok {
		return true
	}
	_, ok = perms[permissionKey{resource, action}]
	return ok
}

// CanManageProject reports whether the user may administer the given project.
func CanManageProject(role UserRole, userID string, managerID *string) bool {
	if role == RoleAdmin {
		return true
	}
	if role == RoleProjectManager && managerID != nil && *managerID == userID {
		return true
	}
	return false
}

// CanEditTask reports whether the user may modify the given task.
func CanEditTask(role UserRole, userID string, assigneeID, managerID *string) bool {
	if CanManageProject(role, userID, managerID) {
		return true
	}
	return assigneeID != nil && *assigneeID == userID
}
