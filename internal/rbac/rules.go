package rbac

const (
	PermActivityManage = "activity:manage"
	PermActivityView   = "activity:view"
	PermNotebookView   = "notebook:view"
	PermNotebookSubmit = "notebook:submit"
	PermNotebookReset  = "notebook:reset"
	PermHubStatus      = "hub:status"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"student": {
		PermNotebookView,
		PermNotebookSubmit,
		PermNotebookReset,
	},
	"teacher": {
		"activity:*",
		"notebook:*",
		PermHubStatus,
	},
	"admin": {
		"*",
	},
}
