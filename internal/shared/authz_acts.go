package shared

// Act and archive permissions.
const (
	PermActsView       = "acts.view"
	PermActsFinalize   = "acts.finalize"
	PermActsSign       = "acts.sign"
	PermArchivesView   = "archives.view"
	PermArchivesManage = "archives.manage"
)

// ActScopes lists all permissions related to acts and archives.
func ActScopes() []string {
	return []string{
		PermActsView,
		PermActsFinalize,
		PermActsSign,
		PermArchivesView,
		PermArchivesManage,
	}
}
