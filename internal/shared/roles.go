package shared

// Office roles carried by the X-Actor-Role header.
const (
	RoleNotary     = "NOTAIRE"
	RoleClerk      = "CLERC"
	RoleAccountant = "COMPTABLE"
	RoleAdmin      = "ADMIN"
	RoleSecretary  = "SECRETAIRE"
)

// DefaultRoleGrants maps each office role to its permissions.
func DefaultRoleGrants() map[string][]string {
	accounting := []string{PermLedgerView, PermLedgerPost, PermReceiptsCreate, PermInvoicesManage}
	return map[string][]string{
		RoleAdmin:      append(LedgerScopes(), ActScopes()...),
		RoleNotary:     append(append([]string{}, accounting...), ActScopes()...),
		RoleAccountant: accounting,
		RoleClerk:      {PermActsView, PermActsFinalize, PermArchivesView, PermArchivesManage},
		RoleSecretary:  {PermActsView, PermReceiptsCreate},
	}
}
