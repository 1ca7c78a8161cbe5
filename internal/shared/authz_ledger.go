package shared

// Ledger permissions declared for RBAC.
const (
	PermLedgerView     = "ledger.view"
	PermLedgerPost     = "ledger.post"
	PermChartAdmin     = "ledger.chart.admin"
	PermReceiptsCreate = "ledger.receipts.create"
	PermInvoicesManage = "ledger.invoices.manage"
)

// LedgerScopes lists all permissions related to the accounting module.
func LedgerScopes() []string {
	return []string{
		PermLedgerView,
		PermLedgerPost,
		PermChartAdmin,
		PermReceiptsCreate,
		PermInvoicesManage,
	}
}
