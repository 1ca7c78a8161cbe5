package accounting

// Standard account numbers used by receipts and invoices.
const (
	AccountOfficeBank  = "512-OFFICE"
	AccountOfficeCash  = "531-OFFICE"
	AccountFees        = "706"
	AccountReceivable  = "411"
	AccountSuppliers   = "401"
	AccountStaff       = "421"
	AccountTax         = "445"
	AccountSuspense    = "471"
	AccountTrustBank   = "512-CLIENT"
	AccountTrustCash   = "531-CLIENT"
	AccountClientFunds = "467"
)

// DefaultChart is seeded by InitializeDefaultChart.
var DefaultChart = []CreateAccountInput{
	{Number: AccountOfficeBank, Label: "Banque - Compte Office", Type: AccountTypeGeneral, Category: CategoryOffice},
	{Number: AccountOfficeCash, Label: "Caisse - Compte Office", Type: AccountTypeGeneral, Category: CategoryOffice},
	{Number: AccountFees, Label: "Honoraires", Type: AccountTypeGeneral, Category: CategoryOffice},
	{Number: AccountReceivable, Label: "Clients Débiteurs", Type: AccountTypeGeneral, Category: CategoryOffice},
	{Number: AccountSuppliers, Label: "Fournisseurs", Type: AccountTypeGeneral, Category: CategoryOffice},
	{Number: AccountStaff, Label: "Personnel", Type: AccountTypeGeneral, Category: CategoryOffice},
	{Number: AccountTax, Label: "État - Taxes", Type: AccountTypeGeneral, Category: CategoryOffice},
	{Number: AccountSuspense, Label: "Comptes d'Attente", Type: AccountTypeGeneral, Category: CategoryOffice},
	{Number: AccountTrustBank, Label: "Banque - Compte Client", Type: AccountTypeGeneral, Category: CategoryClientTrust},
	{Number: AccountTrustCash, Label: "Caisse - Compte Client", Type: AccountTypeGeneral, Category: CategoryClientTrust},
	{Number: AccountClientFunds, Label: "Fonds de Tiers - Clients", Type: AccountTypeClientTrust, Category: CategoryClientTrust},
}

// Validate checks the account input before persisting.
func (in CreateAccountInput) Validate() error {
	if in.Number == "" || in.Label == "" {
		return ErrInvalidAccount
	}
	switch in.Type {
	case AccountTypeGeneral, AccountTypeClientTrust, AccountTypeThirdParty:
	default:
		return ErrInvalidAccount
	}
	switch in.Category {
	case CategoryUnset, CategoryOffice, CategoryClientTrust:
	default:
		return ErrInvalidAccount
	}
	return nil
}
