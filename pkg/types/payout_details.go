package types

// PayoutDetails holds the method-specific destination for a vendor payout.
// The full struct is snapshotted onto each payout at request time so a later
// change to the vendor profile never rewrites payout history.
type PayoutDetails struct {
	AccountHolderName string `json:"account_holder_name,omitempty"`
	AccountNumber     string `json:"account_number,omitempty"`
	BankName          string `json:"bank_name,omitempty"`
	BankBranch        string `json:"bank_branch,omitempty"`
	SwiftCode         string `json:"swift_code,omitempty"`
	WalletEmail       string `json:"wallet_email,omitempty"`
	ProviderAccountID string `json:"provider_account_id,omitempty"`
}
