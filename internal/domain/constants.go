package domain

// System account names (must match the seed data).
const (
	SystemAccountTreasury = "Treasury"
	SystemAccountEquity   = "Equity"

	DefaultCurrency = "CREDIT"

	TxTypeTopUp    = "topup"
	TxTypePurchase = "purchase"
	TxTypeBonus    = "bonus"
	TxTypeRefund   = "refund"

	TxStatusPending   = "pending"
	TxStatusCommitted = "committed"
	TxStatusFailed    = "failed"

	// Policies for a second request arriving while the first holder of an
	// idempotency key is still pending.
	DuplicatePolicyWait = "wait"
	DuplicatePolicyFail = "fail"
)

// ValidTxType reports whether t is one of the ledger transaction types.
func ValidTxType(t string) bool {
	switch t {
	case TxTypeTopUp, TxTypePurchase, TxTypeBonus, TxTypeRefund:
		return true
	}
	return false
}
