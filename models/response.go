package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the normalized outcome of a gateway operation.
type Status string

const (
	// StatusApproved means the gateway accepted the operation.
	StatusApproved Status = "APPROVED"

	// StatusDeclined means the gateway processed the request but refused it.
	StatusDeclined Status = "DECLINED"

	// StatusPending means the operation needs a further step to finish,
	// e.g. a 3-D Secure sale waiting for cardholder authentication.
	StatusPending Status = "PENDING"
)

// TransactionResult is the normalized response shape shared by every
// operation. Gateway responses differ wildly (result objects, bare numbers,
// tabular fragments); per-operation adapters flatten them all into this.
type TransactionResult struct {
	// Status is the normalized outcome.
	Status Status

	// TransactionRef is the gateway-assigned transaction reference.
	// Empty for operations that do not create a transaction.
	TransactionRef string

	// OrderRef is the gateway-side reference for the merchant order id.
	OrderRef string

	// Code is the gateway result code (> 0 approved, <= 0 declined/error).
	Code int64

	// Message is the human-readable gateway result text.
	Message string

	// MDToken is the 3-D Secure continuation token. Set only when a
	// redirect-authenticated sale was initiated.
	MDToken string

	// RedirectURL is the issuing bank's authentication page. Set only
	// together with MDToken.
	RedirectURL string

	// Raw is the unparsed SOAP response body, retained for audit logging.
	Raw []byte
}

// Approved reports whether the gateway accepted the operation.
func (r *TransactionResult) Approved() bool {
	return r.Status == StatusApproved
}

// VaultToken describes a card stored in the gateway vault.
type VaultToken struct {
	// Token is the opaque 36-character identifier.
	Token string

	// DisplayName is the caller-assigned label.
	DisplayName string

	// OwnerRef is the transaction reference the card was first stored under.
	OwnerRef string

	// MaskedNumber is the card number with all but the first six and last
	// four digits replaced.
	MaskedNumber string
}

// BinInfo is the issuing-bank metadata for a card prefix.
type BinInfo struct {
	BIN          string
	BankName     string
	BankCode     string
	Brand        string
	CardKind     string // CREDIT or DEBIT
	Installments bool   // whether the program supports installments
}

// InstallmentRate is one row of the merchant's installment-rate table.
type InstallmentRate struct {
	Installments int
	MerchantRate decimal.Decimal
	CustomerRate decimal.Decimal
}

// TransactionStatus is the current gateway-side state of a transaction.
type TransactionStatus struct {
	OrderID        string
	TransactionRef string
	Status         Status
	Amount         decimal.Decimal
	NetAmount      decimal.Decimal
	ProcessedAt    time.Time
}

// SettlementDay is one day's aggregate in a settlement summary.
type SettlementDay struct {
	Date     time.Time
	Count    int
	Gross    decimal.Decimal
	Refunded decimal.Decimal
	Net      decimal.Decimal
}
