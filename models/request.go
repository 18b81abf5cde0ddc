package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SecurityMode selects how a sale is authenticated by the gateway.
type SecurityMode string

const (
	// ModeNonSecure charges the card directly, without cardholder authentication.
	ModeNonSecure SecurityMode = "NS"

	// Mode3D routes the cardholder through the issuing bank's 3-D Secure page
	// before the charge is finalized.
	Mode3D SecurityMode = "3D"
)

// Currency is an ISO 4217 alphabetic currency code accepted by the gateway.
type Currency string

const (
	CurrencyTRY Currency = "TRY"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// Card contains raw payment card details.
type Card struct {
	// HolderName is the cardholder name as embossed on the card.
	HolderName string

	// Number is the full 16-digit card number (PAN).
	Number string

	// ExpiryMonth is the two-digit expiration month (e.g. "09").
	ExpiryMonth string

	// ExpiryYear is the two- or four-digit expiration year (e.g. "27" or "2027").
	ExpiryYear string

	// CVV is the three-digit card verification value.
	CVV string
}

// SaleRequest is the input for a direct (non-3D) or 3-D Secure sale.
type SaleRequest struct {
	// OrderID is the merchant-side order identifier. It must be unique per
	// charge attempt; the gateway rejects replays of a processed id.
	OrderID string

	// Description is a free-form order note shown on gateway reports.
	Description string

	// Amount is the transaction amount.
	Amount decimal.Decimal

	// Total is the amount the cardholder is billed including installment
	// commission. When zero it defaults to Amount.
	Total decimal.Decimal

	// Installments is the installment count (0 or 1 = single payment).
	Installments int

	// Card holds the raw card details. Mutually exclusive with VaultToken.
	Card *Card

	// VaultToken references a previously stored card. Mutually exclusive
	// with Card.
	VaultToken string

	// ClientIP is the cardholder's IP address, forwarded for fraud checks.
	ClientIP string

	// ClientPhone is the cardholder's phone number: 10 digits, no leading
	// zero. Optional.
	ClientPhone string

	// Extra is a map of metadata slot (1-5) to a short free-form value,
	// echoed back on reports.
	Extra map[int]string
}

// CompleteRequest finishes a 3-D Secure sale after the cardholder returns
// from the issuing bank. Both fields come from the gateway's callback POST.
type CompleteRequest struct {
	// OrderID is the order identifier posted back by the gateway.
	OrderID string

	// MDToken is the continuation token issued when the sale was initiated.
	MDToken string
}

// CaptureRequest captures a prior pre-authorization.
type CaptureRequest struct {
	OrderID string
	Amount  decimal.Decimal
}

// VoidRequest releases a prior pre-authorization without capturing it.
type VoidRequest struct {
	OrderID string
}

// CancelRequest voids a same-day sale before settlement.
type CancelRequest struct {
	OrderID string
}

// RefundRequest refunds part or all of a settled transaction.
type RefundRequest struct {
	OrderID string
	Amount  decimal.Decimal
}

// ForeignSaleRequest is the input for a foreign-currency sale. FX sales are
// always single-installment.
type ForeignSaleRequest struct {
	OrderID     string
	Description string
	Amount      decimal.Decimal
	Total       decimal.Decimal
	Currency    Currency
	Card        *Card
	ClientIP    string
}

// StoreCardRequest tokenizes a card in the gateway vault.
type StoreCardRequest struct {
	Card *Card

	// DisplayName is the caller-chosen label for the stored card.
	DisplayName string

	// OwnerRef optionally links the token to the transaction that first
	// used the card.
	OwnerRef string
}

// ChargeCardRequest charges a vaulted card. Raw card data is never accepted
// on this path.
type ChargeCardRequest struct {
	// Token is the 36-character vault token returned by StoreCard.
	Token string

	OrderID      string
	Description  string
	Amount       decimal.Decimal
	Total        decimal.Decimal
	Installments int
	ClientIP     string
}

// DeleteCardRequest permanently invalidates a vault token.
type DeleteCardRequest struct {
	Token string
}

// BinLookupRequest looks up issuing-bank metadata for a card prefix.
type BinLookupRequest struct {
	// BIN is the first 6-8 digits of a card number.
	BIN string
}

// QueryRequest fetches the current status of a transaction by order id.
type QueryRequest struct {
	OrderID string
}

// ListTransactionsRequest lists processed transactions in a date range.
type ListTransactionsRequest struct {
	From time.Time
	To   time.Time
}

// SettlementRequest fetches the per-day settlement summary for a date range.
type SettlementRequest struct {
	From time.Time
	To   time.Time
}

// ReceiptRequest e-mails the gateway receipt for a processed transaction.
type ReceiptRequest struct {
	// TransactionRef is the gateway-assigned transaction reference.
	TransactionRef string

	// Email is the recipient address.
	Email string
}
