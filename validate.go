package sanalpos_soap

import (
	"net"
	"net/mail"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eticaret/sanalpos_soap_sdk/models"
)

// One rule set per operation, applied before any other pipeline step runs.
// A rule set collects every violated constraint instead of failing fast:
// checkout forms need the full list to render errors in one pass.

const (
	maxOrderIDLen         = 50
	maxOrderIDLenRedirect = 36
	maxShortTextLen       = 100
	maxLongTextLen        = 256
	maxInstallments       = 99
	vaultTokenLen         = 36
)

var (
	panPattern    = regexp.MustCompile(`^\d{16}$`)
	cvvPattern    = regexp.MustCompile(`^\d{3}$`)
	monthPattern  = regexp.MustCompile(`^(0[1-9]|1[0-2])$`)
	yearPattern   = regexp.MustCompile(`^(\d{2}|\d{4})$`)
	binPattern    = regexp.MustCompile(`^\d{6,8}$`)
	digitsPattern = regexp.MustCompile(`^\d+$`)
)

var validCurrencies = map[models.Currency]bool{
	models.CurrencyTRY: true,
	models.CurrencyUSD: true,
	models.CurrencyEUR: true,
	models.CurrencyGBP: true,
}

type violations []Violation

func (v *violations) add(field, message string) {
	*v = append(*v, Violation{Field: field, Message: message})
}

// err materializes the collected violations, or nil when the request is clean.
func (v violations) err(op string) error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Op: op, Violations: v}
}

func (v *violations) checkOrderID(orderID string, maxLen int) {
	if orderID == "" {
		v.add("OrderID", "is required")
		return
	}
	if len(orderID) > maxLen {
		v.add("OrderID", "exceeds maximum length")
	}
}

func (v *violations) checkCard(card *models.Card) {
	if card.HolderName == "" {
		v.add("Card.HolderName", "is required")
	} else if len(card.HolderName) > maxShortTextLen {
		v.add("Card.HolderName", "exceeds maximum length")
	}
	if !panPattern.MatchString(card.Number) {
		v.add("Card.Number", "must be exactly 16 digits")
	} else if !luhnValid(card.Number) {
		v.add("Card.Number", "fails checksum")
	}
	if !monthPattern.MatchString(card.ExpiryMonth) {
		v.add("Card.ExpiryMonth", "must be a two-digit month")
	}
	if !yearPattern.MatchString(card.ExpiryYear) {
		v.add("Card.ExpiryYear", "must be a two- or four-digit year")
	}
	if !cvvPattern.MatchString(card.CVV) {
		v.add("Card.CVV", "must be exactly 3 digits")
	}
}

// checkPaymentSource enforces that card data and vault token are mutually
// exclusive and that exactly one is present on a charge-type request.
func (v *violations) checkPaymentSource(card *models.Card, token string) {
	switch {
	case card != nil && token != "":
		v.add("Card", "card data and vault token are mutually exclusive")
	case card == nil && token == "":
		v.add("Card", "either card data or a vault token is required")
	case card != nil:
		v.checkCard(card)
	default:
		v.checkToken(token)
	}
}

func (v *violations) checkToken(token string) {
	if len(token) != vaultTokenLen {
		v.add("Token", "must be a 36-character vault token")
		return
	}
	if _, err := uuid.Parse(token); err != nil {
		v.add("Token", "is not a valid vault token")
	}
}

func (v *violations) checkAmount(field string, amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		v.add(field, "must be positive")
	}
}

func (v *violations) checkInstallments(n int) {
	if n < 0 || n > maxInstallments {
		v.add("Installments", "must be between 0 and 99")
	}
}

func (v *violations) checkClientIP(ip string) {
	if ip != "" && net.ParseIP(ip) == nil {
		v.add("ClientIP", "is not a valid IP address")
	}
}

func (v *violations) checkPhone(phone string) {
	if phone != "" && !validPhone(phone) {
		v.add("ClientPhone", "must be 10 digits without a leading zero")
	}
}

func (v *violations) checkText(field, value string, maxLen int) {
	if len(value) > maxLen {
		v.add(field, "exceeds maximum length")
	}
}

func (v *violations) checkExtra(extra map[int]string) {
	for slot, value := range extra {
		if slot < 1 || slot > 5 {
			v.add("Extra", "slots must be numbered 1 through 5")
			break
		}
		if len(value) > maxShortTextLen {
			v.add("Extra", "values exceed maximum length")
			break
		}
	}
}

func (v *violations) checkURL(field, raw string) {
	if len(raw) > maxLongTextLen {
		v.add(field, "exceeds maximum length")
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		v.add(field, "must be an absolute URL")
	}
}

func (v *violations) checkRange(from, to time.Time) {
	if from.IsZero() || to.IsZero() {
		v.add("From", "date range is required")
		return
	}
	if to.Before(from) {
		v.add("To", "must not precede From")
	}
}

func validateSale(op string, req models.SaleRequest, mode models.SecurityMode, errorURL, successURL string) error {
	var v violations
	maxLen := maxOrderIDLen
	if mode == models.Mode3D {
		maxLen = maxOrderIDLenRedirect
		v.checkURL("ErrorURL", errorURL)
		v.checkURL("SuccessURL", successURL)
	}
	v.checkOrderID(req.OrderID, maxLen)
	v.checkPaymentSource(req.Card, req.VaultToken)
	v.checkAmount("Amount", req.Amount)
	if !req.Total.IsZero() && req.Total.Sign() <= 0 {
		v.add("Total", "must be positive")
	}
	v.checkInstallments(req.Installments)
	v.checkClientIP(req.ClientIP)
	v.checkPhone(req.ClientPhone)
	v.checkText("Description", req.Description, maxLongTextLen)
	v.checkExtra(req.Extra)
	return v.err(op)
}

func validatePreAuth(req models.SaleRequest) error {
	var v violations
	v.checkOrderID(req.OrderID, maxOrderIDLen)
	v.checkPaymentSource(req.Card, req.VaultToken)
	v.checkAmount("Amount", req.Amount)
	v.checkInstallments(req.Installments)
	v.checkClientIP(req.ClientIP)
	v.checkText("Description", req.Description, maxLongTextLen)
	v.checkExtra(req.Extra)
	return v.err("PreAuth")
}

func validateOrderAmount(op, orderID string, amount decimal.Decimal) error {
	var v violations
	v.checkOrderID(orderID, maxOrderIDLen)
	v.checkAmount("Amount", amount)
	return v.err(op)
}

func validateOrderOnly(op, orderID string) error {
	var v violations
	v.checkOrderID(orderID, maxOrderIDLen)
	return v.err(op)
}

func validateComplete(req models.CompleteRequest) error {
	var v violations
	v.checkOrderID(req.OrderID, maxOrderIDLenRedirect)
	if req.MDToken == "" {
		v.add("MDToken", "is required")
	}
	return v.err("Complete3D")
}

func validateForeignSale(req models.ForeignSaleRequest) error {
	var v violations
	v.checkOrderID(req.OrderID, maxOrderIDLen)
	if req.Card == nil {
		v.add("Card", "is required")
	} else {
		v.checkCard(req.Card)
	}
	v.checkAmount("Amount", req.Amount)
	if !validCurrencies[req.Currency] {
		v.add("Currency", "must be one of TRY, USD, EUR, GBP")
	}
	v.checkClientIP(req.ClientIP)
	v.checkText("Description", req.Description, maxLongTextLen)
	return v.err("ForeignSale")
}

func validateStoreCard(req models.StoreCardRequest) error {
	var v violations
	if req.Card == nil {
		v.add("Card", "is required")
	} else {
		v.checkCard(req.Card)
	}
	if req.DisplayName == "" {
		v.add("DisplayName", "is required")
	} else {
		v.checkText("DisplayName", req.DisplayName, maxShortTextLen)
	}
	v.checkText("OwnerRef", req.OwnerRef, maxShortTextLen)
	return v.err("StoreCard")
}

func validateChargeCard(req models.ChargeCardRequest) error {
	var v violations
	v.checkToken(req.Token)
	v.checkOrderID(req.OrderID, maxOrderIDLen)
	v.checkAmount("Amount", req.Amount)
	v.checkInstallments(req.Installments)
	v.checkClientIP(req.ClientIP)
	v.checkText("Description", req.Description, maxLongTextLen)
	return v.err("ChargeCard")
}

func validateDeleteCard(req models.DeleteCardRequest) error {
	var v violations
	v.checkToken(req.Token)
	return v.err("DeleteCard")
}

func validateBinLookup(req models.BinLookupRequest) error {
	var v violations
	if !binPattern.MatchString(req.BIN) {
		v.add("BIN", "must be 6 to 8 digits")
	}
	return v.err("BinLookup")
}

func validateDateRange(op string, from, to time.Time) error {
	var v violations
	v.checkRange(from, to)
	return v.err(op)
}

func validateReceipt(req models.ReceiptRequest) error {
	var v violations
	if req.TransactionRef == "" {
		v.add("TransactionRef", "is required")
	} else if !digitsPattern.MatchString(req.TransactionRef) {
		v.add("TransactionRef", "must be numeric")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		v.add("Email", "is not a valid address")
	}
	return v.err("SendReceipt")
}
