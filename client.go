package sanalpos_soap

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eticaret/sanalpos_soap_sdk/models"
)

// Gateway result code for a vault token that was never issued or has been
// deleted. Mapped to *TokenNotFoundError instead of a generic fault.
const wireCodeTokenNotFound = -101

// readOnlyRetries bounds transport retries for idempotent query operations.
const readOnlyRetries = 2

// Client talks to the virtual-POS SOAP gateway. It is safe for concurrent
// use; the only shared mutable state is the per-endpoint connection cache.
type Client struct {
	cfg    Config
	conns  *connManager
	logger *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger attaches a structured logger. Card numbers are always masked
// before they reach a log line. Default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient overrides the HTTP client used for every endpoint, e.g. to
// install a custom transport or proxy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.conns.httpClient = hc
	}
}

// NewClient validates the configuration and prepares a gateway client.
// Connections to the individual service endpoints are established lazily on
// first use.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	c.conns = newConnManager(cfg.DefaultBaseURL(), cfg.timeout(), c.logger)
	for _, opt := range opts {
		opt(c)
	}
	c.conns.logger = c.logger
	return c, nil
}

// signedRequest is a fully prepared outbound call: validated payload, SOAP
// action, target endpoint and retry class. It is only ever built by the
// operation bindings, so the signature always reflects the exact fields sent.
type signedRequest struct {
	op       string
	endpoint endpoint
	payload  credentialed
	readOnly bool
}

// send runs the tail of the pipeline: inject credentials, acquire the
// endpoint connection, issue the call and peel the response down to the
// per-operation result element. Read-only requests are retried on transport
// failure with bounded exponential backoff; charge-type requests never are,
// since a silently retried charge can double-bill.
func (c *Client) send(ctx context.Context, req signedRequest) (*etree.Element, []byte, error) {
	// Credentials are attached last, after validation and signing, so those
	// steps only ever see the caller's actual intent.
	req.payload.setCredentials(&wireAuth{
		ClientCode: c.cfg.ClientCode,
		Username:   c.cfg.Username,
		Password:   c.cfg.Password,
	}, c.cfg.GUID)

	payload, err := marshalEnvelope(req.payload)
	if err != nil {
		return nil, nil, fmt.Errorf("sanalpos_soap: %s: %w", req.op, err)
	}

	conn, err := c.conns.get(ctx, req.endpoint)
	if err != nil {
		return nil, nil, err
	}

	action := tnsNS + req.op
	var status int
	var body []byte

	call := func() error {
		var callErr error
		status, body, callErr = conn.post(ctx, req.op, action, payload)
		if callErr == nil {
			return nil
		}
		if netErr, ok := callErr.(*NetworkError); ok && req.readOnly && !netErr.Timeout {
			return callErr // retryable
		}
		return backoff.Permanent(callErr)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), readOnlyRetries), ctx)
	if !req.readOnly {
		policy = backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	if err := backoff.Retry(call, policy); err != nil {
		c.logger.Warn("gateway call failed",
			zap.String("op", req.op),
			zap.Error(err),
		)
		return nil, nil, err
	}

	opResp, fault, err := parseResponseBody(body)
	if err != nil {
		return nil, body, &GatewayFault{
			Op:      req.op,
			Status:  models.StatusDeclined,
			Message: err.Error(),
			RawBody: body,
		}
	}
	if fault != nil {
		return nil, body, &GatewayFault{
			Op:      req.op,
			Status:  models.StatusDeclined,
			Message: fmt.Sprintf("[%s] %s", fault.code, fault.reason),
			RawBody: body,
		}
	}
	if status != http.StatusOK {
		return nil, body, &GatewayFault{
			Op:      req.op,
			Status:  models.StatusDeclined,
			Message: fmt.Sprintf("unexpected HTTP %d", status),
			RawBody: body,
		}
	}

	return resultElement(opResp), body, nil
}

// normalizeResult adapts the common result-object response shape into a
// TransactionResult. Gateway convention: Code > 0 approved, Code <= 0
// declined or errored.
func normalizeResult(op string, el *etree.Element, raw []byte) (*models.TransactionResult, error) {
	code, _ := strconv.ParseInt(childText(el, "Code"), 10, 64)
	result := &models.TransactionResult{
		Code:           code,
		Message:        childText(el, "Message"),
		TransactionRef: childText(el, "TransactionRef"),
		OrderRef:       childText(el, "OrderRef"),
		MDToken:        childText(el, "MD"),
		RedirectURL:    childText(el, "RedirectURL"),
		Raw:            raw,
	}

	if code <= 0 {
		return nil, &GatewayFault{
			Op:      op,
			Status:  models.StatusDeclined,
			Code:    code,
			Message: result.Message,
			RawBody: raw,
		}
	}

	if result.MDToken != "" {
		result.Status = models.StatusPending
	} else {
		result.Status = models.StatusApproved
	}
	return result, nil
}

// totalOrAmount applies the default that a zero Total bills exactly Amount.
func totalOrAmount(amount, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return amount
	}
	return total
}

func extraOrNil(extra map[int]string) *wireExtra {
	if len(extra) == 0 {
		return nil
	}
	return &wireExtra{Fields: extra}
}

// Sale performs a direct, non-3D sale charge. The request must carry either
// raw card data or a vault token, never both.
func (c *Client) Sale(ctx context.Context, req models.SaleRequest) (*models.TransactionResult, error) {
	return c.sale(ctx, "Sale", req, models.ModeNonSecure)
}

// Sale3D initiates a 3-D Secure sale. On success the result is Pending and
// carries the MD continuation token together with the issuing bank's
// redirect URL. Use a ThreeDSession to correlate the eventual callback.
func (c *Client) Sale3D(ctx context.Context, req models.SaleRequest) (*models.TransactionResult, error) {
	// The wire element stays Sale; the op label distinguishes the two
	// entry points in errors and logs.
	return c.sale(ctx, "Sale3D", req, models.Mode3D)
}

func (c *Client) sale(ctx context.Context, op string, req models.SaleRequest, mode models.SecurityMode) (*models.TransactionResult, error) {
	if err := validateSale(op, req, mode, c.cfg.ErrorURL, c.cfg.SuccessURL); err != nil {
		return nil, err
	}

	amount := encodeAmount(req.Amount)
	total := encodeAmount(totalOrAmount(req.Amount, req.Total))

	var signature string
	var err error
	if mode == models.Mode3D {
		signature, err = signFields(op, c.cfg.ClientCode, c.cfg.GUID, amount, total, req.OrderID,
			c.cfg.ErrorURL, c.cfg.SuccessURL)
	} else {
		signature, err = signFields(op, c.cfg.ClientCode, c.cfg.GUID, amount, total, req.OrderID)
	}
	if err != nil {
		return nil, err
	}

	w := &wireSale{
		Mode:         string(mode),
		OrderID:      req.OrderID,
		Description:  req.Description,
		Amount:       amount,
		Total:        total,
		Installments: req.Installments,
		ClientIP:     req.ClientIP,
		ClientPhone:  req.ClientPhone,
		Extra:        extraOrNil(req.Extra),
		Signature:    signature,
	}
	if req.Card != nil {
		w.CardHolder = req.Card.HolderName
		w.CardNumber = req.Card.Number
		w.ExpiryMonth = req.Card.ExpiryMonth
		w.ExpiryYear = req.Card.ExpiryYear
		w.CVV = req.Card.CVV
	} else {
		w.Token = req.VaultToken
	}
	if mode == models.Mode3D {
		w.ErrorURL = c.cfg.ErrorURL
		w.SuccessURL = c.cfg.SuccessURL
	}

	c.logSale(op, req, mode)

	el, raw, err := c.send(ctx, signedRequest{op: "Sale", endpoint: endpointPayment, payload: w})
	if err != nil {
		return nil, err
	}
	return normalizeResult(op, el, raw)
}

func (c *Client) logSale(op string, req models.SaleRequest, mode models.SecurityMode) {
	fields := []zap.Field{
		zap.String("order_id", req.OrderID),
		zap.String("mode", string(mode)),
		zap.String("amount", encodeAmount(req.Amount)),
		zap.Int("installments", req.Installments),
	}
	if req.Card != nil {
		fields = append(fields, zap.String("card", maskCard(req.Card.Number)))
	} else {
		fields = append(fields, zap.String("token", req.VaultToken))
	}
	c.logger.Info("processing "+op, fields...)
}

// Complete3D finishes a 3-D Secure sale with the continuation token the
// gateway posted back after cardholder authentication. Callers that tracked
// the initiation with a ThreeDSession should go through Session.Complete,
// which enforces the callback-matching boundary first.
func (c *Client) Complete3D(ctx context.Context, req models.CompleteRequest) (*models.TransactionResult, error) {
	if err := validateComplete(req); err != nil {
		return nil, err
	}

	w := &wireComplete3D{
		OrderID: req.OrderID,
		MDToken: req.MDToken,
	}

	c.logger.Info("completing 3-D Secure sale", zap.String("order_id", req.OrderID))

	el, raw, err := c.send(ctx, signedRequest{op: "Complete3D", endpoint: endpointPayment, payload: w})
	if err != nil {
		return nil, err
	}
	return normalizeResult("Complete3D", el, raw)
}

// PreAuth reserves funds without capturing them. Capture or VoidPreAuth
// settles the reservation later.
func (c *Client) PreAuth(ctx context.Context, req models.SaleRequest) (*models.TransactionResult, error) {
	if err := validatePreAuth(req); err != nil {
		return nil, err
	}

	w := &wirePreAuth{
		OrderID:      req.OrderID,
		Description:  req.Description,
		Amount:       encodeAmount(req.Amount),
		Total:        encodeAmount(totalOrAmount(req.Amount, req.Total)),
		Installments: req.Installments,
		ClientIP:     req.ClientIP,
		Extra:        extraOrNil(req.Extra),
	}
	if req.Card != nil {
		w.CardHolder = req.Card.HolderName
		w.CardNumber = req.Card.Number
		w.ExpiryMonth = req.Card.ExpiryMonth
		w.ExpiryYear = req.Card.ExpiryYear
		w.CVV = req.Card.CVV
	} else {
		w.Token = req.VaultToken
	}

	c.logger.Info("processing PreAuth", zap.String("order_id", req.OrderID))

	el, raw, err := c.send(ctx, signedRequest{op: "PreAuth", endpoint: endpointPayment, payload: w})
	if err != nil {
		return nil, err
	}
	return normalizeResult("PreAuth", el, raw)
}

// Capture captures a prior pre-authorization, in part or in full.
func (c *Client) Capture(ctx context.Context, req models.CaptureRequest) (*models.TransactionResult, error) {
	if err := validateOrderAmount("Capture", req.OrderID, req.Amount); err != nil {
		return nil, err
	}

	w := &wireCapture{OrderID: req.OrderID, Amount: encodeAmount(req.Amount)}

	el, raw, err := c.send(ctx, signedRequest{op: "Capture", endpoint: endpointPayment, payload: w})
	if err != nil {
		return nil, err
	}
	return normalizeResult("Capture", el, raw)
}

// VoidPreAuth releases a prior pre-authorization without capturing it.
func (c *Client) VoidPreAuth(ctx context.Context, req models.VoidRequest) (*models.TransactionResult, error) {
	if err := validateOrderOnly("VoidPreAuth", req.OrderID); err != nil {
		return nil, err
	}

	w := &wireVoidPreAuth{OrderID: req.OrderID}

	el, raw, err := c.send(ctx, signedRequest{op: "VoidPreAuth", endpoint: endpointPayment, payload: w})
	if err != nil {
		return nil, err
	}
	return normalizeResult("VoidPreAuth", el, raw)
}

// Cancel voids a same-day sale before it settles.
func (c *Client) Cancel(ctx context.Context, req models.CancelRequest) (*models.TransactionResult, error) {
	if err := validateOrderOnly("Cancel", req.OrderID); err != nil {
		return nil, err
	}

	w := &wireCancel{OrderID: req.OrderID}

	el, raw, err := c.send(ctx, signedRequest{op: "Cancel", endpoint: endpointPayment, payload: w})
	if err != nil {
		return nil, err
	}
	return normalizeResult("Cancel", el, raw)
}

// Refund refunds part or all of a settled transaction.
func (c *Client) Refund(ctx context.Context, req models.RefundRequest) (*models.TransactionResult, error) {
	if err := validateOrderAmount("Refund", req.OrderID, req.Amount); err != nil {
		return nil, err
	}

	w := &wireRefund{OrderID: req.OrderID, Amount: encodeAmount(req.Amount)}

	c.logger.Info("processing Refund",
		zap.String("order_id", req.OrderID),
		zap.String("amount", w.Amount),
	)

	el, raw, err := c.send(ctx, signedRequest{op: "Refund", endpoint: endpointPayment, payload: w})
	if err != nil {
		return nil, err
	}
	return normalizeResult("Refund", el, raw)
}

// ForeignSale charges a card in a foreign currency. FX sales are signed and
// always single-installment.
func (c *Client) ForeignSale(ctx context.Context, req models.ForeignSaleRequest) (*models.TransactionResult, error) {
	if err := validateForeignSale(req); err != nil {
		return nil, err
	}

	amount := encodeAmount(req.Amount)
	total := encodeAmount(totalOrAmount(req.Amount, req.Total))

	signature, err := signFields("ForeignSale", c.cfg.ClientCode, c.cfg.GUID, amount, total, req.OrderID)
	if err != nil {
		return nil, err
	}

	w := &wireForeignSale{
		OrderID:     req.OrderID,
		Description: req.Description,
		Amount:      amount,
		Total:       total,
		Currency:    string(req.Currency),
		CardHolder:  req.Card.HolderName,
		CardNumber:  req.Card.Number,
		ExpiryMonth: req.Card.ExpiryMonth,
		ExpiryYear:  req.Card.ExpiryYear,
		CVV:         req.Card.CVV,
		ClientIP:    req.ClientIP,
		Signature:   signature,
	}

	c.logger.Info("processing ForeignSale",
		zap.String("order_id", req.OrderID),
		zap.String("currency", string(req.Currency)),
		zap.String("card", maskCard(req.Card.Number)),
	)

	el, raw, err := c.send(ctx, signedRequest{op: "ForeignSale", endpoint: endpointPayment, payload: w})
	if err != nil {
		return nil, err
	}
	return normalizeResult("ForeignSale", el, raw)
}

// BinLookup fetches issuing-bank metadata for a 6-8 digit card prefix.
func (c *Client) BinLookup(ctx context.Context, req models.BinLookupRequest) (*models.BinInfo, error) {
	if err := validateBinLookup(req); err != nil {
		return nil, err
	}

	w := &wireBinLookup{BIN: req.BIN}

	el, raw, err := c.send(ctx, signedRequest{op: "BinLookup", endpoint: endpointReporting, payload: w, readOnly: true})
	if err != nil {
		return nil, err
	}
	if _, err := normalizeResult("BinLookup", el, raw); err != nil {
		return nil, err
	}

	brand := childText(el, "Brand")
	if brand == "" {
		brand = DetectCardBrand(req.BIN)
	}
	return &models.BinInfo{
		BIN:          req.BIN,
		BankName:     childText(el, "BankName"),
		BankCode:     childText(el, "BankCode"),
		Brand:        brand,
		CardKind:     childText(el, "CardKind"),
		Installments: strings.EqualFold(childText(el, "Installments"), "true"),
	}, nil
}

// InstallmentRates fetches the merchant's installment-rate table.
func (c *Client) InstallmentRates(ctx context.Context) ([]models.InstallmentRate, error) {
	w := &wireInstallmentRates{}

	el, raw, err := c.send(ctx, signedRequest{op: "InstallmentRates", endpoint: endpointReporting, payload: w, readOnly: true})
	if err != nil {
		return nil, err
	}
	if _, err := normalizeResult("InstallmentRates", el, raw); err != nil {
		return nil, err
	}

	var rates []models.InstallmentRate
	if list := findChildLocal(el, "Rates"); list != nil {
		for _, row := range list.ChildElements() {
			n, err := strconv.Atoi(childText(row, "Installments"))
			if err != nil {
				continue
			}
			merchant, err := decodeAmount(childText(row, "MerchantRate"))
			if err != nil {
				return nil, &GatewayFault{Op: "InstallmentRates", Status: models.StatusDeclined, Message: err.Error(), RawBody: raw}
			}
			customer, err := decodeAmount(childText(row, "CustomerRate"))
			if err != nil {
				return nil, &GatewayFault{Op: "InstallmentRates", Status: models.StatusDeclined, Message: err.Error(), RawBody: raw}
			}
			rates = append(rates, models.InstallmentRate{
				Installments: n,
				MerchantRate: merchant,
				CustomerRate: customer,
			})
		}
	}
	return rates, nil
}

// QueryTransaction fetches the current gateway-side state of a transaction.
// This is the call to favor after any ambiguous outcome, e.g. a timed-out
// charge.
func (c *Client) QueryTransaction(ctx context.Context, req models.QueryRequest) (*models.TransactionStatus, error) {
	if err := validateOrderOnly("QueryTransaction", req.OrderID); err != nil {
		return nil, err
	}

	w := &wireQuery{OrderID: req.OrderID}

	el, raw, err := c.send(ctx, signedRequest{op: "QueryTransaction", endpoint: endpointReporting, payload: w, readOnly: true})
	if err != nil {
		return nil, err
	}
	if _, err := normalizeResult("QueryTransaction", el, raw); err != nil {
		return nil, err
	}
	return parseTransactionStatus("QueryTransaction", el, raw)
}

// ListTransactions lists processed transactions in a date range.
func (c *Client) ListTransactions(ctx context.Context, req models.ListTransactionsRequest) ([]models.TransactionStatus, error) {
	if err := validateDateRange("ListTransactions", req.From, req.To); err != nil {
		return nil, err
	}

	w := &wireListTransactions{
		From: encodeQueryTime(req.From),
		To:   encodeQueryTime(req.To),
	}

	el, raw, err := c.send(ctx, signedRequest{op: "ListTransactions", endpoint: endpointReporting, payload: w, readOnly: true})
	if err != nil {
		return nil, err
	}
	if _, err := normalizeResult("ListTransactions", el, raw); err != nil {
		return nil, err
	}

	var statuses []models.TransactionStatus
	if list := findChildLocal(el, "Transactions"); list != nil {
		for _, row := range list.ChildElements() {
			status, err := parseTransactionStatus("ListTransactions", row, raw)
			if err != nil {
				return nil, err
			}
			statuses = append(statuses, *status)
		}
	}
	return statuses, nil
}

// SettlementSummary fetches the per-day settlement aggregates for a date
// range.
func (c *Client) SettlementSummary(ctx context.Context, req models.SettlementRequest) ([]models.SettlementDay, error) {
	if err := validateDateRange("SettlementSummary", req.From, req.To); err != nil {
		return nil, err
	}

	w := &wireSettlement{
		From: encodeQueryTime(req.From),
		To:   encodeQueryTime(req.To),
	}

	el, raw, err := c.send(ctx, signedRequest{op: "SettlementSummary", endpoint: endpointReporting, payload: w, readOnly: true})
	if err != nil {
		return nil, err
	}
	if _, err := normalizeResult("SettlementSummary", el, raw); err != nil {
		return nil, err
	}

	var days []models.SettlementDay
	if list := findChildLocal(el, "Days"); list != nil {
		for _, row := range list.ChildElements() {
			date, err := decodeQueryDate(childText(row, "Date"))
			if err != nil {
				return nil, &GatewayFault{Op: "SettlementSummary", Status: models.StatusDeclined, Message: err.Error(), RawBody: raw}
			}
			count, _ := strconv.Atoi(childText(row, "Count"))
			gross, err := decodeAmount(childText(row, "Gross"))
			if err != nil {
				return nil, &GatewayFault{Op: "SettlementSummary", Status: models.StatusDeclined, Message: err.Error(), RawBody: raw}
			}
			refunded, err := decodeAmount(childText(row, "Refunded"))
			if err != nil {
				return nil, &GatewayFault{Op: "SettlementSummary", Status: models.StatusDeclined, Message: err.Error(), RawBody: raw}
			}
			net, err := decodeAmount(childText(row, "Net"))
			if err != nil {
				return nil, &GatewayFault{Op: "SettlementSummary", Status: models.StatusDeclined, Message: err.Error(), RawBody: raw}
			}
			days = append(days, models.SettlementDay{
				Date:     date,
				Count:    count,
				Gross:    gross,
				Refunded: refunded,
				Net:      net,
			})
		}
	}
	return days, nil
}

// SendReceipt e-mails the gateway receipt for a processed transaction.
func (c *Client) SendReceipt(ctx context.Context, req models.ReceiptRequest) (*models.TransactionResult, error) {
	if err := validateReceipt(req); err != nil {
		return nil, err
	}

	w := &wireSendReceipt{TransactionRef: req.TransactionRef, Email: req.Email}

	el, raw, err := c.send(ctx, signedRequest{op: "SendReceipt", endpoint: endpointReporting, payload: w})
	if err != nil {
		return nil, err
	}
	return normalizeResult("SendReceipt", el, raw)
}

// parseTransactionStatus adapts a transaction-status fragment.
func parseTransactionStatus(op string, el *etree.Element, raw []byte) (*models.TransactionStatus, error) {
	amount, err := decodeAmount(childText(el, "Amount"))
	if err != nil {
		return nil, &GatewayFault{Op: op, Status: models.StatusDeclined, Message: err.Error(), RawBody: raw}
	}
	// NetAmount is absent until settlement.
	net := decimal.Zero
	if s := childText(el, "NetAmount"); s != "" {
		net, err = decodeAmount(s)
		if err != nil {
			return nil, &GatewayFault{Op: op, Status: models.StatusDeclined, Message: err.Error(), RawBody: raw}
		}
	}
	processedAt, err := decodeQueryTime(childText(el, "ProcessedAt"))
	if err != nil {
		return nil, &GatewayFault{Op: op, Status: models.StatusDeclined, Message: err.Error(), RawBody: raw}
	}
	return &models.TransactionStatus{
		OrderID:        childText(el, "OrderID"),
		TransactionRef: childText(el, "TransactionRef"),
		Status:         parseStatus(childText(el, "Status")),
		Amount:         amount,
		NetAmount:      net,
		ProcessedAt:    processedAt,
	}, nil
}

func parseStatus(s string) models.Status {
	switch strings.ToUpper(s) {
	case "APPROVED":
		return models.StatusApproved
	case "PENDING":
		return models.StatusPending
	default:
		return models.StatusDeclined
	}
}
