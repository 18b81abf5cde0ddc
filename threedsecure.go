package sanalpos_soap

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/eticaret/sanalpos_soap_sdk/models"
)

// SessionState is the lifecycle state of a 3-D Secure session.
type SessionState string

const (
	// StateInitiated: the gateway issued an MD token and redirect URL.
	StateInitiated SessionState = "INITIATED"

	// StateRedirected: the cardholder was sent to the bank's page.
	StateRedirected SessionState = "REDIRECTED"

	// StateCallbackReceived: the gateway posted the callback back to us.
	StateCallbackReceived SessionState = "CALLBACK_RECEIVED"

	// StateCompleted: the charge was finalized. Terminal.
	StateCompleted SessionState = "COMPLETED"

	// StateFailed: authentication or completion failed. Terminal.
	StateFailed SessionState = "FAILED"
)

// RedirectCallback is the payload the gateway posts to the configured
// success or error URL after cardholder authentication.
type RedirectCallback struct {
	// OrderID echoes the merchant order identifier.
	OrderID string

	// MDToken is the continuation token, which must match the one issued
	// at initiation byte for byte.
	MDToken string
}

// ThreeDSession correlates an initiated 3-D Secure sale with its eventual
// callback. It carries only the identifiers needed for that correlation;
// the gateway holds all transaction state. The callback arrives on a
// different goroutine than the initiation, so state is mutex-guarded.
//
// Completion is rejected outright when the callback's MD token or order id
// does not exactly match the values recorded at initiation: this is the
// defense against forged callbacks, not a convenience check. Terminal
// states are final; a session cannot be reopened or replayed.
type ThreeDSession struct {
	mu sync.Mutex

	orderID     string
	mdToken     string
	redirectURL string
	state       SessionState

	client *Client
}

// StartSale3D initiates a redirect-authenticated sale and returns the
// session tracking it. The caller must send the cardholder to
// Session.RedirectURL and record the redirect with MarkRedirected.
func (c *Client) StartSale3D(ctx context.Context, req models.SaleRequest) (*ThreeDSession, error) {
	result, err := c.Sale3D(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.MDToken == "" || result.RedirectURL == "" {
		return nil, &ThreeDSecureError{
			OrderID: req.OrderID,
			Reason:  "gateway did not issue a continuation token",
		}
	}

	c.logger.Info("3-D Secure session initiated",
		zap.String("order_id", req.OrderID),
	)

	return &ThreeDSession{
		orderID:     req.OrderID,
		mdToken:     result.MDToken,
		redirectURL: result.RedirectURL,
		state:       StateInitiated,
		client:      c,
	}, nil
}

// OrderID returns the merchant order identifier recorded at initiation.
func (s *ThreeDSession) OrderID() string {
	return s.orderID
}

// RedirectURL returns the issuing bank's authentication page URL.
func (s *ThreeDSession) RedirectURL() string {
	return s.redirectURL
}

// State returns the current lifecycle state.
func (s *ThreeDSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkRedirected records that the cardholder was sent to the bank's page.
func (s *ThreeDSession) MarkRedirected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitiated {
		return &ThreeDSecureError{OrderID: s.orderID, Reason: "session is not in Initiated state"}
	}
	s.state = StateRedirected
	return nil
}

// HandleCallback verifies the gateway's callback against the session. On a
// match the session advances to CallbackReceived; on a mismatch it is
// rejected and the session state is left untouched, so a forged callback
// can never push a session toward Completed.
func (s *ThreeDSession) HandleCallback(cb RedirectCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCompleted, StateFailed:
		return &ThreeDSecureError{OrderID: s.orderID, Reason: "session already finished"}
	case StateInitiated, StateRedirected:
	default:
		return &ThreeDSecureError{OrderID: s.orderID, Reason: "callback already received"}
	}

	if cb.MDToken != s.mdToken {
		return &ThreeDSecureError{OrderID: s.orderID, Reason: "continuation token does not match session"}
	}
	if cb.OrderID != s.orderID {
		return &ThreeDSecureError{OrderID: s.orderID, Reason: "order id does not match session"}
	}

	s.state = StateCallbackReceived
	return nil
}

// Complete finalizes the charge after a verified callback. Gateway approval
// moves the session to Completed and a decline to Failed, both terminal. A
// transport failure keeps the session in CallbackReceived so the caller can
// query the transaction and retry.
func (s *ThreeDSession) Complete(ctx context.Context) (*models.TransactionResult, error) {
	s.mu.Lock()
	if s.state != StateCallbackReceived {
		state := s.state
		s.mu.Unlock()
		return nil, &ThreeDSecureError{
			OrderID: s.orderID,
			Reason:  "cannot complete from state " + string(state),
		}
	}
	s.mu.Unlock()

	result, err := s.client.Complete3D(ctx, models.CompleteRequest{
		OrderID: s.orderID,
		MDToken: s.mdToken,
	})

	// The lock is not held across the network call, so a concurrent
	// Complete may have finished the session meanwhile. Terminal states are
	// final: commit a transition only if the session is still waiting, so a
	// late decline can never overwrite an already-committed Completed.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// A transport failure leaves the outcome ambiguous; keep the
		// session completable so the caller can re-query and retry.
		// A gateway decline is final.
		var netErr *NetworkError
		if !errors.As(err, &netErr) && s.state == StateCallbackReceived {
			s.state = StateFailed
		}
		return nil, err
	}
	if s.state == StateCallbackReceived {
		s.state = StateCompleted
	}
	return result, nil
}
