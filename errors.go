package sanalpos_soap

import (
	"fmt"
	"strings"

	"github.com/eticaret/sanalpos_soap_sdk/models"
)

// Violation is a single schema-validation failure.
type Violation struct {
	// Field is the offending request field.
	Field string

	// Message describes the violated constraint.
	Message string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// ValidationError reports every constraint a request violated. Callers need
// the complete list at once to render form errors, so validation never stops
// at the first failure. Nothing is sent over the wire when this is returned.
type ValidationError struct {
	Op         string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("sanalpos_soap: %s validation failed: %s", e.Op, strings.Join(msgs, "; "))
}

// SignatureError means the signer was handed incomplete inputs. Unreachable
// when validation ran first; surfacing it indicates a programming error.
type SignatureError struct {
	Op     string
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("sanalpos_soap: %s signature: %s", e.Op, e.Reason)
}

// GatewayFault means the gateway responded but declined or errored. The raw
// response body is always attached for audit logging, never discarded.
type GatewayFault struct {
	Op      string
	Status  models.Status
	Code    int64
	Message string
	RawBody []byte
}

func (e *GatewayFault) Error() string {
	return fmt.Sprintf("sanalpos_soap: %s gateway fault [%d]: %s", e.Op, e.Code, e.Message)
}

// NetworkError is a transport-level failure, including timeouts. A timed-out
// charge must never be assumed successful; re-query the transaction status by
// order id before retrying with a fresh order id.
type NetworkError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("sanalpos_soap: %s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sanalpos_soap: %s network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ThreeDSecureError means a 3-D Secure callback did not match the recorded
// session, or the session was driven through an illegal state transition.
// Mismatches are a security boundary against callback forgery, not a
// convenience check.
type ThreeDSecureError struct {
	OrderID string
	Reason  string
}

func (e *ThreeDSecureError) Error() string {
	return fmt.Sprintf("sanalpos_soap: 3d secure order %q: %s", e.OrderID, e.Reason)
}

// TokenNotFoundError means a vault operation referenced a token that was
// never issued or has been deleted. No financial side effect occurred.
type TokenNotFoundError struct {
	Token string
}

func (e *TokenNotFoundError) Error() string {
	return fmt.Sprintf("sanalpos_soap: vault token %q not found", e.Token)
}
