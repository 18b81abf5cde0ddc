package sanalpos_soap

import (
	"crypto/sha1"
	"encoding/base64"

	"golang.org/x/text/encoding/charmap"
)

// The gateway authenticates charge requests with a field-concatenation MAC:
// the ordered concatenation of {client code, session GUID, amount, total,
// order id, and for redirect flows the error and success callback URLs} is
// converted to the legacy ISO 8859-9 (Latin-5, Turkish) codepage, hashed with
// SHA-1 and base64-encoded. The field order and the codepage conversion are
// both part of the external contract: the legacy platform substitutes '?' for
// any rune the codepage cannot represent, and the digest must match its
// bytes exactly. Locked by fixed vectors in sign_test.go.

// legacyBytes converts s to ISO 8859-9, substituting '?' for unmappable runes.
func legacyBytes(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.ISO8859_9.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// signFields computes the request MAC over the ordered signature fields.
// urls is empty for non-redirect sales and {errorURL, successURL} for
// redirect-authenticated ones.
func signFields(op, clientCode, guid, amount, total, orderID string, urls ...string) (string, error) {
	for _, f := range []string{clientCode, guid, amount, total, orderID} {
		if f == "" {
			return "", &SignatureError{Op: op, Reason: "incomplete signature input"}
		}
	}
	for _, u := range urls {
		if u == "" {
			return "", &SignatureError{Op: op, Reason: "incomplete signature input"}
		}
	}

	var plain []byte
	plain = append(plain, legacyBytes(clientCode)...)
	plain = append(plain, legacyBytes(guid)...)
	plain = append(plain, legacyBytes(amount)...)
	plain = append(plain, legacyBytes(total)...)
	plain = append(plain, legacyBytes(orderID)...)
	for _, u := range urls {
		plain = append(plain, legacyBytes(u)...)
	}

	sum := sha1.Sum(plain)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}
