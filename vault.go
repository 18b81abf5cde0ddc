package sanalpos_soap

import (
	"context"
	"strconv"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/eticaret/sanalpos_soap_sdk/models"
)

// Card vault operations. A stored card is only ever referenced by its
// 36-character token; deleting the token invalidates it permanently, and the
// charge path never accepts raw card data.

// StoreCard tokenizes a card in the gateway vault and returns the issued
// token.
func (c *Client) StoreCard(ctx context.Context, req models.StoreCardRequest) (*models.VaultToken, error) {
	if err := validateStoreCard(req); err != nil {
		return nil, err
	}

	w := &wireStoreCard{
		CardHolder:  req.Card.HolderName,
		CardNumber:  req.Card.Number,
		ExpiryMonth: req.Card.ExpiryMonth,
		ExpiryYear:  req.Card.ExpiryYear,
		CVV:         req.Card.CVV,
		DisplayName: req.DisplayName,
		OwnerRef:    req.OwnerRef,
	}

	c.logger.Info("storing card",
		zap.String("display_name", req.DisplayName),
		zap.String("card", maskCard(req.Card.Number)),
	)

	el, raw, err := c.send(ctx, signedRequest{op: "StoreCard", endpoint: endpointVault, payload: w})
	if err != nil {
		return nil, err
	}
	if _, err := normalizeResult("StoreCard", el, raw); err != nil {
		return nil, err
	}

	masked := childText(el, "MaskedNumber")
	if masked == "" {
		masked = maskCard(req.Card.Number)
	}
	return &models.VaultToken{
		Token:        childText(el, "Token"),
		DisplayName:  req.DisplayName,
		OwnerRef:     childText(el, "OwnerRef"),
		MaskedNumber: masked,
	}, nil
}

// ChargeCard charges a previously stored card by its vault token. A token
// that was never issued, or has been deleted, fails with
// *TokenNotFoundError and causes no financial side effect.
func (c *Client) ChargeCard(ctx context.Context, req models.ChargeCardRequest) (*models.TransactionResult, error) {
	if err := validateChargeCard(req); err != nil {
		return nil, err
	}

	w := &wireChargeCard{
		Token:        req.Token,
		OrderID:      req.OrderID,
		Description:  req.Description,
		Amount:       encodeAmount(req.Amount),
		Total:        encodeAmount(totalOrAmount(req.Amount, req.Total)),
		Installments: req.Installments,
		ClientIP:     req.ClientIP,
	}

	c.logger.Info("charging stored card",
		zap.String("order_id", req.OrderID),
		zap.String("token", req.Token),
		zap.String("amount", w.Amount),
	)

	el, raw, err := c.send(ctx, signedRequest{op: "ChargeCard", endpoint: endpointVault, payload: w})
	if err != nil {
		return nil, err
	}
	if err := tokenNotFound(el, req.Token); err != nil {
		return nil, err
	}
	return normalizeResult("ChargeCard", el, raw)
}

// DeleteCard permanently invalidates a vault token. Subsequent charges
// against it fail with *TokenNotFoundError.
func (c *Client) DeleteCard(ctx context.Context, req models.DeleteCardRequest) error {
	if err := validateDeleteCard(req); err != nil {
		return err
	}

	w := &wireDeleteCard{Token: req.Token}

	c.logger.Info("deleting stored card", zap.String("token", req.Token))

	el, raw, err := c.send(ctx, signedRequest{op: "DeleteCard", endpoint: endpointVault, payload: w})
	if err != nil {
		return err
	}
	if err := tokenNotFound(el, req.Token); err != nil {
		return err
	}
	_, err = normalizeResult("DeleteCard", el, raw)
	return err
}

// ListCards returns all active vault tokens for the merchant account. It
// performs no charge.
func (c *Client) ListCards(ctx context.Context) ([]models.VaultToken, error) {
	w := &wireListCards{}

	el, raw, err := c.send(ctx, signedRequest{op: "ListCards", endpoint: endpointVault, payload: w, readOnly: true})
	if err != nil {
		return nil, err
	}
	if _, err := normalizeResult("ListCards", el, raw); err != nil {
		return nil, err
	}

	var tokens []models.VaultToken
	if list := findChildLocal(el, "Cards"); list != nil {
		for _, row := range list.ChildElements() {
			tokens = append(tokens, models.VaultToken{
				Token:        childText(row, "Token"),
				DisplayName:  childText(row, "DisplayName"),
				OwnerRef:     childText(row, "OwnerRef"),
				MaskedNumber: childText(row, "MaskedNumber"),
			})
		}
	}
	return tokens, nil
}

// tokenNotFound maps the gateway's unknown-token result code onto the typed
// error before generic fault normalization sees it.
func tokenNotFound(el *etree.Element, token string) error {
	code, _ := strconv.ParseInt(childText(el, "Code"), 10, 64)
	if code == wireCodeTokenNotFound {
		return &TokenNotFoundError{Token: token}
	}
	return nil
}
