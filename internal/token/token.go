// Package token mints and verifies the short-lived, order-scoped credential
// the embedded checkout presents to the payment API. The long-lived API secret
// stays server side; only this token ever reaches checkout code.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	issuer       = "gatepay-checkout"
	orderIDClaim = "order_id"
)

// ErrOrderMismatch is returned when a token is presented for a different order
// than the one it was minted for.
var ErrOrderMismatch = errors.New("token: order id mismatch")

// Mint issues a checkout token scoped to the given order. Called server side
// at order-creation time.
func Mint(secret []byte, orderID string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("token: secret is required")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", errors.New("token: order id is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim(orderIDClaim, orderID).
		Build()
	if err != nil {
		return "", fmt.Errorf("token: build: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return string(signed), nil
}

// Verify parses and validates a checkout token and ensures it is scoped to the
// expected order.
func Verify(secret []byte, raw, orderID string, now time.Time) error {
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(issuer),
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	)
	if err != nil {
		return fmt.Errorf("token: parse: %w", err)
	}
	claim, ok := tok.Get(orderIDClaim)
	if !ok {
		return errors.New("token: missing order id claim")
	}
	claimed, _ := claim.(string)
	if claimed != strings.TrimSpace(orderID) {
		return ErrOrderMismatch
	}
	return nil
}
