// Package webhook implements the authenticity scheme for server-to-merchant
// notifications: hex HMAC-SHA256 over a canonical JSON encoding, carried in
// the X-Webhook-Signature header.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SignatureHeader carries the payload signature on webhook deliveries.
const SignatureHeader = "X-Webhook-Signature"

// Envelope is the webhook body shape. Timestamp is unix seconds.
type Envelope struct {
	Event     string          `json:"event"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Canonicalize re-encodes a JSON document deterministically: object keys
// sorted, numbers kept verbatim. Signing over this form makes verification
// independent of the producer's field order.
func Canonicalize(payload []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("webhook: canonicalize: %w", err)
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("webhook: canonicalize: %w", err)
	}
	return encoded, nil
}

// Sign computes the hex HMAC-SHA256 of the canonical form of payload.
func Sign(payload []byte, secret string) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// SignEnvelope serializes and signs an envelope, returning both the body to
// deliver and its signature.
func SignEnvelope(env Envelope, secret string) (body []byte, signature string, err error) {
	body, err = json.Marshal(env)
	if err != nil {
		return nil, "", fmt.Errorf("webhook: encode envelope: %w", err)
	}
	signature, err = Sign(body, secret)
	if err != nil {
		return nil, "", err
	}
	return body, signature, nil
}

// Verify recomputes the payload signature and compares in constant time.
// Malformed payloads verify as false.
func Verify(payload []byte, signature, secret string) bool {
	expected, err := Sign(payload, secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
