// Package signature implements the gateway's checkout signature scheme:
// hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrMissingSecret = errors.New("signing secret is not configured")

// Payload builds the signed message. Order id comes first.
func Payload(orderID, paymentID string) string {
	return orderID + "|" + paymentID
}

// Compute returns the lowercase hex signature for the order/payment pair.
func Compute(secret, orderID, paymentID string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Payload(orderID, paymentID)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature is exactly the computed value. The
// comparison is case-sensitive and runs in constant time for equal lengths.
func Verify(secret, orderID, paymentID, signature string) (bool, error) {
	expected, err := Compute(secret, orderID, paymentID)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}

// VerifyBody reports whether signature is hex(HMAC-SHA256(secret, body)), the
// scheme used for webhook deliveries. An empty secret never verifies.
func VerifyBody(secret string, body []byte, signature string) bool {
	if secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
