// Package signing signs outbound webhook payloads and verifies them on the receiving side.
package signing

import (
	"crypto"
	"crypto/hmac"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingHex
	EncodingBase64
)

// Header carries the payload signature on signed webhook requests.
const Header = "X-Signature-256"

var ErrSignatureMismatch = errors.New("signature mismatch")

// Sign returns the HMAC of payload under secret, prefixed with the hash label, ex: "sha256=<hex>".
func Sign(payload []byte, secret []byte, algo crypto.Hash, enc Encoding) ([]byte, error) {
	if !algo.Available() {
		return nil, fmt.Errorf("hash %s is not available", algo)
	}
	mac := hmac.New(algo.New, secret)
	if _, err := mac.Write(payload); err != nil {
		return nil, fmt.Errorf("mac.Write: %w", err)
	}
	sum := mac.Sum(nil)

	switch enc {
	case EncodingHex:
		return []byte(label(algo) + "=" + hex.EncodeToString(sum)), nil
	case EncodingBase64:
		return []byte(label(algo) + "=" + base64.StdEncoding.EncodeToString(sum)), nil
	}
	return nil, fmt.Errorf("unsupported encoding")
}

// Verify checks a signature produced by Sign in constant time.
func Verify(payload []byte, secret []byte, signature string, algo crypto.Hash, enc Encoding) error {
	want, err := Sign(payload, secret, algo, enc)
	if err != nil {
		return err
	}
	if !hmac.Equal(want, []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

// "SHA-256" -> "sha256"
func label(algo crypto.Hash) string {
	return strings.Replace(strings.ToLower(algo.String()), "-", "", 1)
}
