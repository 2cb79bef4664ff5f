// Package redsys implements the Redsys redirect payment integration: the
// per-order signature, the outbound payment form and the verification of the
// asynchronous notification the gateway posts back.
package redsys

import (
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// SignatureVersion is the only signature scheme the gateway accepts.
const SignatureVersion = "HMAC_SHA256_V1"

const orderKeyBlock = 16

var (
	// ErrSecretRequired is returned when no merchant secret is configured.
	ErrSecretRequired = errors.New("redsys: merchant secret is required")
	errInvalidSecret  = errors.New("redsys: merchant secret must decode to 16 or 24 bytes")
)

// DecodeSecret decodes the base64 merchant secret into 3DES key material.
// Two-key secrets are expanded to the K1K2K1 form.
func DecodeSecret(encoded string) ([]byte, error) {
	if strings.TrimSpace(encoded) == "" {
		return nil, ErrSecretRequired
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("redsys: decode merchant secret: %w", err)
	}
	switch len(raw) {
	case 24:
		return raw, nil
	case 16:
		key := make([]byte, 0, 24)
		key = append(key, raw...)
		return append(key, raw[:8]...), nil
	default:
		return nil, errInvalidSecret
	}
}

// DeriveOrderKey encrypts the zero-padded order reference under the merchant
// secret with 3DES-CBC and a zero IV.
func DeriveOrderKey(secret []byte, orderRef string) ([]byte, error) {
	block, err := des.NewTripleDESCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("redsys: init cipher: %w", err)
	}
	size := orderKeyBlock
	if len(orderRef) > size {
		size = (len(orderRef) + des.BlockSize - 1) / des.BlockSize * des.BlockSize
	}
	plain := make([]byte, size)
	copy(plain, orderRef)

	out := make([]byte, size)
	iv := make([]byte, des.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	return out, nil
}

// Sign computes the URL-safe HMAC-SHA256 signature of payload. The payload is
// the base64 merchant parameters string exactly as transmitted.
func Sign(payload string, orderKey []byte) string {
	mac := hmac.New(sha256.New, orderKey)
	_, _ = mac.Write([]byte(payload))
	encoded := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return strings.NewReplacer("+", "-", "/", "_").Replace(encoded)
}

// SignOrder derives the order key and signs payload with it.
func SignOrder(payload string, secret []byte, orderRef string) (string, error) {
	key, err := DeriveOrderKey(secret, orderRef)
	if err != nil {
		return "", err
	}
	return Sign(payload, key), nil
}

// Verify reports whether candidate is the signature of payload for orderRef.
// A mismatch is an ordinary outcome and never an error.
func Verify(payload, candidate string, secret []byte, orderRef string) bool {
	expected, err := SignOrder(payload, secret, orderRef)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(candidate))
}
