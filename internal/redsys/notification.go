package redsys

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	ErrMethodNotAllowed      = errors.New("redsys: notification must be POST")
	ErrMissingParameters     = errors.New("redsys: missing notification parameters")
	ErrMalformedParameters   = errors.New("redsys: malformed merchant parameters")
	ErrMissingOrderReference = errors.New("redsys: notification has no order reference")
	// ErrInvalidSignature signals a potential forgery and must be reported apart
	// from malformed requests.
	ErrInvalidSignature = errors.New("redsys: invalid signature")

	errMerchantRequired = errors.New("redsys: missing merchant code")
)

// unknownResponseCode is used when the gateway sends a non-numeric code.
const unknownResponseCode = 9999

// NotificationRequest is the form posted by the gateway.
type NotificationRequest struct {
	Method             string `form:"-"`
	SignatureVersion   string `form:"Ds_SignatureVersion"`
	MerchantParameters string `form:"Ds_MerchantParameters"`
	Signature          string `form:"Ds_Signature"`
}

// Notification is a verified gateway callback.
type Notification struct {
	OrderReference string
	ResponseCode   int
	// Authorized is true when the response code is in the 0-99 success range.
	Authorized bool
	Parameters map[string]any
}

// Verifier authenticates gateway notifications against the merchant secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.MerchantCode) == "" {
		return nil, errMerchantRequired
	}
	secret, err := DecodeSecret(cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	return &Verifier{secret: secret}, nil
}

// Verify validates req in order: method, presence, decoding, order reference
// and signature. Each failure is terminal.
func (v *Verifier) Verify(req NotificationRequest) (Notification, error) {
	if !strings.EqualFold(req.Method, http.MethodPost) {
		return Notification{}, ErrMethodNotAllowed
	}
	if req.SignatureVersion == "" || req.MerchantParameters == "" || req.Signature == "" {
		return Notification{}, ErrMissingParameters
	}

	params, err := decodeParameters(req.MerchantParameters)
	if err != nil {
		return Notification{}, err
	}

	ref := lookupString(params, "Ds_Order")
	if ref == "" {
		return Notification{}, ErrMissingOrderReference
	}

	if !Verify(req.MerchantParameters, req.Signature, v.secret, ref) {
		return Notification{}, ErrInvalidSignature
	}

	code := parseResponseCode(lookupString(params, "Ds_Response"))
	return Notification{
		OrderReference: ref,
		ResponseCode:   code,
		Authorized:     code >= 0 && code < 100,
		Parameters:     params,
	}, nil
}

// PeekOrderReference decodes the processor order reference without checking
// the signature. The result must only be used for diagnostics.
func PeekOrderReference(encoded string) (string, error) {
	params, err := decodeParameters(encoded)
	if err != nil {
		return "", err
	}
	return lookupString(params, "Ds_Order"), nil
}

func decodeParameters(encoded string) (map[string]any, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, ErrMalformedParameters
		}
	}
	if !utf8.Valid(raw) {
		return nil, ErrMalformedParameters
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil || params == nil {
		return nil, ErrMalformedParameters
	}
	return params, nil
}

// lookupString prefers the exact key and falls back to the lexically first
// key that matches ignoring case, so duplicates resolve the same way every time.
func lookupString(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		return stringValue(v)
	}
	var keys []string
	for k := range params {
		if strings.EqualFold(k, key) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return stringValue(params[keys[0]])
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	}
	return ""
}

func parseResponseCode(raw string) int {
	if raw == "" {
		return unknownResponseCode
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return unknownResponseCode
		}
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		return unknownResponseCode
	}
	return code
}
