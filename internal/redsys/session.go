package redsys

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"sevirun/internal/domain"
)

// Config holds the merchant settings shared with the gateway.
type Config struct {
	// SecretKey is the base64 encoded 3DES merchant key.
	SecretKey       string
	MerchantCode    string
	Currency        string
	TransactionType string
	Terminal        string
	// Endpoint is the gateway URL the payment form is posted to.
	Endpoint string
}

func (c Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.SecretKey) == "" {
		missing = append(missing, "secret key")
	}
	if strings.TrimSpace(c.MerchantCode) == "" {
		missing = append(missing, "merchant code")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("redsys: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// CallbackURLs are the absolute URLs the gateway calls or redirects to.
type CallbackURLs struct {
	Notification string
	OK           string
	KO           string
}

// Session is everything the auto-submit payment form needs.
type Session struct {
	SignatureVersion   string `json:"signatureVersion"`
	MerchantParameters string `json:"merchantParameters"`
	Signature          string `json:"signature"`
	Endpoint           string `json:"endpoint"`
	OrderReference     string `json:"orderReference"`
	AmountCents        int64  `json:"amountCents"`
}

// ErrOrderNotPayable is returned for orders that cannot be sent to the gateway.
var ErrOrderNotPayable = errors.New("redsys: order is not a pending card order")

type merchantParameters struct {
	Amount          string `json:"Ds_Merchant_Amount"`
	Order           string `json:"Ds_Merchant_Order"`
	MerchantCode    string `json:"Ds_Merchant_MerchantCode"`
	Currency        string `json:"Ds_Merchant_Currency"`
	TransactionType string `json:"Ds_Merchant_TransactionType"`
	Terminal        string `json:"Ds_Merchant_Terminal"`
	MerchantURL     string `json:"Ds_Merchant_MerchantURL"`
	URLOK           string `json:"Ds_Merchant_UrlOK"`
	URLKO           string `json:"Ds_Merchant_UrlKO"`
}

// SessionBuilder assembles signed payment requests.
type SessionBuilder struct {
	cfg    Config
	secret []byte
	newRef func() string
}

// BuilderOption customises the builder.
type BuilderOption func(*SessionBuilder)

// WithReferenceGenerator overrides how processor order references are produced.
func WithReferenceGenerator(fn func() string) BuilderOption {
	return func(b *SessionBuilder) {
		if fn != nil {
			b.newRef = fn
		}
	}
}

// NewSessionBuilder validates the configuration and decodes the merchant secret.
func NewSessionBuilder(cfg Config, opts ...BuilderOption) (*SessionBuilder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	secret, err := DecodeSecret(cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	b := &SessionBuilder{
		cfg:    cfg,
		secret: secret,
		newRef: func() string {
			return NewOrderReference(time.Now(), rand.Intn)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build produces the signed merchant parameters for a pending card order.
func (b *SessionBuilder) Build(order domain.Order, urls CallbackURLs) (Session, error) {
	if order.State != domain.OrderPending || order.PaymentMethod != domain.PaymentCard {
		return Session{}, ErrOrderNotPayable
	}
	ref := b.newRef()
	amount := order.AmountCents()
	params := merchantParameters{
		Amount:          strconv.FormatInt(amount, 10),
		Order:           ref,
		MerchantCode:    b.cfg.MerchantCode,
		Currency:        b.cfg.Currency,
		TransactionType: b.cfg.TransactionType,
		Terminal:        b.cfg.Terminal,
		MerchantURL:     urls.Notification,
		URLOK:           urls.OK,
		URLKO:           urls.KO,
	}
	raw, err := compactJSON(params)
	if err != nil {
		return Session{}, fmt.Errorf("redsys: encode merchant parameters: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	signature, err := SignOrder(encoded, b.secret, ref)
	if err != nil {
		return Session{}, err
	}
	return Session{
		SignatureVersion:   SignatureVersion,
		MerchantParameters: encoded,
		Signature:          signature,
		Endpoint:           b.cfg.Endpoint,
		OrderReference:     ref,
		AmountCents:        amount,
	}, nil
}

// compactJSON marshals v without whitespace and without escaping HTML or
// non-ASCII characters.
func compactJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// NewOrderReference builds a 12 digit processor reference from the last ten
// digits of the epoch seconds and a two digit random suffix.
func NewOrderReference(now time.Time, intn func(int) int) string {
	epoch := strconv.FormatInt(now.Unix(), 10)
	if len(epoch) > 10 {
		epoch = epoch[len(epoch)-10:]
	}
	ref := epoch + fmt.Sprintf("%02d", intn(100))
	if len(ref) > 12 {
		ref = ref[:12]
	}
	return ref
}
