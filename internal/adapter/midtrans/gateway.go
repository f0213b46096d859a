// Package midtrans talks to the Midtrans payment provider: it verifies
// notification payloads and opens Snap checkout sessions.
package midtrans

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// Sandbox endpoints, used when Config leaves the URLs empty.
const (
	SandboxAPIURL  = "https://api.sandbox.midtrans.com"
	SandboxSnapURL = "https://app.sandbox.midtrans.com/snap/v1"
)

// Config holds the gateway settings.
type Config struct {
	ServerKey string
	APIURL    string
	SnapURL   string
	// StatusCheck re-fetches the transaction from the provider and trusts
	// that status instead of the one in the notification.
	StatusCheck bool
	Timeout     time.Duration
}

// Compile-time check: Gateway implements domain.PaymentGateway.
var _ domain.PaymentGateway = (*Gateway)(nil)

// Gateway implements domain.PaymentGateway for Midtrans.
type Gateway struct {
	serverKey   string
	statusCheck bool
	api         *resty.Client
	snap        *resty.Client
}

// New creates a gateway.
func New(cfg Config) *Gateway {
	if cfg.APIURL == "" {
		cfg.APIURL = SandboxAPIURL
	}
	if cfg.SnapURL == "" {
		cfg.SnapURL = SandboxSnapURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := func(baseURL string) *resty.Client {
		return resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetBasicAuth(cfg.ServerKey, "").
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json")
	}

	return &Gateway{
		serverKey:   cfg.ServerKey,
		statusCheck: cfg.StatusCheck,
		api: client(cfg.APIURL).
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond).
			SetRetryMaxWaitTime(time.Second),
		snap: client(cfg.SnapURL),
	}
}

// Signature returns the signature Midtrans attaches to a notification.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// Verify authenticates a notification payload and extracts its fields.
// Unverifiable or malformed payloads yield ErrWebhookVerification or
// ErrMalformedNotification; a failed status re-check yields a plain error so
// the caller can ask the provider to redeliver.
func (g *Gateway) Verify(ctx context.Context, payload []byte) (domain.PaymentNotification, error) {
	if !gjson.ValidBytes(payload) {
		return domain.PaymentNotification{}, domain.ErrMalformedNotification
	}

	body := gjson.ParseBytes(payload)
	orderID := body.Get("order_id").String()
	signature := body.Get("signature_key").String()
	if orderID == "" || signature == "" {
		return domain.PaymentNotification{}, fmt.Errorf("%w: missing order_id or signature_key", domain.ErrMalformedNotification)
	}

	want := Signature(orderID, body.Get("status_code").String(), body.Get("gross_amount").String(), g.serverKey)
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(signature))) != 1 {
		return domain.PaymentNotification{}, fmt.Errorf("%w: signature mismatch for order %s", domain.ErrWebhookVerification, orderID)
	}

	n := notificationFrom(body)
	if !g.statusCheck {
		return n, nil
	}
	return g.status(ctx, orderID)
}

// status fetches the provider's current view of an order.
func (g *Gateway) status(ctx context.Context, orderID string) (domain.PaymentNotification, error) {
	resp, err := g.api.R().
		SetContext(ctx).
		SetPathParam("order", orderID).
		Get("/v2/{order}/status")
	if err != nil {
		return domain.PaymentNotification{}, fmt.Errorf("fetching status of order %s: %w", orderID, err)
	}
	if resp.StatusCode() >= 500 {
		return domain.PaymentNotification{}, fmt.Errorf("fetching status of order %s: provider returned %s", orderID, resp.Status())
	}

	body := gjson.ParseBytes(resp.Body())
	if resp.IsError() || body.Get("status_code").String() == "404" {
		return domain.PaymentNotification{}, fmt.Errorf("%w: order %s unknown to provider", domain.ErrWebhookVerification, orderID)
	}
	if got := body.Get("order_id").String(); got != orderID {
		return domain.PaymentNotification{}, fmt.Errorf("%w: status lookup returned order %q", domain.ErrWebhookVerification, got)
	}

	return notificationFrom(body), nil
}

func notificationFrom(body gjson.Result) domain.PaymentNotification {
	return domain.PaymentNotification{
		OrderID:           body.Get("order_id").String(),
		TransactionID:     body.Get("transaction_id").String(),
		TransactionStatus: body.Get("transaction_status").String(),
		FraudStatus:       body.Get("fraud_status").String(),
	}
}

type snapRequest struct {
	TransactionDetails transactionDetails `json:"transaction_details"`
	CustomerDetails    customerDetails    `json:"customer_details"`
	ItemDetails        []itemDetail       `json:"item_details"`
}

type transactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type customerDetails struct {
	FirstName string `json:"first_name"`
}

type itemDetail struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type snapResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// CreateSession opens a Snap checkout for the tenant's subscription. The
// order ID is the tenant ID, which is how notifications find their tenant.
func (g *Gateway) CreateSession(ctx context.Context, tenant domain.Tenant, amount int64) (domain.PaymentSession, error) {
	var out snapResponse
	resp, err := g.snap.R().
		SetContext(ctx).
		SetBody(snapRequest{
			TransactionDetails: transactionDetails{OrderID: tenant.ID, GrossAmount: amount},
			CustomerDetails:    customerDetails{FirstName: tenant.Name},
			ItemDetails: []itemDetail{{
				ID:       "subscription",
				Name:     "Langganan " + tenant.Subdomain,
				Price:    amount,
				Quantity: 1,
			}},
		}).
		SetResult(&out).
		Post("/transactions")
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("creating payment session: %w", err)
	}
	if resp.IsError() {
		msg := gjson.GetBytes(resp.Body(), "error_messages.0").String()
		return domain.PaymentSession{}, fmt.Errorf("creating payment session: provider returned %s: %s", resp.Status(), msg)
	}
	if out.Token == "" {
		return domain.PaymentSession{}, fmt.Errorf("creating payment session: empty token")
	}

	return domain.PaymentSession{OrderID: tenant.ID, Token: out.Token, RedirectURL: out.RedirectURL}, nil
}
