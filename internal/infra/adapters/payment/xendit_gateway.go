// File: internal/infra/adapters/payment/xendit_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"oasis-billing/internal/config"
	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/ports/adapter"
	"oasis-billing/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*XenditGateway)(nil)

// XenditGateway creates closed virtual accounts and one-time e-wallet
// charges through the Xendit REST API.
type XenditGateway struct {
	secretKey  string
	baseURL    string
	successURL string
	failureURL string
	client     *http.Client
	log        *zerolog.Logger
}

// APIError is a non-2xx answer from Xendit.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("xendit: http %d: %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap reports a definite rejection for 4xx answers. 408 and 429 may
// still be processed by Xendit later, so they stay ambiguous.
func (e *APIError) Unwrap() error {
	if e.Status >= 400 && e.Status < 500 && e.Status != http.StatusRequestTimeout && e.Status != http.StatusTooManyRequests {
		return domain.ErrGatewayRejected
	}
	return nil
}

func NewXenditGateway(cfg *config.XenditConfig, logger *zerolog.Logger) (*XenditGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("xendit secret key empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid xendit base url: %w", err)
	}
	return &XenditGateway{
		secretKey:  cfg.SecretKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		successURL: cfg.SuccessRedirectURL,
		failureURL: cfg.FailureRedirectURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        logger,
	}, nil
}

func (x *XenditGateway) Name() string { return "xendit" }

// CreateVirtualAccount calls POST /callback_virtual_accounts.
func (x *XenditGateway) CreateVirtualAccount(ctx context.Context, req adapter.VirtualAccountRequest) (*adapter.VirtualAccount, error) {
	payload := map[string]any{
		"external_id":     req.ExternalID,
		"bank_code":       req.BankCode,
		"name":            req.Name,
		"expected_amount": req.ExpectedAmount,
		"is_closed":       true,
		"is_single_use":   true,
	}
	if !req.ExpiresAt.IsZero() {
		payload["expiration_date"] = req.ExpiresAt.UTC().Format(time.RFC3339)
	}

	res, err := x.post(ctx, "create_va", "/callback_virtual_accounts", payload)
	if err != nil {
		return nil, err
	}
	va := &adapter.VirtualAccount{
		ID:             res.Get("id").String(),
		AccountNumber:  res.Get("account_number").String(),
		BankCode:       res.Get("bank_code").String(),
		ExpectedAmount: res.Get("expected_amount").Int(),
	}
	if ts := res.Get("expiration_date").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			va.ExpiresAt = t
		}
	}
	if va.ID == "" || va.AccountNumber == "" {
		return nil, errors.New("xendit: virtual account response missing id or account_number")
	}
	return va, nil
}

// CreateEWalletCharge calls POST /ewallets/charges.
func (x *XenditGateway) CreateEWalletCharge(ctx context.Context, req adapter.EWalletChargeRequest) (*adapter.EWalletCharge, error) {
	props := map[string]any{
		"success_redirect_url": x.successURL,
		"failure_redirect_url": x.failureURL,
	}
	if req.Phone != "" {
		props["mobile_number"] = InternationalPhone(req.Phone)
	}
	currency := req.Currency
	if currency == "" {
		currency = "IDR"
	}
	payload := map[string]any{
		"reference_id":       req.ReferenceID,
		"currency":           currency,
		"amount":             req.Amount,
		"checkout_method":    "ONE_TIME_PAYMENT",
		"channel_code":       ChannelCode(req.ChannelCode),
		"channel_properties": props,
	}

	res, err := x.post(ctx, "create_ewallet", "/ewallets/charges", payload)
	if err != nil {
		return nil, err
	}
	ch := &adapter.EWalletCharge{
		ID:          res.Get("id").String(),
		Status:      res.Get("status").String(),
		Amount:      res.Get("charge_amount").Int(),
		CheckoutURL: res.Get("actions.desktop_web_checkout_url").String(),
	}
	if ch.CheckoutURL == "" {
		ch.CheckoutURL = res.Get("actions.mobile_web_checkout_url").String()
	}
	if ch.ID == "" {
		return nil, errors.New("xendit: e-wallet response missing id")
	}
	return ch, nil
}

func (x *XenditGateway) post(ctx context.Context, op, path string, payload any) (gjson.Result, error) {
	start := time.Now()
	res, err := x.do(ctx, path, payload)
	metrics.ObserveGatewayRequest("xendit", op, time.Since(start), err == nil)
	if err != nil {
		x.log.Warn().Err(err).Str("op", op).Dur("duration", time.Since(start)).Msg("xendit request failed")
	}
	return res, err
}

func (x *XenditGateway) do(ctx context.Context, path string, payload any) (gjson.Result, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(x.secretKey, "")

	resp, err := x.client.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r := gjson.ParseBytes(body)
		return gjson.Result{}, &APIError{
			Status:  resp.StatusCode,
			Code:    r.Get("error_code").String(),
			Message: r.Get("message").String(),
		}
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.New("xendit: invalid JSON response")
	}
	return gjson.ParseBytes(body), nil
}

// ChannelCode maps OVO / DANA / LINKAJA onto Xendit's ID_ channel codes.
func ChannelCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if strings.HasPrefix(code, "ID_") {
		return code
	}
	return "ID_" + code
}

// InternationalPhone rewrites a local 08xx number into +628xx.
func InternationalPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	switch {
	case strings.HasPrefix(phone, "+"):
		return phone
	case strings.HasPrefix(phone, "0"):
		return "+62" + phone[1:]
	case strings.HasPrefix(phone, "62"):
		return "+" + phone
	default:
		return "+62" + phone
	}
}
