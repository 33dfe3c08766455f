//go:build !integration

package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"oasis-billing/internal/config"
	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/ports/adapter"
)

func newTestGateway(t *testing.T, h http.HandlerFunc) *XenditGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger := zerolog.Nop()
	gw, err := NewXenditGateway(&config.XenditConfig{
		SecretKey:          "xnd_development_secret",
		BaseURL:            srv.URL,
		SuccessRedirectURL: "https://oasis.example/payment/success",
		FailureRedirectURL: "https://oasis.example/payment/failed",
	}, &logger)
	if err != nil {
		t.Fatalf("NewXenditGateway: %v", err)
	}
	return gw
}

func TestXenditGateway_CreateVirtualAccount(t *testing.T) {
	// --- Arrange ---
	var body gjson.Result
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "xnd_development_secret" || pass != "" {
			t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
		}
		if r.URL.Path != "/callback_virtual_accounts" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		body = gjson.ParseBytes(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"va_57","account_number":"8808123456","bank_code":"BCA","expected_amount":99000,"expiration_date":"2026-10-20T10:00:00Z"}`))
	})

	// --- Act ---
	va, err := gw.CreateVirtualAccount(context.Background(), adapter.VirtualAccountRequest{
		ExternalID: "OASIS-STARTER-1-ABCDEF", BankCode: "BCA", Name: "Budi", ExpectedAmount: 99000,
		ExpiresAt: time.Date(2026, 10, 20, 10, 0, 0, 0, time.UTC),
	})

	// --- Assert ---
	if err != nil {
		t.Fatalf("CreateVirtualAccount: %v", err)
	}
	if va.ID != "va_57" || va.AccountNumber != "8808123456" || va.ExpectedAmount != 99000 || va.ExpiresAt.IsZero() {
		t.Fatalf("va = %+v", va)
	}
	if !body.Get("is_closed").Bool() || !body.Get("is_single_use").Bool() {
		t.Errorf("VA must be closed and single use: %s", body.Raw)
	}
	if body.Get("external_id").String() != "OASIS-STARTER-1-ABCDEF" || body.Get("expiration_date").String() != "2026-10-20T10:00:00Z" {
		t.Errorf("request body = %s", body.Raw)
	}
}

func TestXenditGateway_CreateEWalletCharge(t *testing.T) {
	var body gjson.Result
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = gjson.ParseBytes(b)
		_, _ = w.Write([]byte(`{"id":"ewc_1","status":"PENDING","charge_amount":99000,"actions":{"desktop_web_checkout_url":null,"mobile_web_checkout_url":"https://m.example/pay"}}`))
	})

	ch, err := gw.CreateEWalletCharge(context.Background(), adapter.EWalletChargeRequest{
		ReferenceID: "OASIS-STARTER-1-ABCDEF", Amount: 99000, Currency: "IDR", ChannelCode: "ovo", Phone: "081234567890",
	})
	if err != nil {
		t.Fatalf("CreateEWalletCharge: %v", err)
	}
	if ch.ID != "ewc_1" || ch.CheckoutURL != "https://m.example/pay" {
		t.Fatalf("charge = %+v", ch)
	}
	if got := body.Get("channel_code").String(); got != "ID_OVO" {
		t.Errorf("channel_code = %q", got)
	}
	if got := body.Get("channel_properties.mobile_number").String(); got != "+6281234567890" {
		t.Errorf("mobile_number = %q", got)
	}
	if body.Get("checkout_method").String() != "ONE_TIME_PAYMENT" {
		t.Errorf("checkout_method = %q", body.Get("checkout_method").String())
	}
}

func TestXenditGateway_APIError(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":"API_VALIDATION_ERROR","message":"bank_code is invalid"}`))
	})

	_, err := gw.CreateVirtualAccount(context.Background(), adapter.VirtualAccountRequest{ExternalID: "x", BankCode: "XYZ", ExpectedAmount: 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != "API_VALIDATION_ERROR" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
	if !errors.Is(err, domain.ErrGatewayRejected) {
		t.Fatalf("a 400 must count as a definite rejection, got %v", err)
	}
}

func TestAPIError_RejectionIsOnlyDefinite4xx(t *testing.T) {
	tests := []struct {
		status   int
		rejected bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
		{http.StatusConflict, true},
		{http.StatusRequestTimeout, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		err := error(&APIError{Status: tt.status})
		if got := errors.Is(err, domain.ErrGatewayRejected); got != tt.rejected {
			t.Errorf("status %d: rejected = %v, want %v", tt.status, got, tt.rejected)
		}
	}
}

func TestInternationalPhone(t *testing.T) {
	cases := map[string]string{
		"081234":   "+6281234",
		"+6281234": "+6281234",
		"6281234":  "+6281234",
		"81234":    "+6281234",
	}
	for in, want := range cases {
		if got := InternationalPhone(in); got != want {
			t.Errorf("InternationalPhone(%q) = %q, want %q", in, got, want)
		}
	}
}
