//go:build !integration

package payment

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"oasis-billing/internal/config"
	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
)

func testSecrets() config.GatewaySecrets {
	return config.GatewaySecrets{
		FaspayMerchantID:     "31932",
		FaspayPassword:       "p@ssw0rd",
		SNAPSecret:           "snap-secret",
		SNAPEndpointPath:     "/callback/payment",
		SNAPRequireSignature: true,
		XenditCallbackToken:  "xnd-token",
	}
}

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(testSecrets())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func legacyBody(billNo, status, sig string) []byte {
	return []byte(`{"request":"Payment Notification","trx_id":"3183540500001172","merchant_id":"31932","bill_no":"` + billNo +
		`","payment_reff":"123","bill_total":"299000.00","payment_status_code":"` + status + `","signature":"` + sig + `"}`)
}

func TestNewVerifier_MissingSecrets(t *testing.T) {
	for _, mutate := range []func(*config.GatewaySecrets){
		func(s *config.GatewaySecrets) { s.FaspayMerchantID = "" },
		func(s *config.GatewaySecrets) { s.FaspayPassword = "" },
		func(s *config.GatewaySecrets) { s.XenditCallbackToken = "" },
	} {
		s := testSecrets()
		mutate(&s)
		if _, err := NewVerifier(s); !errors.Is(err, domain.ErrConfigMissingSecret) {
			t.Errorf("expected ErrConfigMissingSecret, got %v", err)
		}
	}
}

func TestVerifyFaspayLegacy(t *testing.T) {
	v := newTestVerifier(t)
	s := testSecrets()
	billNo := "OASIS-PROFESSIONAL-1699999999-AB12CD"
	sig := SignFaspayLegacy(s.FaspayMerchantID, s.FaspayPassword, billNo, "2")

	t.Run("valid signature", func(t *testing.T) {
		if got := v.VerifyFaspayLegacy(legacyBody(billNo, "2", sig)); got != CheckValid {
			t.Fatalf("expected valid, got %s", got)
		}
	})

	t.Run("upper case hex is accepted", func(t *testing.T) {
		if got := v.VerifyFaspayLegacy(legacyBody(billNo, "2", strings.ToUpper(sig))); got != CheckValid {
			t.Fatalf("expected valid, got %s", got)
		}
	})

	t.Run("any flipped byte is rejected", func(t *testing.T) {
		for i := 0; i < len(sig); i++ {
			b := []byte(sig)
			if b[i] == '0' {
				b[i] = '1'
			} else {
				b[i] = '0'
			}
			if got := v.VerifyFaspayLegacy(legacyBody(billNo, "2", string(b))); got != CheckInvalid {
				t.Fatalf("byte %d flipped: expected invalid, got %s", i, got)
			}
		}
	})

	t.Run("signature bound to status code", func(t *testing.T) {
		if got := v.VerifyFaspayLegacy(legacyBody(billNo, "7", sig)); got != CheckInvalid {
			t.Fatalf("expected invalid, got %s", got)
		}
	})

	t.Run("missing signature", func(t *testing.T) {
		if got := v.VerifyFaspayLegacy(legacyBody(billNo, "2", "")); got != CheckMissing {
			t.Fatalf("expected missing, got %s", got)
		}
	})
}

func TestVerifyFaspaySNAP(t *testing.T) {
	v := newTestVerifier(t)
	pretty := []byte(`{
		"virtualAccountNo": "  8808123",
		"merchantOrderId": "OASIS-STARTER-1699999999-ZZ99AA",
		"paidAmount": {"value": "99000.00", "currency": "IDR"},
		"paymentFlagStatus": "00"
	}`)
	ts := "2026-01-01T10:00:00+07:00"
	sig, err := SignFaspaySNAP("snap-secret", http.MethodPost, "/callback/payment", "", pretty, ts)
	if err != nil {
		t.Fatalf("SignFaspaySNAP: %v", err)
	}

	h := http.Header{}
	h.Set(HeaderSignature, sig)
	h.Set(HeaderTimestamp, ts)
	if got := v.VerifyFaspaySNAP(http.MethodPost, pretty, h); got != CheckValid {
		t.Fatalf("expected valid, got %s", got)
	}

	h.Set(HeaderTimestamp, "2026-01-01T10:00:01+07:00")
	if got := v.VerifyFaspaySNAP(http.MethodPost, pretty, h); got != CheckInvalid {
		t.Fatalf("timestamp is signed: expected invalid, got %s", got)
	}

	h.Del(HeaderSignature)
	if got := v.VerifyFaspaySNAP(http.MethodPost, pretty, h); got != CheckMissing {
		t.Fatalf("expected missing, got %s", got)
	}
}

func TestSignFaspaySNAP_AccessTokenSegment(t *testing.T) {
	body := []byte(`{"a":1}`)
	without, _ := SignFaspaySNAP("k", "post", "/p", "", body, "t")
	with, _ := SignFaspaySNAP("k", "POST", "/p", "tok", body, "t")
	if without == with {
		t.Fatal("access token must change the string to sign")
	}
	again, _ := SignFaspaySNAP("k", "POST", "/p", "", []byte("{ \"a\" : 1 }"), "t")
	if again != without {
		t.Fatal("signature must be computed over the minified body")
	}
}

func TestVerifyXendit(t *testing.T) {
	v := newTestVerifier(t)
	cases := map[string]struct {
		token string
		want  Check
	}{
		"valid":   {"xnd-token", CheckValid},
		"wrong":   {"xnd-tokeN", CheckInvalid},
		"prefix":  {"xnd-tok", CheckInvalid},
		"missing": {"", CheckMissing},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := http.Header{}
			if tc.token != "" {
				h.Set(HeaderCallbackToken, tc.token)
			}
			if got := v.Verify(model.GatewayXendit, model.FormatXenditVA, nil, h); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		gw     model.Gateway
		body   string
		format model.Format
		order  string
		amount int64
		status model.PaymentStatus
		ref    string
	}{
		{
			name:   "faspay legacy success",
			gw:     model.GatewayFaspay,
			body:   string(legacyBody("OASIS-PROFESSIONAL-1-AAAAAA", "2", "x")),
			format: model.FormatFaspayLegacy, order: "OASIS-PROFESSIONAL-1-AAAAAA", amount: 299000,
			status: model.PaymentStatusSuccess, ref: "123",
		},
		{
			name:   "faspay legacy without status defaults to pending",
			gw:     model.GatewayFaspay,
			body:   `{"bill_no":"OASIS-STARTER-1-AAAAAA","bill_total":99000,"trx_id":"T1"}`,
			format: model.FormatFaspayLegacy, order: "OASIS-STARTER-1-AAAAAA", amount: 99000,
			status: model.PaymentStatusPending, ref: "T1",
		},
		{
			name:   "faspay legacy reversal is unknown",
			gw:     model.GatewayFaspay,
			body:   `{"bill_no":"OASIS-STARTER-1-AAAAAA","payment_status_code":"4"}`,
			format: model.FormatFaspayLegacy, order: "OASIS-STARTER-1-AAAAAA",
			status: model.PaymentStatusUnknown,
		},
		{
			name:   "faspay snap nested amount",
			gw:     model.GatewayFaspay,
			body:   `{"virtualAccountNo":"8808","merchantOrderId":"OASIS-ENTERPRISE-1-AAAAAA","totalAmount":{"value":"999000.00"},"paymentFlagStatus":"00","paymentRequestId":"PR1"}`,
			format: model.FormatFaspaySNAP, order: "OASIS-ENTERPRISE-1-AAAAAA", amount: 999000,
			status: model.PaymentStatusSuccess, ref: "PR1",
		},
		{
			name:   "faspay snap falls back to virtual account number",
			gw:     model.GatewayFaspay,
			body:   `{"virtualAccountNo":"OASIS-STARTER-1-AAAAAA","paymentFlagStatus":"02"}`,
			format: model.FormatFaspaySNAP, order: "OASIS-STARTER-1-AAAAAA",
			status: model.PaymentStatusExpired,
		},
		{
			name:   "xendit virtual account",
			gw:     model.GatewayXendit,
			body:   `{"callback_virtual_account_id":"cva-1","external_id":"OASIS-STARTER-1-AAAAAA","expected_amount":99000,"status":"PAID"}`,
			format: model.FormatXenditVA, order: "OASIS-STARTER-1-AAAAAA", amount: 99000,
			status: model.PaymentStatusSuccess, ref: "cva-1",
		},
		{
			name:   "xendit virtual account without status",
			gw:     model.GatewayXendit,
			body:   `{"account_number":"9999","id":"va-2","external_id":"OASIS-STARTER-1-AAAAAA","amount":"99000"}`,
			format: model.FormatXenditVA, order: "OASIS-STARTER-1-AAAAAA", amount: 99000,
			status: model.PaymentStatusPending, ref: "va-2",
		},
		{
			name:   "xendit ewallet nested data",
			gw:     model.GatewayXendit,
			body:   `{"event":"ewallet.capture","data":{"id":"ewc_1","reference_id":"OASIS-PROFESSIONAL-1-AAAAAA","charge_amount":299000,"status":"SUCCEEDED"}}`,
			format: model.FormatXenditEWallet, order: "OASIS-PROFESSIONAL-1-AAAAAA", amount: 299000,
			status: model.PaymentStatusSuccess, ref: "ewc_1",
		},
		{
			name:   "xendit ewallet lower case status",
			gw:     model.GatewayXendit,
			body:   `{"ewallet_type":"OVO","charge_id":"c1","reference_id":"OASIS-STARTER-1-AAAAAA","status":"failed"}`,
			format: model.FormatXenditEWallet, order: "OASIS-STARTER-1-AAAAAA",
			status: model.PaymentStatusCancelled, ref: "c1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Normalize(tc.gw, []byte(tc.body), now)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if ev.Format != tc.format || ev.MerchantOrderID != tc.order || ev.Amount != tc.amount ||
				ev.Status != tc.status || ev.ExternalReference != tc.ref {
				t.Fatalf("unexpected event %+v", ev)
			}
			if !ev.ReceivedAt.Equal(now) {
				t.Errorf("ReceivedAt not carried over")
			}
		})
	}
}

func TestNormalize_Unrecognized(t *testing.T) {
	for _, gw := range []model.Gateway{model.GatewayFaspay, model.GatewayXendit} {
		_, err := Normalize(gw, []byte(`{"foo":1,"bar":{"baz":2}}`), time.Now())
		var nerr *NormalizationError
		if !errors.As(err, &nerr) {
			t.Fatalf("%s: expected NormalizationError, got %v", gw, err)
		}
		if !errors.Is(err, domain.ErrUnrecognizedPayload) {
			t.Errorf("%s: expected ErrUnrecognizedPayload in chain", gw)
		}
		if strings.Join(nerr.Keys, ",") != "bar,foo" {
			t.Errorf("%s: unexpected keys %v", gw, nerr.Keys)
		}
	}

	if _, err := Normalize(model.GatewayXendit, []byte(`not json`), time.Now()); !errors.Is(err, domain.ErrUnrecognizedPayload) {
		t.Errorf("expected ErrUnrecognizedPayload for invalid JSON, got %v", err)
	}
	if _, err := Normalize(model.GatewayXendit, []byte(`{"account_number":"1"}`), time.Now()); !errors.Is(err, domain.ErrUnrecognizedPayload) {
		t.Errorf("expected error for missing external_id, got %v", err)
	}
}

func TestOrderRefResolver(t *testing.T) {
	r := NewOrderRefResolver("OASIS", "starter")

	cases := []struct {
		in   string
		plan string
		ok   bool
	}{
		{"OASIS-PROFESSIONAL-1699999999-AB12CD", "professional", true},
		{"oasis-Enterprise-1699999999-AB12CD", "enterprise", true},
		{"OASIS-XX", "starter", false},
		{"", "starter", false},
		{"OTHER-PROFESSIONAL-1-A", "starter", false},
	}
	for _, tc := range cases {
		plan, ok := r.ResolvePlan(tc.in)
		if plan != tc.plan || ok != tc.ok {
			t.Errorf("ResolvePlan(%q) = (%q, %v); want (%q, %v)", tc.in, plan, ok, tc.plan, tc.ok)
		}
	}

	now := time.UnixMilli(1699999999000)
	id := r.NewMerchantOrderID("professional", now)
	if !strings.HasPrefix(id, "OASIS-PROFESSIONAL-1699999999000-") || len(id) != len("OASIS-PROFESSIONAL-1699999999000-")+6 {
		t.Fatalf("unexpected order id %q", id)
	}
	if plan, ok := r.ResolvePlan(id); !ok || plan != "professional" {
		t.Fatalf("generated id must round-trip, got (%q, %v)", plan, ok)
	}
	if r.NewMerchantOrderID("starter", now) == r.NewMerchantOrderID("starter", now) {
		t.Error("order ids must not collide within the same millisecond")
	}
}
