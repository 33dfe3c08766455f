//go:build !integration

package config

import (
	"errors"
	"testing"
	"time"

	"oasis-billing/internal/domain"
)

const minimalYAML = `
database:
  url: postgres://localhost/oasis
admin:
  jwt_secret: s3cret
faspay:
  merchant_id: "31932"
  password: p@ss
xendit:
  webhook_token: ${OASIS_TEST_XENDIT_TOKEN}
`

func TestParse_DefaultsAndEnvExpansion(t *testing.T) {
	t.Setenv("OASIS_TEST_XENDIT_TOKEN", "tok-from-env")

	cfg, err := Parse([]byte(minimalYAML), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Xendit.WebhookToken != "tok-from-env" {
		t.Errorf("expected env expansion, got %q", cfg.Xendit.WebhookToken)
	}
	if cfg.Billing.StoreTimeout != 30*time.Second {
		t.Errorf("store_timeout default: got %s", cfg.Billing.StoreTimeout)
	}
	if cfg.Billing.OrderPrefix != "OASIS" || cfg.Billing.FallbackPlan != "starter" || cfg.Billing.Currency != "IDR" {
		t.Errorf("unexpected billing defaults: %+v", cfg.Billing)
	}
	if cfg.Faspay.SNAP.EndpointPath != "/callback/payment" {
		t.Errorf("snap endpoint default: got %q", cfg.Faspay.SNAP.EndpointPath)
	}
	if !cfg.Secrets().SNAPRequireSignature {
		t.Error("missing SNAP signatures must be rejected by default")
	}
	if cfg.Replay.Interval != time.Minute || cfg.Replay.MaxAttempts != 5 || cfg.Replay.StalePendingAfter != 24*time.Hour {
		t.Errorf("unexpected replay defaults: %+v", cfg.Replay)
	}
}

func TestParse_DollarInSecretIsLiteral(t *testing.T) {
	t.Setenv("en", "SHOULD-NOT-APPEAR")
	t.Setenv("OASIS_TEST_MERCHANT", "31932")
	y := `
database:
  url: postgres://localhost/oasis
admin:
  jwt_secret: s3cret
faspay:
  merchant_id: ${OASIS_TEST_MERCHANT}
  password: "p@$$w0rd$9x"
xendit:
  webhook_token: "tok$en"
`
	cfg, err := Parse([]byte(y), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Faspay.Password != "p@$$w0rd$9x" {
		t.Errorf("password = %q, want it unchanged", cfg.Faspay.Password)
	}
	if cfg.Xendit.WebhookToken != "tok$en" {
		t.Errorf("webhook_token = %q, want it unchanged", cfg.Xendit.WebhookToken)
	}
	if cfg.Faspay.MerchantID != "31932" {
		t.Errorf("merchant_id = %q, braced reference not expanded", cfg.Faspay.MerchantID)
	}
}

func TestParse_RequireSignatureOptOut(t *testing.T) {
	y := `
database:
  url: postgres://localhost/oasis
admin:
  jwt_secret: s3cret
faspay:
  merchant_id: "31932"
  password: p@ss
  snap:
    require_signature: false
xendit:
  webhook_token: tok
`
	cfg, err := Parse([]byte(y), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Secrets().SNAPRequireSignature {
		t.Error("expected require_signature=false to be honoured")
	}
}

func TestParse_MissingSecretsFailFast(t *testing.T) {
	cases := map[string]string{
		"faspay merchant": `
faspay:
  password: p
xendit:
  webhook_token: t
`,
		"faspay password": `
faspay:
  merchant_id: m
xendit:
  webhook_token: t
`,
		"xendit token": `
faspay:
  merchant_id: m
  password: p
`,
	}
	for name, y := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(y), true)
			if !errors.Is(err, domain.ErrConfigMissingSecret) {
				t.Fatalf("expected ErrConfigMissingSecret, got %v", err)
			}
		})
	}
}

func TestParse_DevRelaxesInfrastructure(t *testing.T) {
	y := `
faspay:
  merchant_id: m
  password: p
xendit:
  webhook_token: t
`
	if _, err := Parse([]byte(y), true); err != nil {
		t.Fatalf("dev mode should not require database/admin settings: %v", err)
	}
	if _, err := Parse([]byte(y), false); err == nil {
		t.Fatal("expected error without database.url outside dev mode")
	}
}
