package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"oasis-billing/internal/config"
	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
)

const (
	HeaderSignature     = "X-Signature"
	HeaderTimestamp     = "X-Timestamp"
	HeaderCallbackToken = "X-Callback-Token"
)

// Check is the outcome of a signature verification.
type Check int

const (
	CheckInvalid Check = iota
	CheckValid
	CheckMissing // no signature material was sent at all
)

func (c Check) String() string {
	switch c {
	case CheckValid:
		return "valid"
	case CheckMissing:
		return "missing"
	}
	return "invalid"
}

// Verifier authenticates inbound callbacks. It never fails per request:
// configuration problems surface once, from NewVerifier.
type Verifier struct {
	secrets config.GatewaySecrets
}

func NewVerifier(s config.GatewaySecrets) (*Verifier, error) {
	switch {
	case s.FaspayMerchantID == "":
		return nil, fmt.Errorf("faspay merchant id: %w", domain.ErrConfigMissingSecret)
	case s.FaspayPassword == "":
		return nil, fmt.Errorf("faspay password: %w", domain.ErrConfigMissingSecret)
	case s.XenditCallbackToken == "":
		return nil, fmt.Errorf("xendit callback token: %w", domain.ErrConfigMissingSecret)
	}
	if s.SNAPSecret == "" {
		s.SNAPSecret = s.FaspayPassword
	}
	if s.SNAPEndpointPath == "" {
		s.SNAPEndpointPath = "/callback/payment"
	}
	return &Verifier{secrets: s}, nil
}

// RequireSNAPSignature reports whether unsigned SNAP notifications are rejected.
func (v *Verifier) RequireSNAPSignature() bool { return v.secrets.SNAPRequireSignature }

// Verify dispatches on gateway and format.
func (v *Verifier) Verify(gw model.Gateway, format model.Format, body []byte, h http.Header) Check {
	switch gw {
	case model.GatewayXendit:
		return v.VerifyXendit(h)
	case model.GatewayFaspay:
		if format == model.FormatFaspayLegacy {
			return v.VerifyFaspayLegacy(body)
		}
		return v.VerifyFaspaySNAP(http.MethodPost, body, h)
	}
	return CheckInvalid
}

// VerifyFaspayLegacy checks the body signature of a Debit API notification.
func (v *Verifier) VerifyFaspayLegacy(body []byte) Check {
	r := gjson.ParseBytes(body)
	sig := strings.TrimSpace(r.Get("signature").String())
	if sig == "" {
		return CheckMissing
	}
	want := SignFaspayLegacy(v.secrets.FaspayMerchantID, v.secrets.FaspayPassword,
		r.Get("bill_no").String(), r.Get("payment_status_code").String())
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(sig))) == 1 {
		return CheckValid
	}
	return CheckInvalid
}

// VerifyFaspaySNAP checks the X-Signature header of a SNAP notification.
func (v *Verifier) VerifyFaspaySNAP(method string, body []byte, h http.Header) Check {
	sig := strings.TrimSpace(h.Get(HeaderSignature))
	ts := strings.TrimSpace(h.Get(HeaderTimestamp))
	if sig == "" || ts == "" {
		return CheckMissing
	}
	want, err := SignFaspaySNAP(v.secrets.SNAPSecret, method, v.secrets.SNAPEndpointPath, v.secrets.SNAPAccessToken, body, ts)
	if err != nil {
		return CheckInvalid
	}
	if hmac.Equal([]byte(want), []byte(sig)) {
		return CheckValid
	}
	return CheckInvalid
}

// VerifyXendit compares the static callback token.
func (v *Verifier) VerifyXendit(h http.Header) Check {
	tok := h.Get(HeaderCallbackToken)
	if tok == "" {
		return CheckMissing
	}
	if subtle.ConstantTimeCompare([]byte(tok), []byte(v.secrets.XenditCallbackToken)) == 1 {
		return CheckValid
	}
	return CheckInvalid
}

// SignFaspayLegacy returns lowercase hex SHA1(hex(MD5(merchantID+password+billNo+statusCode))).
func SignFaspayLegacy(merchantID, password, billNo, statusCode string) string {
	m := md5.Sum([]byte(merchantID + password + billNo + statusCode))
	s := sha1.Sum([]byte(hex.EncodeToString(m[:])))
	return hex.EncodeToString(s[:])
}

// SignFaspaySNAP returns base64 HMAC-SHA256 over
// METHOD:path[:accessToken]:lowerhex(sha256(minified body)):timestamp.
func SignFaspaySNAP(secret, method, path, accessToken string, body []byte, timestamp string) (string, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return "", fmt.Errorf("minify body: %w", err)
	}
	sum := sha256.Sum256(compact.Bytes())

	parts := []string{strings.ToUpper(method), path}
	if accessToken != "" {
		parts = append(parts, accessToken)
	}
	parts = append(parts, strings.ToLower(hex.EncodeToString(sum[:])), timestamp)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, ":")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
