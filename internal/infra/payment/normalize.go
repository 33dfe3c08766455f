package payment

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
)

// NormalizationError reports a callback body that could not be mapped to a
// PaymentEvent. Keys lists the top-level keys that were observed.
type NormalizationError struct {
	Gateway model.Gateway
	Format  model.Format
	Reason  string
	Keys    []string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s callback: %s (keys: %s)", e.Gateway, e.Reason, strings.Join(e.Keys, ","))
}

func (e *NormalizationError) Unwrap() error { return domain.ErrUnrecognizedPayload }

// DetectFormat sniffs the sub-protocol from key presence. Gateways do not
// send a reliable type field.
func DetectFormat(gw model.Gateway, body []byte) model.Format {
	if !gjson.ValidBytes(body) {
		return model.FormatUnknown
	}
	r := gjson.ParseBytes(body)
	if !r.IsObject() {
		return model.FormatUnknown
	}
	switch gw {
	case model.GatewayFaspay:
		if r.Get("bill_no").Exists() {
			return model.FormatFaspayLegacy
		}
		if anyExists(r, "virtualAccountNo", "merchantOrderId", "trxId", "paymentRequestId", "paymentFlagStatus") {
			return model.FormatFaspaySNAP
		}
	case model.GatewayXendit:
		if anyExists(r, "callback_virtual_account_id", "account_number") {
			return model.FormatXenditVA
		}
		if anyExists(r, "ewallet_type", "charge_id") || strings.HasPrefix(r.Get("event").String(), "ewallet.") {
			return model.FormatXenditEWallet
		}
	}
	return model.FormatUnknown
}

// Normalize maps a raw callback body into the canonical event.
func Normalize(gw model.Gateway, body []byte, receivedAt time.Time) (model.PaymentEvent, error) {
	format := DetectFormat(gw, body)
	r := gjson.ParseBytes(body)

	ev := model.PaymentEvent{Gateway: gw, Format: format, ReceivedAt: receivedAt}
	switch format {
	case model.FormatFaspayLegacy:
		ev.MerchantOrderID = r.Get("bill_no").String()
		ev.Amount = wholeUnits(r.Get("bill_total"))
		ev.RawStatusCode = r.Get("payment_status_code").String()
		ev.ExternalReference = first(r, "payment_reff", "trx_id").String()
	case model.FormatFaspaySNAP:
		ev.MerchantOrderID = first(r, "merchantOrderId", "trxId", "virtualAccountNo").String()
		ev.Amount = wholeUnits(first(r, "paidAmount.value", "totalAmount.value"))
		ev.RawStatusCode = r.Get("paymentFlagStatus").String()
		ev.ExternalReference = first(r, "paymentRequestId", "referenceNo").String()
	case model.FormatXenditVA:
		ev.MerchantOrderID = r.Get("external_id").String()
		ev.Amount = wholeUnits(first(r, "amount", "expected_amount"))
		ev.RawStatusCode = r.Get("status").String()
		ev.ExternalReference = first(r, "callback_virtual_account_id", "id").String()
	case model.FormatXenditEWallet:
		ev.MerchantOrderID = first(r, "reference_id", "data.reference_id").String()
		ev.Amount = wholeUnits(first(r, "charge_amount", "data.charge_amount"))
		ev.RawStatusCode = first(r, "status", "data.status").String()
		ev.ExternalReference = first(r, "charge_id", "id", "data.id").String()
	default:
		return ev, &NormalizationError{Gateway: gw, Format: format, Reason: "unrecognized shape", Keys: TopLevelKeys(body)}
	}

	ev.MerchantOrderID = strings.TrimSpace(ev.MerchantOrderID)
	if ev.MerchantOrderID == "" {
		return ev, &NormalizationError{Gateway: gw, Format: format, Reason: "missing merchant order id", Keys: TopLevelKeys(body)}
	}
	ev.Status = MapStatus(gw, format, ev.RawStatusCode)
	return ev, nil
}

// TopLevelKeys lists the object keys of body, sorted. Non-objects yield nil.
func TopLevelKeys(body []byte) []string {
	r := gjson.ParseBytes(body)
	if !r.IsObject() {
		return nil
	}
	var keys []string
	r.ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	sort.Strings(keys)
	return keys
}

func anyExists(r gjson.Result, paths ...string) bool {
	for _, p := range paths {
		if r.Get(p).Exists() {
			return true
		}
	}
	return false
}

// first returns the first path holding a non-empty value.
func first(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null && v.String() != "" {
			return v
		}
	}
	return gjson.Result{}
}

// wholeUnits accepts numbers and numeric strings such as "99000.00".
func wholeUnits(v gjson.Result) int64 {
	if !v.Exists() {
		return 0
	}
	return int64(math.Round(v.Float()))
}
