package payment

import (
	"strings"

	"oasis-billing/internal/domain/model"
)

// Faspay Debit API payment_status_code values.
var faspayLegacyStatus = map[string]model.PaymentStatus{
	"0": model.PaymentStatusPending, // unprocessed
	"1": model.PaymentStatusPending, // in process
	"2": model.PaymentStatusSuccess,
	"3": model.PaymentStatusCancelled, // failed
	"7": model.PaymentStatusExpired,
	"8": model.PaymentStatusCancelled,
	// 4 reversal, 5 no bills, 9 unknown: left unmapped on purpose
}

// Faspay SNAP paymentFlagStatus values.
var faspaySNAPStatus = map[string]model.PaymentStatus{
	"00": model.PaymentStatusSuccess,
	"01": model.PaymentStatusPending,
	"02": model.PaymentStatusExpired,
	"03": model.PaymentStatusCancelled,
}

var xenditStatus = map[string]model.PaymentStatus{
	"PAID":      model.PaymentStatusSuccess,
	"SUCCEEDED": model.PaymentStatusSuccess,
	"PENDING":   model.PaymentStatusPending,
	"ACTIVE":    model.PaymentStatusPending,
	"EXPIRED":   model.PaymentStatusExpired,
	"FAILED":    model.PaymentStatusCancelled,
	"INACTIVE":  model.PaymentStatusCancelled,
}

// MapStatus translates a raw gateway status token. An absent token means
// pending; success is only ever returned for an explicit match.
func MapStatus(gw model.Gateway, format model.Format, raw string) model.PaymentStatus {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.PaymentStatusPending
	}

	var table map[string]model.PaymentStatus
	switch {
	case gw == model.GatewayFaspay && format == model.FormatFaspayLegacy:
		table = faspayLegacyStatus
	case gw == model.GatewayFaspay && format == model.FormatFaspaySNAP:
		table = faspaySNAPStatus
	case gw == model.GatewayXendit:
		table = xenditStatus
		raw = strings.ToUpper(raw)
	}
	if s, ok := table[raw]; ok {
		return s
	}
	return model.PaymentStatusUnknown
}
