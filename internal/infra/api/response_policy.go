package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/infra/payment"
	"oasis-billing/internal/usecase"
)

// Reply is a status code and JSON body for a gateway.
type Reply struct {
	Status int
	Body   any
}

func (r Reply) Write(w http.ResponseWriter) { writeJSON(w, r.Status, r.Body) }

// Faspay reply contracts. The success shapes are sent whatever happened
// internally; only a failed signature check gets anything else.

const (
	faspayLegacyOK   = "00"
	faspaySNAPOK     = "2002500"
	faspaySNAPDenied = "4012500"
)

type faspayLegacyReply struct {
	Response     string `json:"response"`
	TrxID        string `json:"trx_id"`
	MerchantID   string `json:"merchant_id"`
	BillNo       string `json:"bill_no"`
	ResponseCode string `json:"response_code"`
	ResponseDesc string `json:"response_desc"`
	ResponseDate string `json:"response_date"`
}

type snapVAData struct {
	PartnerServiceID string          `json:"partnerServiceId"`
	CustomerNo       string          `json:"customerNo"`
	VirtualAccountNo string          `json:"virtualAccountNo"`
	PaymentRequestID string          `json:"paymentRequestId"`
	PaidAmount       json.RawMessage `json:"paidAmount,omitempty"`
}

type snapReply struct {
	ResponseCode       string      `json:"responseCode"`
	ResponseMessage    string      `json:"responseMessage"`
	VirtualAccountData *snapVAData `json:"virtualAccountData,omitempty"`
}

// FaspayAccepted echoes the identifying fields of body in the format's fixed
// success shape. Unknown formats get the SNAP shape.
func FaspayAccepted(format model.Format, body []byte, now time.Time) Reply {
	r := gjson.ParseBytes(body)
	if format == model.FormatFaspayLegacy {
		return Reply{Status: http.StatusOK, Body: faspayLegacyReply{
			Response:     "Payment Notification",
			TrxID:        r.Get("trx_id").String(),
			MerchantID:   r.Get("merchant_id").String(),
			BillNo:       r.Get("bill_no").String(),
			ResponseCode: faspayLegacyOK,
			ResponseDesc: "Success",
			ResponseDate: now.UTC().Format(time.RFC3339),
		}}
	}
	data := &snapVAData{
		PartnerServiceID: r.Get("partnerServiceId").String(),
		CustomerNo:       r.Get("customerNo").String(),
		VirtualAccountNo: r.Get("virtualAccountNo").String(),
		PaymentRequestID: firstString(r, "paymentRequestId", "referenceNo"),
	}
	if pa := r.Get("paidAmount"); pa.Exists() && pa.IsObject() {
		data.PaidAmount = json.RawMessage(pa.Raw)
	}
	return Reply{Status: http.StatusOK, Body: snapReply{
		ResponseCode:       faspaySNAPOK,
		ResponseMessage:    "Success",
		VirtualAccountData: data,
	}}
}

// FaspayRejected is the reply for a failed signature check.
func FaspayRejected(format model.Format) Reply {
	if format == model.FormatFaspayLegacy {
		return Reply{Status: http.StatusUnauthorized, Body: errorBody{Success: false, Error: "Invalid signature"}}
	}
	return Reply{Status: http.StatusUnauthorized, Body: snapReply{
		ResponseCode:    faspaySNAPDenied,
		ResponseMessage: "Invalid signature",
	}}
}

// Xendit reply contract: 401 for token problems, 200 for everything else.

type xenditReply struct {
	Success            bool     `json:"success"`
	Message            string   `json:"message,omitempty"`
	Error              string   `json:"error,omitempty"`
	ExternalID         string   `json:"external_id,omitempty"`
	Status             string   `json:"status,omitempty"`
	SubscriptionStatus string   `json:"subscription_status,omitempty"`
	Review             bool     `json:"review,omitempty"`
	PayloadKeys        []string `json:"payload_keys,omitempty"`
}

// XenditRejected maps a failed token check.
func XenditRejected(check payment.Check) Reply {
	msg := "Invalid callback token"
	if check == payment.CheckMissing {
		msg = "Missing X-Callback-Token header"
	}
	return Reply{Status: http.StatusUnauthorized, Body: errorBody{Success: false, Error: msg}}
}

// XenditUnrecognized answers a payload no normalizer matched.
func XenditUnrecognized(keys []string) Reply {
	if keys == nil {
		keys = []string{}
	}
	return Reply{Status: http.StatusOK, Body: xenditReply{
		Success:     false,
		Error:       "Unknown callback type",
		Message:     "Logged for investigation",
		PayloadKeys: keys,
	}}
}

// XenditProcessed summarises the reconciliation outcome. Internal errors are
// reported as success=false but still with 200.
func XenditProcessed(ev model.PaymentEvent, res *usecase.CallbackResult, err error) Reply {
	out := xenditReply{
		ExternalID: ev.MerchantOrderID,
		Status:     ev.RawStatusCode,
	}
	if res != nil {
		out.Review = res.NeedsReview()
		// A failed run rolled back; its transaction snapshot is not durable.
		if res.Transaction != nil && err == nil && res.Outcome != usecase.OutcomeFailed {
			out.SubscriptionStatus = string(res.Transaction.Status)
		}
	}
	switch {
	case err != nil || res == nil || res.Outcome == usecase.OutcomeFailed:
		out.Error = "Processing failed"
		out.Message = "Error logged for manual investigation"
	case res.Outcome == usecase.OutcomeUnresolved:
		out.Error = "Transaction not found"
		out.Message = "Logged for manual processing"
	default:
		out.Success = true
		out.Message = "Webhook processed successfully"
	}
	return Reply{Status: http.StatusOK, Body: out}
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}
