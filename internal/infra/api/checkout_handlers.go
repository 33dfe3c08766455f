package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/infra/logging"
	"oasis-billing/internal/usecase"
)

// PlanLister is the read side of the plan catalogue.
type PlanLister interface {
	List(ctx context.Context) ([]*model.SubscriptionPlan, error)
}

type checkoutRequest struct {
	UserID        string `json:"userId"`
	PlanID        string `json:"planId"`
	PaymentMethod string `json:"paymentMethod"` // va | ewallet
	BankCode      string `json:"bankCode"`
	EWalletType   string `json:"ewalletType"`
	CustomerName  string `json:"customerName"`
	PhoneNumber   string `json:"phoneNumber"`
}

type checkoutData struct {
	PaymentMethod  string `json:"paymentMethod"`
	Reference      string `json:"reference"`
	ExternalID     string `json:"externalId"`
	PlanID         string `json:"planId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	ExpiryDate     string `json:"expiryDate,omitempty"`
	VANumber       string `json:"vaNumber,omitempty"`
	BankCode       string `json:"bankCode,omitempty"`
	ExpectedAmount int64  `json:"expectedAmount,omitempty"`
	ChargeID       string `json:"chargeId,omitempty"`
	CheckoutURL    string `json:"checkoutUrl,omitempty"`
	Status         string `json:"status,omitempty"`
}

func checkoutHandler(payments usecase.PaymentUseCase, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
		switch method {
		case "", "va":
			method = usecase.MethodVirtualAccount
		}
		bank := req.BankCode
		if method == usecase.MethodVirtualAccount && bank == "" {
			bank = "BCA"
		}

		res, err := payments.Checkout(r.Context(), usecase.CheckoutRequest{
			UserID:      req.UserID,
			PlanID:      req.PlanID,
			Method:      method,
			BankCode:    bank,
			ChannelCode: req.EWalletType,
			Name:        req.CustomerName,
			Phone:       req.PhoneNumber,
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidPlan):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, domain.ErrGatewayRequestFailed):
				writeError(w, http.StatusBadGateway, "Payment gateway request failed")
			default:
				logging.With(r.Context(), logger).Error().Err(err).Msg("checkout failed")
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
			return
		}

		t := res.Transaction
		data := checkoutData{
			PaymentMethod: method,
			Reference:     t.MerchantOrderID,
			ExternalID:    t.MerchantOrderID,
			PlanID:        t.PlanID,
			Amount:        t.Amount,
			Currency:      t.Currency,
		}
		if t.GatewayReference != nil {
			data.Reference = *t.GatewayReference
		}
		if va := res.VirtualAccount; va != nil {
			data.VANumber = va.AccountNumber
			data.BankCode = va.BankCode
			data.ExpectedAmount = va.ExpectedAmount
			if !va.ExpiresAt.IsZero() {
				data.ExpiryDate = va.ExpiresAt.UTC().Format(time.RFC3339)
			}
		}
		if ch := res.EWallet; ch != nil {
			data.ChargeID = ch.ID
			data.CheckoutURL = ch.CheckoutURL
			data.Status = ch.Status
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
	}
}

type transactionView struct {
	MerchantOrderID string `json:"merchantOrderId"`
	PlanID          string `json:"planId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	UpdatedAt       string `json:"updatedAt"`
}

// checkoutStatusHandler lets a client poll its order after checkout.
func checkoutStatusHandler(payments usecase.PaymentUseCase, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := payments.Transaction(r.Context(), chi.URLParam(r, "orderID"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Transaction not found")
				return
			}
			logging.With(r.Context(), logger).Error().Err(err).Msg("transaction lookup failed")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": transactionView{
			MerchantOrderID: t.MerchantOrderID,
			PlanID:          t.PlanID,
			Amount:          t.Amount,
			Currency:        t.Currency,
			Status:          string(t.Status),
			UpdatedAt:       t.UpdatedAt.UTC().Format(time.RFC3339),
		}})
	}
}

func checkoutInfoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Xendit Checkout Endpoint",
		"status":    "Active",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"note":      "This endpoint creates Xendit payment requests for subscription billing",
		"methods":   []string{"Virtual Account (BCA, Mandiri, BNI, BRI, Permata)", "E-Wallet (OVO, DANA, LinkAja)"},
	})
}

type planView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DurationDays int    `json:"duration_days"`
	Price        int64  `json:"price"`
	Currency     string `json:"currency"`
}

func plansListHandler(plans PlanLister, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := plans.List(r.Context())
		if err != nil {
			logging.With(r.Context(), logger).Error().Err(err).Msg("list plans failed")
			writeError(w, http.StatusInternalServerError, "Failed to list plans")
			return
		}
		items := make([]planView, 0, len(list))
		for _, p := range list {
			items = append(items, planView{
				ID:           p.ID,
				Name:         p.Name,
				DurationDays: p.DurationDays,
				Price:        p.Price,
				Currency:     p.Currency,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}
