package adapter

import "context"

// ReviewAlert tells operators that a callback needs manual reconciliation.
type ReviewAlert struct {
	EventID         string
	Gateway         string
	MerchantOrderID string
	Reason          string
}

// Alerter delivers review alerts. Delivery is best effort.
type Alerter interface {
	Alert(ctx context.Context, a ReviewAlert) error
}
