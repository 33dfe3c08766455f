package model

import "time"

type CallbackEventStatus string

const (
	CallbackEventReceived  CallbackEventStatus = "received"
	CallbackEventProcessed CallbackEventStatus = "processed"
	CallbackEventReview    CallbackEventStatus = "review" // needs manual reconciliation
	CallbackEventFailed    CallbackEventStatus = "failed" // retriable, picked up by the replayer
)

// CallbackEvent is the audit row kept for every inbound gateway callback.
type CallbackEvent struct {
	ID                string // ULID
	Gateway           Gateway
	Format            Format
	MerchantOrderID   string
	ExternalReference string
	RawStatusCode     string
	Payload           []byte // raw JSON body as received
	Status            CallbackEventStatus
	Reason            string
	Attempts          int
	ReceivedAt        time.Time
	ProcessedAt       *time.Time
	UpdatedAt         time.Time
}
