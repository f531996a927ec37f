package models

import "time"

// Event types carried on the portfolio topics
const (
	EventTransactionRecorded = "TRANSACTION_RECORDED"
	EventBuy                 = "BUY"
	EventSell                = "SELL"
)

// TransactionEvent is published for every recorded transaction and accepted as
// an inbound BUY or SELL command.
type TransactionEvent struct {
	EventID   string               `json:"event_id"`
	EventType string               `json:"event_type"`
	Source    string               `json:"source"`
	Data      TransactionEventData `json:"data"`
	Timestamp time.Time            `json:"timestamp"`
}

// TransactionEventData carries quantities as strings so no precision is lost in
// transit. Date is yyyy-MM-dd.
type TransactionEventData struct {
	Owner     string `json:"owner"`
	Portfolio string `json:"portfolio"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side,omitempty"`
	Shares    string `json:"shares"`
	Date      string `json:"date"`
}
