package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Transaction sources
const (
	SourceAPI      = "api"
	SourceKafka    = "kafka"
	SourceStrategy = "strategy"
)

// Portfolio is a declared (owner, name) pair. A fixed portfolio holds only the
// transactions it was created with.
type Portfolio struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Fixed     bool      `json:"fixed"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is one accepted buy or sell in a portfolio ledger. The journal of
// transactions, replayed in ID order, rebuilds every ledger.
type Transaction struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Owner     string          `json:"owner"`
	Portfolio string          `json:"portfolio"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Shares    decimal.Decimal `json:"shares"`
	TradeDate time.Time       `json:"trade_date"`
	Source    string          `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
}
