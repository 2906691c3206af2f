package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scope is what a credential is allowed to do
type Scope string

const (
	ScopeTrading  Scope = "trading"
	ScopeReadOnly Scope = "read_only"
)

// Credential identifies a venue account
type Credential struct {
	APIKey    string
	APISecret string
	Scope     Scope
}

// Account is a venue account
type Account struct {
	ID       string `json:"id"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// Balance is the holding of one currency
type Balance struct {
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Hold      decimal.Decimal `json:"hold"`
}

// Position is an open spot position valued in the quote currency
type Position struct {
	Asset         string          `json:"asset"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Order statuses reported by the venue
const (
	OrderStatusOpen      = "open"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
	OrderStatusRejected  = "rejected"
)

// Order is an order as the venue reports it
type Order struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"client_order_id"`
	Asset         string          `json:"asset"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	FilledQty     decimal.Decimal `json:"filled_qty"`
	AvgFillPrice  decimal.Decimal `json:"avg_fill_price"`
	Fee           decimal.Decimal `json:"fee"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Transaction is a settled trade with its realized result
type Transaction struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	Asset       string          `json:"asset"`
	Side        string          `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// Price is the last traded price of an asset in the quote currency
type Price struct {
	Asset string          `json:"asset"`
	Quote string          `json:"quote"`
	Last  decimal.Decimal `json:"last"`
	At    time.Time       `json:"at"`
}

// OrderRequest places an order. ClientOrderID must be unique per venue account;
// the venue rejects a second order with the same value.
type OrderRequest struct {
	ClientOrderID string           `json:"client_order_id"`
	Asset         string           `json:"asset"`
	Quote         string           `json:"quote"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	Quantity      decimal.Decimal  `json:"quantity"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
}
