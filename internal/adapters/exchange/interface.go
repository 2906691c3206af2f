package exchange

import (
	"context"
	"time"
)

// Gateway is the venue surface the service uses
type Gateway interface {
	// Read path
	FetchAccounts(ctx context.Context) ([]Account, error)
	FetchBalances(ctx context.Context) ([]Balance, error)
	FetchPositions(ctx context.Context) ([]Position, error)
	FetchOrders(ctx context.Context, status string) ([]Order, error)
	FetchTransactions(ctx context.Context, since time.Time) ([]Transaction, error)
	FetchPrice(ctx context.Context, asset string) (*Price, error)

	// Trading path
	PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error

	// FindByClientOrderID returns nil, nil when the venue has no such order
	FindByClientOrderID(ctx context.Context, clientOrderID string) (*Order, error)
}

// Ensure the venues implement Gateway
var (
	_ Gateway = (*Client)(nil)
	_ Gateway = (*PaperVenue)(nil)
	_ Gateway = (*readOnlyGateway)(nil)
)
