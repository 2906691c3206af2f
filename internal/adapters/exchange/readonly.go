package exchange

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// NewGateway returns a gateway honoring the credential scope.
// Read-only credentials can read but every trading call fails with ErrReadOnly.
func NewGateway(config Config, logger *zap.Logger) Gateway {
	client := NewClient(config, logger)
	if config.Credential.Scope == ScopeReadOnly {
		return ReadOnly(client)
	}
	return client
}

// ReadOnly wraps any gateway so it can never place or cancel orders
func ReadOnly(inner Gateway) Gateway {
	if ro, ok := inner.(*readOnlyGateway); ok {
		return ro
	}
	return &readOnlyGateway{inner: inner}
}

type readOnlyGateway struct {
	inner Gateway
}

func (g *readOnlyGateway) FetchAccounts(ctx context.Context) ([]Account, error) {
	return g.inner.FetchAccounts(ctx)
}

func (g *readOnlyGateway) FetchBalances(ctx context.Context) ([]Balance, error) {
	return g.inner.FetchBalances(ctx)
}

func (g *readOnlyGateway) FetchPositions(ctx context.Context) ([]Position, error) {
	return g.inner.FetchPositions(ctx)
}

func (g *readOnlyGateway) FetchOrders(ctx context.Context, status string) ([]Order, error) {
	return g.inner.FetchOrders(ctx, status)
}

func (g *readOnlyGateway) FetchTransactions(ctx context.Context, since time.Time) ([]Transaction, error) {
	return g.inner.FetchTransactions(ctx, since)
}

func (g *readOnlyGateway) FetchPrice(ctx context.Context, asset string) (*Price, error) {
	return g.inner.FetchPrice(ctx, asset)
}

func (g *readOnlyGateway) FindByClientOrderID(ctx context.Context, clientOrderID string) (*Order, error) {
	return g.inner.FindByClientOrderID(ctx, clientOrderID)
}

func (g *readOnlyGateway) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	return nil, fmt.Errorf("place order: %w", ErrReadOnly)
}

func (g *readOnlyGateway) CancelOrder(ctx context.Context, orderID string) error {
	return fmt.Errorf("cancel order: %w", ErrReadOnly)
}
