package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperVenue is an in-process venue that fills market orders at a fixed price table.
// It enforces ClientOrderID uniqueness like a real venue does.
type PaperVenue struct {
	mu           sync.Mutex
	quote        string
	prices       map[string]decimal.Decimal
	feeRate      decimal.Decimal
	orders       map[string]*Order
	byClientID   map[string]string
	transactions []Transaction
	positions    map[string]*Position
	balances     map[string]decimal.Decimal
	placeCalls   int
	now          func() time.Time

	// PlaceHook lets tests inject a failure before or after an order is recorded
	PlaceHook func(req *OrderRequest, recorded bool) error
}

// NewPaperVenue creates a paper venue with a quote balance
func NewPaperVenue(quote string, cash decimal.Decimal) *PaperVenue {
	if quote == "" {
		quote = defaultQuote
	}
	return &PaperVenue{
		quote:      quote,
		prices:     make(map[string]decimal.Decimal),
		feeRate:    decimal.RequireFromString("0.001"),
		orders:     make(map[string]*Order),
		byClientID: make(map[string]string),
		positions:  make(map[string]*Position),
		balances:   map[string]decimal.Decimal{quote: cash},
		now:        time.Now,
	}
}

// SetPrice sets the fill price of an asset
func (p *PaperVenue) SetPrice(asset string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[strings.ToUpper(asset)] = price
}

// PlaceCalls reports how many PlaceOrder calls reached the venue
func (p *PaperVenue) PlaceCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.placeCalls
}

// AddTransaction records a settled trade, used to seed loss history
func (p *PaperVenue) AddTransaction(tx Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transactions = append(p.transactions, tx)
}

// SetPosition seeds an open position
func (p *PaperVenue) SetPosition(pos Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := pos
	cp.Asset = strings.ToUpper(cp.Asset)
	p.positions[cp.Asset] = &cp
}

func (p *PaperVenue) FetchAccounts(ctx context.Context) ([]Account, error) {
	return []Account{{ID: "paper", Currency: p.quote, Status: "active"}}, nil
}

func (p *PaperVenue) FetchBalances(ctx context.Context) ([]Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Balance, 0, len(p.balances))
	for cur, amt := range p.balances {
		out = append(out, Balance{Currency: cur, Available: amt})
	}
	return out, nil
}

func (p *PaperVenue) FetchPositions(ctx context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		cp := *pos
		if price, ok := p.prices[cp.Asset]; ok {
			cp.MarketValue = cp.Quantity.Mul(price)
			cp.UnrealizedPnL = price.Sub(cp.AvgEntryPrice).Mul(cp.Quantity)
		}
		out = append(out, cp)
	}
	return out, nil
}

func (p *PaperVenue) FetchOrders(ctx context.Context, status string) ([]Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Order, 0, len(p.orders))
	for _, o := range p.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (p *PaperVenue) FetchTransactions(ctx context.Context, since time.Time) ([]Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Transaction, 0)
	for _, tx := range p.transactions {
		if !tx.ExecutedAt.Before(since) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (p *PaperVenue) FetchPrice(ctx context.Context, asset string) (*Price, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	asset = strings.ToUpper(asset)
	price, ok := p.prices[asset]
	if !ok {
		return nil, &ErrorResponse{StatusCode: http.StatusNotFound, Code: "UNKNOWN_SYMBOL", Message: "no price for " + asset}
	}
	return &Price{Asset: asset, Quote: p.quote, Last: price, At: p.now()}, nil
}

func (p *PaperVenue) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.PlaceHook != nil {
		if err := p.PlaceHook(req, false); err != nil {
			return nil, err
		}
	}

	order, err := p.place(req)
	if err != nil {
		return nil, err
	}

	if p.PlaceHook != nil {
		if err := p.PlaceHook(req, true); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (p *PaperVenue) place(req *OrderRequest) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placeCalls++

	if req.ClientOrderID == "" {
		return nil, &ErrorResponse{StatusCode: http.StatusBadRequest, Code: "MISSING_CLIENT_ORDER_ID", Message: "client_order_id is required"}
	}
	if _, dup := p.byClientID[req.ClientOrderID]; dup {
		return nil, &ErrorResponse{StatusCode: http.StatusConflict, Code: "DUPLICATE_CLIENT_ORDER_ID", Message: "client_order_id already used"}
	}
	asset := strings.ToUpper(req.Asset)
	price, ok := p.prices[asset]
	if !ok {
		return nil, &ErrorResponse{StatusCode: http.StatusBadRequest, Code: "UNKNOWN_SYMBOL", Message: "unknown symbol " + asset}
	}
	if !req.Quantity.IsPositive() {
		return nil, &ErrorResponse{StatusCode: http.StatusBadRequest, Code: "INVALID_QUANTITY", Message: "quantity must be positive"}
	}

	notional := req.Quantity.Mul(price)
	fee := notional.Mul(p.feeRate)
	side := strings.ToLower(req.Side)
	switch side {
	case "buy":
		cash := p.balances[p.quote]
		if cash.LessThan(notional.Add(fee)) {
			return nil, &ErrorResponse{StatusCode: http.StatusUnprocessableEntity, Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds"}
		}
		p.balances[p.quote] = cash.Sub(notional).Sub(fee)
		p.addToPosition(asset, req.Quantity, price)
	case "sell":
		pos := p.positions[asset]
		if pos == nil || pos.Quantity.LessThan(req.Quantity) {
			return nil, &ErrorResponse{StatusCode: http.StatusUnprocessableEntity, Code: "INSUFFICIENT_POSITION", Message: "insufficient position"}
		}
		pos.Quantity = pos.Quantity.Sub(req.Quantity)
		if pos.Quantity.IsZero() {
			delete(p.positions, asset)
		}
		p.balances[p.quote] = p.balances[p.quote].Add(notional).Sub(fee)
	default:
		return nil, &ErrorResponse{StatusCode: http.StatusBadRequest, Code: "INVALID_SIDE", Message: fmt.Sprintf("invalid side %q", req.Side)}
	}

	now := p.now()
	order := &Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Asset:         asset,
		Side:          side,
		Type:          "market",
		Quantity:      req.Quantity,
		FilledQty:     req.Quantity,
		AvgFillPrice:  price,
		Fee:           fee,
		Status:        OrderStatusFilled,
		CreatedAt:     now,
	}
	p.orders[order.ID] = order
	p.byClientID[req.ClientOrderID] = order.ID
	p.transactions = append(p.transactions, Transaction{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		Asset:      asset,
		Side:       side,
		Quantity:   req.Quantity,
		Price:      price,
		ExecutedAt: now,
	})
	cp := *order
	return &cp, nil
}

func (p *PaperVenue) addToPosition(asset string, qty, price decimal.Decimal) {
	pos := p.positions[asset]
	if pos == nil {
		p.positions[asset] = &Position{Asset: asset, Side: "long", Quantity: qty, AvgEntryPrice: price}
		return
	}
	total := pos.Quantity.Add(qty)
	pos.AvgEntryPrice = pos.AvgEntryPrice.Mul(pos.Quantity).Add(price.Mul(qty)).Div(total)
	pos.Quantity = total
}

func (p *PaperVenue) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return &ErrorResponse{StatusCode: http.StatusNotFound, Code: "ORDER_NOT_FOUND", Message: "order not found"}
	}
	if o.Status != OrderStatusOpen {
		return &ErrorResponse{StatusCode: http.StatusConflict, Code: "ORDER_NOT_OPEN", Message: "order is " + o.Status}
	}
	o.Status = OrderStatusCancelled
	return nil
}

func (p *PaperVenue) FindByClientOrderID(ctx context.Context, clientOrderID string) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byClientID[clientOrderID]
	if !ok {
		return nil, nil
	}
	cp := *p.orders[id]
	return &cp, nil
}
