// Package engine matches incoming orders against per-contract books.
// Execution is maker-price with price-time priority; every fill updates the
// contract registry, both portfolios, and the trade ledger. All mutations
// to one contract's book are serialized by a per-contract lock, so distinct
// contracts trade concurrently.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/book"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/portfolio"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/registry"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/stream"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

type Engine struct {
	registry  *registry.Registry
	portfolio *portfolio.Tracker
	db        *Database
	events    *stream.Hub // optional

	mu    sync.Mutex
	books map[string]*book.Book
	locks map[string]*sync.Mutex
}

// Fill describes one execution between an incoming taker and a resting
// maker. Price is always the maker's price.
type Fill struct {
	TakerOrderID string    `json:"taker_order_id"`
	MakerOrderID string    `json:"maker_order_id"`
	BuyerID      string    `json:"buyer_id"`
	SellerID     string    `json:"seller_id"`
	Price        float64   `json:"price"`
	Quantity     int       `json:"quantity"`
	CreatedAt    time.Time `json:"created_at"`
}

// SubmitResult is the outcome of one order submission: the order in its
// post-matching state plus any fills it produced.
type SubmitResult struct {
	Order types.Order `json:"order"`
	Fills []Fill      `json:"fills,omitempty"`
}

// OrderBookSnapshot is an aggregated view of one contract's resting depth.
type OrderBookSnapshot struct {
	PropID string       `json:"prop_id"`
	Bids   []book.Level `json:"bids"`
	Asks   []book.Level `json:"asks"`
}

// New builds an engine and rehydrates books and positions from the store.
func New(gormDB *gorm.DB, reg *registry.Registry, tracker *portfolio.Tracker, events *stream.Hub) (*Engine, error) {
	e := &Engine{
		registry:  reg,
		portfolio: tracker,
		db:        NewDatabase(gormDB),
		events:    events,
		books:     make(map[string]*book.Book),
		locks:     make(map[string]*sync.Mutex),
	}

	positions, err := e.db.ListPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	tracker.Load(positions)

	open, err := e.db.ListOpenOrders()
	if err != nil {
		return nil, fmt.Errorf("failed to load open orders: %w", err)
	}
	for i := range open {
		o := open[i]
		e.bookFor(o.PropID).Insert(&o)
	}

	log.Info().
		Int("open_orders", len(open)).
		Int("positions", len(positions)).
		Msg("matching engine hydrated")
	return e, nil
}

func (e *Engine) lockFor(propID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[propID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[propID] = l
	}
	return l
}

func (e *Engine) bookFor(propID string) *book.Book {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[propID]
	if !ok {
		b = book.New(propID)
		e.books[propID] = b
	}
	return b
}

// Submit validates an order against the contract's game status and the
// owner's portfolio capacity, crosses it against the opposite side of the
// book, and rests any unmatched remainder. Rejected submissions leave all
// state untouched.
func (e *Engine) Submit(userID, propID string, side types.OrderSide, price float64, quantity int) (*SubmitResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", types.ErrValidation)
	}
	if side != types.SideBuy && side != types.SideSell {
		return nil, fmt.Errorf("%w: side must be %q or %q", types.ErrValidation, types.SideBuy, types.SideSell)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", types.ErrValidation)
	}
	if price <= 0 || price > types.StandardPayout {
		return nil, fmt.Errorf("%w: price %.2f outside (0, %.0f]", types.ErrValidation, price, types.StandardPayout)
	}

	lock := e.lockFor(propID)
	lock.Lock()
	defer lock.Unlock()

	contract, err := e.registry.Get(propID)
	if err != nil {
		return nil, err
	}
	if err := e.checkTradingRule(contract, userID, side, quantity); err != nil {
		return nil, err
	}

	delta := quantity
	if side == types.SideSell {
		delta = -quantity
	}
	if err := e.portfolio.CheckCapacity(userID, propID, delta); err != nil {
		return nil, err
	}

	now := time.Now()
	order := &types.Order{
		OrderID:   uuid.New().String(),
		UserID:    userID,
		PropID:    propID,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Remaining: quantity,
		Status:    types.OrderOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.db.CreateOrder(order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	fills := e.match(order)

	if order.Remaining > 0 {
		e.bookFor(propID).Insert(order)
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("prop_id", propID).
		Str("side", string(side)).
		Float64("price", price).
		Int("quantity", quantity).
		Int("remaining", order.Remaining).
		Int("fills", len(fills)).
		Msg("order submitted")

	return &SubmitResult{Order: *order, Fills: fills}, nil
}

// checkTradingRule enforces the game-status trading rule: UPCOMING is an
// open market, LIVE only lets holders sell and short coverers buy, FINAL
// rejects everything.
func (e *Engine) checkTradingRule(contract *types.Contract, userID string, side types.OrderSide, quantity int) error {
	switch contract.GameStatus {
	case types.GameUpcoming:
		return nil
	case types.GameFinal:
		return fmt.Errorf("%w: game is final, contract awaiting settlement", types.ErrMarketClosed)
	case types.GameLive:
		pos := e.portfolio.Position(userID, contract.PropID)
		if side == types.SideSell {
			if pos < 1 {
				return fmt.Errorf("%w: live selling requires holding at least one contract", types.ErrForbidden)
			}
			return nil
		}
		if pos >= 0 {
			return fmt.Errorf("%w: live buying is limited to covering previously sold contracts", types.ErrForbidden)
		}
		if quantity > -pos {
			return fmt.Errorf("%w: live buy of %d exceeds short position of %d", types.ErrForbidden, quantity, -pos)
		}
		return nil
	}
	return fmt.Errorf("%w: contract in unknown game status %q", types.ErrValidation, contract.GameStatus)
}

// match crosses the incoming order against the opposite side until the
// book no longer crosses or the order is exhausted. The matched price is
// always the resting maker's price. A portfolio limit hit on the maker's
// side stops matching with the maker un-decremented and the taker's
// remainder left to rest.
func (e *Engine) match(taker *types.Order) []Fill {
	bk := e.bookFor(taker.PropID)
	var fills []Fill

	for taker.Remaining > 0 {
		var maker *types.Order
		if taker.Side == types.SideBuy {
			maker = bk.BestAsk()
			if maker == nil || maker.Price > taker.Price {
				break
			}
		} else {
			maker = bk.BestBid()
			if maker == nil || maker.Price < taker.Price {
				break
			}
		}

		qty := taker.Remaining
		if maker.Remaining < qty {
			qty = maker.Remaining
		}

		buyerID, sellerID := taker.UserID, maker.UserID
		if taker.Side == types.SideSell {
			buyerID, sellerID = maker.UserID, taker.UserID
		}

		if err := e.portfolio.ApplyFill(buyerID, sellerID, taker.PropID, qty); err != nil {
			log.Warn().
				Err(err).
				Str("taker", taker.OrderID).
				Str("maker", maker.OrderID).
				Msg("fill rejected, resting remainder")
			break
		}

		now := time.Now()
		taker.Remaining -= qty
		maker.Remaining -= qty
		taker.UpdatedAt = now
		maker.UpdatedAt = now
		if taker.Remaining == 0 {
			taker.Status = types.OrderFilled
		}
		if maker.Remaining == 0 {
			maker.Status = types.OrderFilled
			bk.Remove(maker.OrderID)
		}

		fill := Fill{
			TakerOrderID: taker.OrderID,
			MakerOrderID: maker.OrderID,
			BuyerID:      buyerID,
			SellerID:     sellerID,
			Price:        maker.Price,
			Quantity:     qty,
			CreatedAt:    now,
		}
		fills = append(fills, fill)
		e.persistFill(taker, maker, fill)

		if err := e.registry.RecordMatch(taker.PropID, fill.Price, qty); err != nil {
			log.Error().Err(err).Str("prop_id", taker.PropID).Msg("failed to record match on contract")
		}

		e.events.Publish(stream.Event{
			Type:      stream.EventTrade,
			PropID:    taker.PropID,
			Price:     fill.Price,
			Quantity:  qty,
			Timestamp: now,
		})
	}

	return fills
}

func (e *Engine) persistFill(taker, maker *types.Order, fill Fill) {
	tradeID := uuid.New().String()
	total := fill.Price * float64(fill.Quantity)
	trades := []*types.Trade{
		{
			TradeID:        tradeID + "_b",
			PropID:         taker.PropID,
			UserID:         fill.BuyerID,
			CounterpartyID: fill.SellerID,
			Side:           types.SideBuy,
			Price:          fill.Price,
			Quantity:       fill.Quantity,
			Total:          total,
			CreatedAt:      fill.CreatedAt,
		},
		{
			TradeID:        tradeID + "_s",
			PropID:         taker.PropID,
			UserID:         fill.SellerID,
			CounterpartyID: fill.BuyerID,
			Side:           types.SideSell,
			Price:          fill.Price,
			Quantity:       fill.Quantity,
			Total:          total,
			CreatedAt:      fill.CreatedAt,
		},
	}

	positions := map[string]int{
		fill.BuyerID:  e.portfolio.Position(fill.BuyerID, taker.PropID),
		fill.SellerID: e.portfolio.Position(fill.SellerID, taker.PropID),
	}

	if err := e.db.RecordFill(taker, maker, trades, positions, taker.PropID); err != nil {
		// The in-memory book remains the trading authority; a failed audit
		// write is logged and surfaced through monitoring.
		log.Error().
			Err(err).
			Str("taker", taker.OrderID).
			Str("maker", maker.OrderID).
			Msg("failed to persist fill")
	}
}

// Cancel removes an open order from its book. Only the owner may cancel;
// orders that are already filled or cancelled report NotFound.
func (e *Engine) Cancel(orderID, userID string) (*types.Order, error) {
	row, err := e.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: order %s", types.ErrNotFound, orderID)
	}

	lock := e.lockFor(row.PropID)
	lock.Lock()
	defer lock.Unlock()

	if row.UserID != userID {
		return nil, fmt.Errorf("%w: order %s belongs to another user", types.ErrForbidden, orderID)
	}
	if row.Status != types.OrderOpen {
		return nil, fmt.Errorf("%w: order %s is %s", types.ErrNotFound, orderID, row.Status)
	}

	order := e.bookFor(row.PropID).Remove(orderID)
	if order == nil {
		return nil, fmt.Errorf("%w: order %s is not resting", types.ErrNotFound, orderID)
	}

	order.Status = types.OrderCancelled
	order.UpdatedAt = time.Now()
	if err := e.db.UpdateOrder(order); err != nil {
		return nil, fmt.Errorf("failed to persist cancel: %w", err)
	}

	log.Info().
		Str("order_id", orderID).
		Str("prop_id", order.PropID).
		Msg("order cancelled")
	out := *order
	return &out, nil
}

// UserOrders returns a user's full order history, newest first.
func (e *Engine) UserOrders(userID string) ([]types.Order, error) {
	return e.db.ListUserOrders(userID)
}

// UserTrades returns a user's executed trades, newest first.
func (e *Engine) UserTrades(userID string, limit int) ([]types.Trade, error) {
	return e.db.ListUserTrades(userID, limit)
}

// Book returns the aggregated depth snapshot for one contract.
func (e *Engine) Book(propID string, depth int) (*OrderBookSnapshot, error) {
	if _, err := e.registry.Get(propID); err != nil {
		return nil, err
	}

	lock := e.lockFor(propID)
	lock.Lock()
	defer lock.Unlock()

	bids, asks := e.bookFor(propID).Depth(depth)
	return &OrderBookSnapshot{PropID: propID, Bids: bids, Asks: asks}, nil
}

// CancelAllForContract cancels every resting order on a contract. The
// settlement path calls this once a game goes FINAL.
func (e *Engine) CancelAllForContract(propID string) error {
	lock := e.lockFor(propID)
	lock.Lock()
	defer lock.Unlock()

	bk := e.bookFor(propID)
	var firstErr error
	for bk.Len() > 0 {
		order := bk.BestBid()
		if order == nil {
			order = bk.BestAsk()
		}
		bk.Remove(order.OrderID)
		order.Status = types.OrderCancelled
		order.UpdatedAt = time.Now()
		if err := e.db.UpdateOrder(order); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
