// Package book implements a per-contract limit order book with price-time
// priority: bids sorted by price descending, asks by price ascending, ties
// broken by earliest submission.
package book

import (
	"sort"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

// Book holds the open orders for one contract. It is not safe for
// concurrent use; the matching engine serializes access per contract.
type Book struct {
	PropID string

	bids []*types.Order
	asks []*types.Order
}

func New(propID string) *Book {
	return &Book{PropID: propID}
}

// Insert places an open order at its price-time position.
func (b *Book) Insert(o *types.Order) {
	if o.Side == types.SideBuy {
		b.bids = insert(b.bids, o, bidBefore)
	} else {
		b.asks = insert(b.asks, o, askBefore)
	}
}

// bidBefore reports whether a should rest ahead of b on the bid side.
func bidBefore(a, b *types.Order) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// askBefore reports whether a should rest ahead of b on the ask side.
func askBefore(a, b *types.Order) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func insert(side []*types.Order, o *types.Order, before func(a, b *types.Order) bool) []*types.Order {
	idx := sort.Search(len(side), func(i int) bool {
		return before(o, side[i])
	})
	side = append(side, nil)
	copy(side[idx+1:], side[idx:])
	side[idx] = o
	return side
}

// BestBid returns the highest-priced resting bid, or nil.
func (b *Book) BestBid() *types.Order {
	if len(b.bids) == 0 {
		return nil
	}
	return b.bids[0]
}

// BestAsk returns the lowest-priced resting ask, or nil.
func (b *Book) BestAsk() *types.Order {
	if len(b.asks) == 0 {
		return nil
	}
	return b.asks[0]
}

// Remove deletes the order with the given ID from either side. It returns
// the removed order, or nil if no open order with that ID rests here.
func (b *Book) Remove(orderID string) *types.Order {
	if o, rest, ok := removeByID(b.bids, orderID); ok {
		b.bids = rest
		return o
	}
	if o, rest, ok := removeByID(b.asks, orderID); ok {
		b.asks = rest
		return o
	}
	return nil
}

func removeByID(side []*types.Order, orderID string) (*types.Order, []*types.Order, bool) {
	for i, o := range side {
		if o.OrderID == orderID {
			return o, append(side[:i], side[i+1:]...), true
		}
	}
	return nil, side, false
}

// Level is one aggregated price point in a depth snapshot.
type Level struct {
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Orders   int     `json:"orders"`
}

// Depth returns aggregated bid and ask levels, best-priced first, up to
// limit levels per side. A limit <= 0 means no cap.
func (b *Book) Depth(limit int) (bids, asks []Level) {
	return levels(b.bids, limit), levels(b.asks, limit)
}

func levels(side []*types.Order, limit int) []Level {
	out := make([]Level, 0, len(side))
	for _, o := range side {
		if n := len(out); n > 0 && out[n-1].Price == o.Price {
			out[n-1].Quantity += o.Remaining
			out[n-1].Orders++
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, Level{Price: o.Price, Quantity: o.Remaining, Orders: 1})
	}
	return out
}

// Len returns the number of resting orders on both sides.
func (b *Book) Len() int {
	return len(b.bids) + len(b.asks)
}
