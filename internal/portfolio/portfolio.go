// Package portfolio tracks signed net positions per (user, contract) and
// enforces the portfolio size limit. A fill touches two users; their locks
// are always taken in lexicographic user-ID order so concurrent fills
// cannot deadlock.
package portfolio

import (
	"fmt"
	"sync"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

type Tracker struct {
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
	positions map[string]map[string]int // userID -> propID -> signed qty
}

func NewTracker() *Tracker {
	return &Tracker{
		userLocks: make(map[string]*sync.Mutex),
		positions: make(map[string]map[string]int),
	}
}

// Load seeds the tracker from persisted position rows.
func (t *Tracker) Load(positions []types.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range positions {
		if p.Quantity == 0 {
			continue
		}
		if t.positions[p.UserID] == nil {
			t.positions[p.UserID] = make(map[string]int)
		}
		t.positions[p.UserID][p.PropID] = p.Quantity
	}
}

func (t *Tracker) lockFor(userID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		t.userLocks[userID] = l
	}
	return l
}

func (t *Tracker) get(userID, propID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positions[userID][propID]
}

func (t *Tracker) set(userID, propID string, qty int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if qty == 0 {
		delete(t.positions[userID], propID)
		return
	}
	if t.positions[userID] == nil {
		t.positions[userID] = make(map[string]int)
	}
	t.positions[userID][propID] = qty
}

func (t *Tracker) totalAbs(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, q := range t.positions[userID] {
		total += abs(q)
	}
	return total
}

// Position returns the signed net quantity a user holds in one contract.
func (t *Tracker) Position(userID, propID string) int {
	l := t.lockFor(userID)
	l.Lock()
	defer l.Unlock()
	return t.get(userID, propID)
}

// TotalAbs returns the user's total contracts held, summed as absolute
// values across all props.
func (t *Tracker) TotalAbs(userID string) int {
	l := t.lockFor(userID)
	l.Lock()
	defer l.Unlock()
	return t.totalAbs(userID)
}

// UserPositions returns a copy of all non-zero positions for a user.
func (t *Tracker) UserPositions(userID string) map[string]int {
	l := t.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.positions[userID]))
	for prop, qty := range t.positions[userID] {
		out[prop] = qty
	}
	return out
}

// PositionsFor returns all non-zero positions in one contract, keyed by
// user. Used by settlement after trading has closed.
func (t *Tracker) PositionsFor(propID string) map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int)
	for user, props := range t.positions {
		if qty := props[propID]; qty != 0 {
			out[user] = qty
		}
	}
	return out
}

// CheckCapacity reports whether changing the user's position in propID by
// delta would stay within MaxPortfolioSize.
func (t *Tracker) CheckCapacity(userID, propID string, delta int) error {
	l := t.lockFor(userID)
	l.Lock()
	defer l.Unlock()
	return t.checkLocked(userID, propID, delta)
}

func (t *Tracker) checkLocked(userID, propID string, delta int) error {
	pos := t.get(userID, propID)
	projected := t.totalAbs(userID) - abs(pos) + abs(pos+delta)
	if projected > types.MaxPortfolioSize {
		return fmt.Errorf("%w: user %s would hold %d contracts (max %d)",
			types.ErrPortfolioLimit, userID, projected, types.MaxPortfolioSize)
	}
	return nil
}

// ApplyFill settles one match against both counterparties: the buyer's
// position grows by qty, the seller's shrinks by qty. Both updates succeed
// or neither does; a limit violation on either side returns
// ErrPortfolioLimit with the tracker unchanged.
func (t *Tracker) ApplyFill(buyerID, sellerID, propID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: fill quantity must be positive", types.ErrValidation)
	}

	first, second := buyerID, sellerID
	if second < first {
		first, second = second, first
	}
	l1 := t.lockFor(first)
	l1.Lock()
	defer l1.Unlock()
	if first != second {
		l2 := t.lockFor(second)
		l2.Lock()
		defer l2.Unlock()
	}

	if err := t.checkLocked(buyerID, propID, qty); err != nil {
		return err
	}
	if err := t.checkLocked(sellerID, propID, -qty); err != nil {
		return err
	}

	t.set(buyerID, propID, t.get(buyerID, propID)+qty)
	t.set(sellerID, propID, t.get(sellerID, propID)-qty)
	return nil
}

// ClearContract zeroes every position in a contract and returns what was
// held, keyed by user. Settlement calls this once per contract.
func (t *Tracker) ClearContract(propID string) map[string]int {
	cleared := t.PositionsFor(propID)
	for user := range cleared {
		l := t.lockFor(user)
		l.Lock()
		t.set(user, propID, 0)
		l.Unlock()
	}
	return cleared
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
