// Package registry owns contract records: metadata, current price, traded
// volume, game status, and the settled flag. It keeps an in-memory map
// hydrated from the database and writes every mutation back through it.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

type Registry struct {
	mu        sync.RWMutex
	contracts map[string]*types.Contract
	db        *Database
}

// New hydrates a registry from the contracts table.
func New(gormDB *gorm.DB) (*Registry, error) {
	db := NewDatabase(gormDB)
	rows, err := db.ListContracts()
	if err != nil {
		return nil, fmt.Errorf("failed to load contracts: %w", err)
	}

	r := &Registry{
		contracts: make(map[string]*types.Contract, len(rows)),
		db:        db,
	}
	for i := range rows {
		c := rows[i]
		r.contracts[c.PropID] = &c
	}

	log.Info().Int("contracts", len(rows)).Msg("contract registry hydrated")
	return r, nil
}

// Get returns a copy of the contract, or ErrNotFound.
func (r *Registry) Get(propID string) (*types.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[propID]
	if !ok {
		return nil, fmt.Errorf("%w: contract %s", types.ErrNotFound, propID)
	}
	out := *c
	return &out, nil
}

// List returns copies of all contracts, ordered by prop ID.
func (r *Registry) List() []types.Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Contract, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, *c)
	}
	sortContracts(out)
	return out
}

// Search filters contracts by free-text query (player name or prop type),
// sport, and difficulty. Empty filters match everything.
func (r *Registry) Search(query, sport, difficulty string) []types.Contract {
	query = strings.ToLower(query)
	sport = strings.ToUpper(sport)
	difficulty = strings.ToLower(difficulty)

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.Contract
	for _, c := range r.contracts {
		if query != "" &&
			!strings.Contains(strings.ToLower(c.PlayerName), query) &&
			!strings.Contains(strings.ToLower(c.PropType), query) {
			continue
		}
		if sport != "" && c.Sport != sport {
			continue
		}
		if difficulty != "" && strings.ToLower(c.Difficulty) != difficulty {
			continue
		}
		out = append(out, *c)
	}
	sortContracts(out)
	return out
}

// Create registers a new contract. The initial price must already be in
// (0, StandardPayout].
func (r *Registry) Create(contract *types.Contract) error {
	if err := validatePrice(contract.CurrentPrice); err != nil {
		return err
	}
	if contract.PropID == "" {
		return fmt.Errorf("%w: prop_id is required", types.ErrValidation)
	}
	if contract.GameStatus == "" {
		contract.GameStatus = types.GameUpcoming
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contracts[contract.PropID]; exists {
		return fmt.Errorf("%w: contract %s already exists", types.ErrValidation, contract.PropID)
	}
	if err := r.db.CreateContract(contract); err != nil {
		return err
	}
	c := *contract
	r.contracts[c.PropID] = &c
	return nil
}

// RecordMatch applies a fill to the contract: current price becomes the
// matched price and volume grows by the matched quantity. A price tick is
// appended to the immutable history in the same transaction.
func (r *Registry) RecordMatch(propID string, price float64, qty int) error {
	if err := validatePrice(price); err != nil {
		return err
	}
	if qty <= 0 {
		return fmt.Errorf("%w: match quantity must be positive", types.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[propID]
	if !ok {
		return fmt.Errorf("%w: contract %s", types.ErrNotFound, propID)
	}

	prevPrice, prevVolume := c.CurrentPrice, c.TotalVolume
	c.CurrentPrice = price
	c.TotalVolume += int64(qty)
	c.UpdatedAt = time.Now()

	tick := &types.PriceTick{PropID: propID, Price: price, Quantity: qty, CreatedAt: c.UpdatedAt}
	if err := r.db.SaveContractWithTick(c, tick); err != nil {
		c.CurrentPrice, c.TotalVolume = prevPrice, prevVolume
		return err
	}

	log.Debug().
		Str("prop_id", propID).
		Float64("price", price).
		Int("quantity", qty).
		Msg("contract price updated")
	return nil
}

// SetGameStatus transitions the game status. Transitions are monotonic
// (UPCOMING -> LIVE -> FINAL); repeating the current status is a no-op and
// moving backward returns ErrInvalidTransition.
func (r *Registry) SetGameStatus(propID string, status types.GameStatus) error {
	if status.Rank() == 0 {
		return fmt.Errorf("%w: unknown game status %q", types.ErrValidation, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[propID]
	if !ok {
		return fmt.Errorf("%w: contract %s", types.ErrNotFound, propID)
	}
	if status.Rank() < c.GameStatus.Rank() {
		return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, c.GameStatus, status)
	}
	if status == c.GameStatus {
		return nil
	}

	prev := c.GameStatus
	c.GameStatus = status
	c.UpdatedAt = time.Now()
	if err := r.db.SaveContract(c); err != nil {
		c.GameStatus = prev
		return err
	}

	log.Info().
		Str("prop_id", propID).
		Str("from", string(prev)).
		Str("to", string(status)).
		Msg("game status changed")
	return nil
}

// RecordResult stores the resolved stat value on a FINAL contract so the
// settlement processor can pick it up.
func (r *Registry) RecordResult(propID string, actual float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[propID]
	if !ok {
		return fmt.Errorf("%w: contract %s", types.ErrNotFound, propID)
	}
	if c.GameStatus != types.GameFinal {
		return fmt.Errorf("%w: result recorded before game is final", types.ErrValidation)
	}

	prev := c.ResultValue
	v := actual
	c.ResultValue = &v
	c.UpdatedAt = time.Now()
	if err := r.db.SaveContract(c); err != nil {
		c.ResultValue = prev
		return err
	}
	return nil
}

// MarkSettled flips the per-contract settlement idempotency flag. A second
// call returns ErrAlreadySettled.
func (r *Registry) MarkSettled(propID string, actual float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[propID]
	if !ok {
		return fmt.Errorf("%w: contract %s", types.ErrNotFound, propID)
	}
	if c.Settled {
		return fmt.Errorf("%w: contract %s", types.ErrAlreadySettled, propID)
	}

	v := actual
	c.Settled = true
	c.ResultValue = &v
	c.UpdatedAt = time.Now()
	if err := r.db.SaveContract(c); err != nil {
		c.Settled = false
		return err
	}
	return nil
}

// ListUnsettledFinal returns contracts that have gone FINAL with a recorded
// result but have not been settled yet.
func (r *Registry) ListUnsettledFinal() []types.Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.Contract
	for _, c := range r.contracts {
		if c.GameStatus == types.GameFinal && !c.Settled && c.ResultValue != nil {
			out = append(out, *c)
		}
	}
	sortContracts(out)
	return out
}

// History returns the contract's price tick log, oldest first.
func (r *Registry) History(propID string, limit int) ([]types.PriceTick, error) {
	if _, err := r.Get(propID); err != nil {
		return nil, err
	}
	return r.db.ListPriceTicks(propID, limit)
}

func validatePrice(price float64) error {
	if price <= 0 || price > types.StandardPayout {
		return fmt.Errorf("%w: price %.2f outside (0, %.0f]",
			types.ErrValidation, price, types.StandardPayout)
	}
	return nil
}

func sortContracts(contracts []types.Contract) {
	sort.Slice(contracts, func(i, j int) bool {
		return contracts[i].PropID < contracts[j].PropID
	})
}
