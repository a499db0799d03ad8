// Package settlement resolves FINAL contracts against their actual stat
// lines and pays winners out of the standard payout. Settlement is
// idempotent per contract: the registry's settled flag is claimed before
// any money moves, so a contract pays out exactly once.
package settlement

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/portfolio"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/registry"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/stream"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

// OrderCanceller removes all resting orders on a contract before payouts.
type OrderCanceller interface {
	CancelAllForContract(propID string) error
}

type Service struct {
	registry  *registry.Registry
	portfolio *portfolio.Tracker
	orders    OrderCanceller
	db        *Database
	events    *stream.Hub // optional
}

func NewService(gormDB *gorm.DB, reg *registry.Registry, tracker *portfolio.Tracker, orders OrderCanceller, events *stream.Hub) *Service {
	return &Service{
		registry:  reg,
		portfolio: tracker,
		orders:    orders,
		db:        NewDatabase(gormDB),
		events:    events,
	}
}

// SettleContract resolves one FINAL contract against the actual stat value.
// An actual above the line pays longs the standard payout per contract, an
// actual below the line pays shorts, and an exact hit refunds both sides at
// the last traded price. All resting orders are cancelled, every position
// is zeroed, and a second call returns ErrAlreadySettled.
func (s *Service) SettleContract(propID string, actual float64) ([]Settlement, error) {
	contract, err := s.registry.Get(propID)
	if err != nil {
		return nil, err
	}
	if contract.GameStatus != types.GameFinal {
		return nil, fmt.Errorf("%w: contract %s is %s, settlement requires a final game",
			types.ErrValidation, propID, contract.GameStatus)
	}

	// Claim the contract first; everything after this point runs at most once.
	if err := s.registry.MarkSettled(propID, actual); err != nil {
		return nil, err
	}

	if err := s.orders.CancelAllForContract(propID); err != nil {
		log.Error().Err(err).Str("prop_id", propID).Msg("failed to cancel resting orders at settlement")
	}

	outcome := resolveOutcome(actual, contract.Line)
	positions := s.portfolio.ClearContract(propID)

	now := time.Now()
	payouts := make([]Settlement, 0, len(positions))
	for userID, qty := range positions {
		payouts = append(payouts, Settlement{
			SettlementID: uuid.New().String(),
			PropID:       propID,
			UserID:       userID,
			Quantity:     qty,
			Outcome:      outcome,
			Payout:       payoutFor(qty, outcome, contract.CurrentPrice),
			CreatedAt:    now,
		})
	}
	sort.Slice(payouts, func(i, j int) bool { return payouts[i].UserID < payouts[j].UserID })

	if err := s.db.RecordPayouts(propID, payouts); err != nil {
		// Positions are already cleared in memory; a failed ledger write is
		// surfaced through monitoring rather than unwinding the settlement.
		log.Error().Err(err).Str("prop_id", propID).Msg("failed to persist settlement payouts")
	}

	s.events.Publish(stream.Event{
		Type:       stream.EventSettlement,
		PropID:     propID,
		GameStatus: string(types.GameFinal),
		Timestamp:  now,
	})

	log.Info().
		Str("prop_id", propID).
		Str("outcome", outcome).
		Float64("actual", actual).
		Float64("line", contract.Line).
		Int("accounts", len(payouts)).
		Msg("contract settled")
	return payouts, nil
}

// Settlements returns the payout rows recorded for one contract.
func (s *Service) Settlements(propID string) ([]Settlement, error) {
	if _, err := s.registry.Get(propID); err != nil {
		return nil, err
	}
	return s.db.ListSettlements(propID)
}

// UserSettlements returns a user's payout history, newest first.
func (s *Service) UserSettlements(userID string) ([]Settlement, error) {
	return s.db.ListUserSettlements(userID)
}

func resolveOutcome(actual, line float64) string {
	switch {
	case actual > line:
		return OutcomeHit
	case actual < line:
		return OutcomeMiss
	default:
		return OutcomeExactHit
	}
}

// payoutFor prices one user's settled position. Winners collect the
// standard payout per contract. An exact hit unwinds both sides at the
// last traded price: longs are refunded what they paid and shorts return
// their sale proceeds, so the payout is negative for short positions.
func payoutFor(qty int, outcome string, lastPrice float64) float64 {
	switch outcome {
	case OutcomeHit:
		if qty > 0 {
			return float64(qty) * types.StandardPayout
		}
	case OutcomeMiss:
		if qty < 0 {
			return float64(-qty) * types.StandardPayout
		}
	case OutcomeExactHit:
		return float64(qty) * lastPrice
	}
	return 0
}
