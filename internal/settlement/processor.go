package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/registry"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

// Processor sweeps the registry for FINAL contracts with a recorded
// result and settles them in the background.
type Processor struct {
	service      *Service
	registry     *registry.Registry
	processDelay time.Duration
}

func NewProcessor(service *Service, reg *registry.Registry, delay time.Duration) *Processor {
	if delay <= 0 {
		delay = 30 * time.Second
	}
	return &Processor{
		service:      service,
		registry:     reg,
		processDelay: delay,
	}
}

// Start begins the settlement sweep loop.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_processor").Logger()
	logger.Info().Dur("interval", p.processDelay).Msg("starting settlement processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down settlement processor")
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

func (p *Processor) sweep() {
	logger := log.With().Str("component", "settlement_processor").Logger()

	pending := p.registry.ListUnsettledFinal()
	if len(pending) == 0 {
		return
	}
	logger.Info().Int("pending_count", len(pending)).Msg("settling final contracts")

	for _, contract := range pending {
		if contract.ResultValue == nil {
			continue
		}
		_, err := p.service.SettleContract(contract.PropID, *contract.ResultValue)
		if err != nil {
			// Another path (the internal settle endpoint) may have won the race.
			if errors.Is(err, types.ErrAlreadySettled) {
				continue
			}
			logger.Error().Err(err).Str("prop_id", contract.PropID).Msg("failed to settle contract")
		}
	}
}
