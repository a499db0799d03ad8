// Command seed loads prop contracts from a JSON file into the exchange
// database so the market has something to trade on startup.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/database"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/engine"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/portfolio"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/registry"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/settlement"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/trading"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

type seedProp struct {
	PlayerName string  `json:"player_name"`
	PropType   string  `json:"prop_type"`
	Line       float64 `json:"line"`
	Difficulty string  `json:"difficulty"`
	Sport      string  `json:"sport"`
	GameID     string  `json:"game_id"`
	Price      float64 `json:"price"`
}

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func main() {
	dbPath := flag.String("db", "exchange.db", "path to the exchange database")
	propsPath := flag.String("props", "props.json", "path to the props JSON file")
	flag.Parse()

	data, err := os.ReadFile(*propsPath)
	if err != nil {
		zlog.Fatal().Err(err).Str("path", *propsPath).Msg("failed to read props file")
	}

	var props []seedProp
	if err := json.Unmarshal(data, &props); err != nil {
		zlog.Fatal().Err(err).Msg("failed to parse props file")
	}

	db, err := database.NewDatabase(*dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to open database")
	}

	reg, err := registry.New(db)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to hydrate registry")
	}
	tracker := portfolio.NewTracker()
	eng, err := engine.New(db, reg, tracker, nil)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to hydrate engine")
	}
	service := trading.NewService(db, eng, reg, tracker,
		settlement.NewService(db, reg, tracker, eng, nil), nil)

	created, skipped := 0, 0
	for _, p := range props {
		price := p.Price
		if price == 0 {
			price = 50.0
		}
		contract := &types.Contract{
			PlayerName:   p.PlayerName,
			PropType:     p.PropType,
			Line:         p.Line,
			Difficulty:   p.Difficulty,
			Sport:        p.Sport,
			GameID:       p.GameID,
			CurrentPrice: price,
			GameStatus:   types.GameUpcoming,
		}
		if err := service.CreateContract(contract); err != nil {
			zlog.Warn().Err(err).Str("player", p.PlayerName).Str("prop", p.PropType).Msg("skipping prop")
			skipped++
			continue
		}
		created++
		zlog.Info().Str("prop_id", contract.PropID).Float64("line", p.Line).Msg("contract created")
	}

	zlog.Info().Int("created", created).Int("skipped", skipped).Msg("seed complete")
}
