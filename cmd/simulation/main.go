// Command simulation spins up the exchange in-process and drives it with
// random traders: accounts are registered over the API, props are seeded
// through the internal endpoints, workers place and cancel orders, games
// go final, contracts settle, and the run ends with a leaderboard and
// per-endpoint latency statistics.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/auth"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/database"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/engine"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/portfolio"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/registry"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/settlement"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/stream"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/trading"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/pkg/middleware"
)

const (
	minOrders     = 50
	maxOrders     = 300
	numWorkers    = 5
	numTraders    = 10
	serverAddress = "http://localhost:8080"
	jwtSecret     = "simulation-secret"
	dbPath        = "simulation.db"
)

var seedProps = []struct {
	player string
	prop   string
	line   float64
	tier   string
	sport  string
}{
	{"Aaron Judge", "HITS", 1.5, "medium", "MLB"},
	{"Shohei Ohtani", "TOTAL_BASES", 2.5, "hard", "MLB"},
	{"Patrick Mahomes", "PASSING_YARDS", 275.5, "easy", "NFL"},
	{"Tyreek Hill", "RECEIVING_YARDS", 89.5, "medium", "NFL"},
	{"Nikola Jokic", "POINTS", 26.5, "medium", "NBA"},
	{"Stephen Curry", "THREES", 4.5, "hard", "NBA"},
}

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint.
type routeStats struct {
	name       string
	mu         sync.Mutex
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes min, max, mean, median, p95 and p99 over the
// recorded durations.
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]
	return
}

// trader is one simulated account with its API token.
type trader struct {
	userID   string
	username string
	token    string
}

// simulationClient drives the exchange API and records latency per route.
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"register":  {name: "Register"},
			"order":     {name: "Place Order"},
			"cancel":    {name: "Cancel Order"},
			"book":      {name: "Order Book"},
			"portfolio": {name: "Portfolio"},
			"status":    {name: "Game Status"},
			"settle":    {name: "Settle"},
		},
	}
}

// call sends one JSON request, records its latency under statKey, and
// decodes the flat response envelope.
func (sc *simulationClient) call(statKey, method, path, token string, body interface{}) (map[string]json.RawMessage, error) {
	stats := sc.stats[statKey]
	start := time.Now()
	defer func() { stats.addDuration(time.Since(start)) }()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequest(method, sc.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method == http.MethodPost && statKey == "order" {
		req.Header.Set("Idempotency-Key", uuid.New().String())
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		stats.addFailure()
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		stats.addFailure()
		return nil, err
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		stats.addFailure()
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		stats.addFailure()
		var msg string
		if raw, ok := parsed["error"]; ok {
			_ = json.Unmarshal(raw, &msg)
		}
		return parsed, fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, msg)
	}
	return parsed, nil
}

func (sc *simulationClient) register(username string) (*trader, error) {
	parsed, err := sc.call("register", http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "simulation-password",
	})
	if err != nil {
		return nil, err
	}

	var token string
	if err := json.Unmarshal(parsed["token"], &token); err != nil {
		return nil, err
	}
	var user struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(parsed["user"], &user); err != nil {
		return nil, err
	}
	return &trader{userID: user.UserID, username: username, token: token}, nil
}

func (sc *simulationClient) placeOrder(t *trader, propID, side string, price float64, quantity int) (string, bool, error) {
	parsed, err := sc.call("order", http.MethodPost, "/api/orders", t.token, map[string]interface{}{
		"prop_id":  propID,
		"side":     side,
		"price":    price,
		"quantity": quantity,
	})
	if err != nil {
		return "", false, err
	}

	var order struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(parsed["order"], &order); err != nil {
		return "", false, err
	}
	var fills []json.RawMessage
	if raw, ok := parsed["fills"]; ok {
		_ = json.Unmarshal(raw, &fills)
	}
	return order.OrderID, len(fills) > 0, nil
}

func (sc *simulationClient) cancelOrder(t *trader, orderID string) error {
	_, err := sc.call("cancel", http.MethodDelete, "/api/orders/"+orderID, t.token, nil)
	return err
}

func (sc *simulationClient) setStatus(t *trader, propID, status string, actual *float64) error {
	body := map[string]interface{}{"status": status}
	if actual != nil {
		body["actual_value"] = *actual
	}
	_, err := sc.call("status", http.MethodPost, "/internal/contracts/"+propID+"/status", t.token, body)
	return err
}

func (sc *simulationClient) settle(t *trader, propID string, actual float64) error {
	_, err := sc.call("settle", http.MethodPost, "/internal/contracts/"+propID+"/settle", t.token, map[string]interface{}{
		"actual_value": actual,
	})
	return err
}

func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-15s %8s %8s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-15s %8d %8d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	time.Sleep(2 * time.Second)

	sc := newSimulationClient()

	// Register the simulated traders.
	traders := make([]*trader, 0, numTraders)
	for i := 0; i < numTraders; i++ {
		t, err := sc.register(fmt.Sprintf("trader_%d_%d", i, time.Now().UnixNano()%100000))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to register trader")
		}
		traders = append(traders, t)
	}
	admin := traders[0]

	// Seed the prop board through the internal API.
	propIDs := make([]string, 0, len(seedProps))
	for _, p := range seedProps {
		parsed, err := sc.call("status", http.MethodPost, "/internal/contracts", admin.token, map[string]interface{}{
			"player_name":   p.player,
			"prop_type":     p.prop,
			"line":          p.line,
			"difficulty":    p.tier,
			"sport":         p.sport,
			"current_price": 40 + rand.Float64()*20,
		})
		if err != nil {
			log.Fatal().Err(err).Str("player", p.player).Msg("failed to seed contract")
		}
		var contract struct {
			PropID string `json:"prop_id"`
		}
		if err := json.Unmarshal(parsed["contract"], &contract); err != nil {
			log.Fatal().Err(err).Msg("failed to parse seeded contract")
		}
		propIDs = append(propIDs, contract.PropID)
		log.Info().Str("prop_id", contract.PropID).Msg("contract seeded")
	}

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("starting simulation")

	stats := struct {
		mu           sync.Mutex
		TotalOrders  int
		FilledOrders int
		Cancelled    int
		FailedOrders int
		Props        map[string]int
		Sides        map[string]int
		StartTime    time.Time
	}{
		Props:     make(map[string]int),
		Sides:     make(map[string]int),
		StartTime: time.Now(),
	}

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := 0; i < targetOrders/numWorkers; i++ {
				t := traders[rand.Intn(len(traders))]
				propID := propIDs[rand.Intn(len(propIDs))]
				side := "buy"
				if rand.Intn(2) == 0 {
					side = "sell"
				}
				// Cluster prices so orders actually cross.
				price := math.Round((45+rand.Float64()*10)*100) / 100
				quantity := rand.Intn(3) + 1

				orderID, filled, err := sc.placeOrder(t, propID, side, price, quantity)
				if err != nil {
					// Portfolio caps reject orders by design once traders
					// are loaded up; count and move on.
					stats.mu.Lock()
					stats.FailedOrders++
					stats.mu.Unlock()
					continue
				}

				stats.mu.Lock()
				stats.TotalOrders++
				stats.Props[propID]++
				stats.Sides[side]++
				if filled {
					stats.FilledOrders++
				}
				stats.mu.Unlock()

				// Occasionally walk away from a resting order.
				if !filled && rand.Intn(5) == 0 {
					if err := sc.cancelOrder(t, orderID); err == nil {
						stats.mu.Lock()
						stats.Cancelled++
						stats.mu.Unlock()
					}
				}

				time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)
			}
		}(w)
	}
	wg.Wait()

	log.Info().Int("orders_placed", stats.TotalOrders).Msg("order flow complete")

	// Finish the games and settle every contract.
	settled := 0
	for i, propID := range propIDs {
		line := seedProps[i].line
		actual := line + float64(rand.Intn(5)) - 2 // straddle the line

		if err := sc.setStatus(admin, propID, "live", nil); err != nil {
			log.Error().Err(err).Str("prop_id", propID).Msg("failed to go live")
			continue
		}
		if err := sc.setStatus(admin, propID, "final", &actual); err != nil {
			log.Error().Err(err).Str("prop_id", propID).Msg("failed to go final")
			continue
		}
		if err := sc.settle(admin, propID, actual); err != nil {
			log.Error().Err(err).Str("prop_id", propID).Msg("failed to settle")
			continue
		}
		settled++
		log.Info().Str("prop_id", propID).Float64("actual", actual).Float64("line", line).Msg("contract settled")
	}

	// Pull final portfolios for the summary.
	richest, richestBalance := "", 0.0
	for _, t := range traders {
		parsed, err := sc.call("portfolio", http.MethodGet, "/api/portfolio", t.token, nil)
		if err != nil {
			continue
		}
		var balance float64
		_ = json.Unmarshal(parsed["balance"], &balance)
		if balance > richestBalance {
			richest, richestBalance = t.username, balance
		}
	}

	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("EXCHANGE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Order Statistics
----------------
Orders Placed:    %d
Orders Filled:    %d
Orders Cancelled: %d
Rejected:         %d
Contracts Settled:%d
Duration:         %v

Top Trader:       %s ($%.2f)

Contract Distribution
---------------------
`, stats.TotalOrders, stats.FilledOrders, stats.Cancelled, stats.FailedOrders,
		settled, duration.Round(time.Millisecond), richest, richestBalance)

	maxCount := 0
	for _, count := range stats.Props {
		if count > maxCount {
			maxCount = count
		}
	}
	for propID, count := range stats.Props {
		barLength := 0
		if maxCount > 0 {
			barLength = int(float64(count) / float64(maxCount) * 20)
		}
		fmt.Printf("%-45s: %s (%d)\n", propID, strings.Repeat("#", barLength), count)
	}

	fmt.Println("\nSide Distribution")
	fmt.Println("-----------------")
	for side, count := range stats.Sides {
		barLength := 0
		if stats.TotalOrders > 0 {
			barLength = int(float64(count) / float64(stats.TotalOrders) * 20)
		}
		fmt.Printf("%-4s: %s (%d)\n", side, strings.Repeat("#", barLength), count)
	}
	fmt.Println("\n" + strings.Repeat("=", 80))

	sc.printPerformanceStats()
}

// startServer boots the full exchange in-process on a fresh database.
func startServer() error {
	_ = os.Remove(dbPath)

	db, err := database.NewDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	reg, err := registry.New(db)
	if err != nil {
		return fmt.Errorf("failed to hydrate registry: %w", err)
	}
	tracker := portfolio.NewTracker()

	hub := stream.NewHub()
	go hub.Run(context.Background())

	eng, err := engine.New(db, reg, tracker, hub)
	if err != nil {
		return fmt.Errorf("failed to hydrate engine: %w", err)
	}

	settleService := settlement.NewService(db, reg, tracker, eng, hub)
	authService := auth.NewService(db, jwtSecret)
	tradingService := trading.NewService(db, eng, reg, tracker, settleService, hub)

	authHandlers := auth.NewGinHandlers(authService)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/ws", hub.ServeWS())

	api := router.Group("/api")
	api.POST("/auth/register", authHandlers.RegisterHandler())
	api.POST("/auth/login", authHandlers.LoginHandler())
	api.GET("/leaderboard", authHandlers.LeaderboardHandler())
	api.GET("/contracts", tradingHandlers.ListContractsHandler())
	api.GET("/contracts/:prop_id/orderbook", tradingHandlers.OrderBookHandler())

	authed := api.Group("")
	authed.Use(middleware.JWTAuth(jwtSecret))
	authed.POST("/orders", tradingHandlers.PlaceOrderHandler())
	authed.DELETE("/orders/:order_id", tradingHandlers.CancelOrderHandler())
	authed.GET("/portfolio", tradingHandlers.PortfolioHandler())

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuth(jwtSecret))
	internal.POST("/contracts", tradingHandlers.CreateContractHandler())
	internal.POST("/contracts/:prop_id/status", tradingHandlers.GameStatusHandler())
	internal.POST("/contracts/:prop_id/settle", tradingHandlers.SettleContractHandler())

	return router.Run(":8080")
}
