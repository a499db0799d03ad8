package trading

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/engine"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/portfolio"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/registry"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/settlement"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

const prop = "MLB_Judge_HITS_1.5_medium"

type fixture struct {
	db      *gorm.DB
	service *Service
	router  *gin.Engine
}

// asUser stubs the JWT middleware: it trusts the X-Test-User header.
func asUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", c.GetHeader("X-Test-User"))
		c.Next()
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&types.Contract{}, &types.Order{}, &types.Trade{}, &types.Position{},
		&types.PriceTick{}, &types.User{}, &types.Transaction{},
		&settlement.Settlement{}, &IdempotencyRecord{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	reg, err := registry.New(db)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := reg.Create(&types.Contract{
		PropID:       prop,
		PlayerName:   "Aaron Judge",
		PropType:     "HITS",
		Line:         1.5,
		Difficulty:   "medium",
		Sport:        "MLB",
		CurrentPrice: 50.0,
	}); err != nil {
		t.Fatalf("create contract: %v", err)
	}

	tracker := portfolio.NewTracker()
	eng, err := engine.New(db, reg, tracker, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	settle := settlement.NewService(db, reg, tracker, eng, nil)
	service := NewService(db, eng, reg, tracker, settle, nil)

	for _, u := range []string{"alice", "bob"} {
		if err := db.Create(&types.User{UserID: u, Username: u, Balance: types.InitialBalance}).Error; err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	handlers := NewGinHandlers(service)
	router := gin.New()

	api := router.Group("/api")
	api.GET("/contracts", handlers.ListContractsHandler())
	api.GET("/contracts/:prop_id", handlers.GetContractHandler())
	api.GET("/contracts/:prop_id/orderbook", handlers.OrderBookHandler())

	authed := api.Group("")
	authed.Use(asUser())
	authed.POST("/orders", handlers.PlaceOrderHandler())
	authed.DELETE("/orders/:order_id", handlers.CancelOrderHandler())
	authed.GET("/orders", handlers.UserOrdersHandler())
	authed.GET("/portfolio", handlers.PortfolioHandler())

	internal := router.Group("/internal")
	internal.POST("/contracts/:prop_id/status", handlers.GameStatusHandler())
	internal.POST("/contracts/:prop_id/settle", handlers.SettleContractHandler())

	return &fixture{db: db, service: service, router: router}
}

func (f *fixture) do(t *testing.T, method, path, user string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var parsed map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, parsed
}

func TestPlaceOrderEndpoint(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/orders", "alice", gin.H{
		"prop_id": prop, "side": "buy", "price": 45.0, "quantity": 2,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %v", rec.Code, body)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	order := body["order"].(map[string]interface{})
	if order["status"] != "open" || order["remaining"].(float64) != 2 {
		t.Errorf("order = %v, want open with remaining 2", order)
	}

	// Malformed body.
	rec, body = f.do(t, http.MethodPost, "/api/orders", "alice", gin.H{"prop_id": prop}, nil)
	if rec.Code != http.StatusBadRequest || body["success"] != false {
		t.Errorf("malformed request: status = %d body = %v", rec.Code, body)
	}

	// Unknown contract maps to 404 with a flat error message.
	rec, body = f.do(t, http.MethodPost, "/api/orders", "alice", gin.H{
		"prop_id": "nope", "side": "buy", "price": 45.0, "quantity": 2,
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown contract: status = %d body = %v", rec.Code, body)
	}
	if _, ok := body["error"].(string); !ok {
		t.Errorf("error field missing: %v", body)
	}
}

func TestPlaceOrderIdempotency(t *testing.T) {
	f := newFixture(t)
	headers := map[string]string{"Idempotency-Key": "key-123"}

	_, body1 := f.do(t, http.MethodPost, "/api/orders", "alice", gin.H{
		"prop_id": prop, "side": "buy", "price": 45.0, "quantity": 2,
	}, headers)
	_, body2 := f.do(t, http.MethodPost, "/api/orders", "alice", gin.H{
		"prop_id": prop, "side": "buy", "price": 45.0, "quantity": 2,
	}, headers)

	id1 := body1["order"].(map[string]interface{})["order_id"]
	id2 := body2["order"].(map[string]interface{})["order_id"]
	if id1 != id2 {
		t.Errorf("retry created a new order: %v != %v", id1, id2)
	}

	// Only one order rests on the book.
	_, book := f.do(t, http.MethodGet, "/api/contracts/"+prop+"/orderbook", "", nil, nil)
	bids := book["orderbook"].(map[string]interface{})["bids"].([]interface{})
	if len(bids) != 1 {
		t.Fatalf("bids = %v, want one level", bids)
	}
	if q := bids[0].(map[string]interface{})["quantity"].(float64); q != 2 {
		t.Errorf("resting quantity = %v, want 2 (no duplicate)", q)
	}
}

func TestCancelEndpoint(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/api/orders", "alice", gin.H{
		"prop_id": prop, "side": "sell", "price": 60.0, "quantity": 1,
	}, nil)
	orderID := body["order"].(map[string]interface{})["order_id"].(string)

	rec, _ := f.do(t, http.MethodDelete, "/api/orders/"+orderID, "bob", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("cancel by non-owner: status = %d, want 403", rec.Code)
	}

	rec, body = f.do(t, http.MethodDelete, "/api/orders/"+orderID, "alice", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status = %d body = %v", rec.Code, body)
	}
	if body["order"].(map[string]interface{})["status"] != "cancelled" {
		t.Errorf("order = %v, want cancelled", body["order"])
	}
}

func TestPortfolioEndpoint(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/api/orders", "bob", gin.H{
		"prop_id": prop, "side": "sell", "price": 40.0, "quantity": 3,
	}, nil)
	f.do(t, http.MethodPost, "/api/orders", "alice", gin.H{
		"prop_id": prop, "side": "buy", "price": 40.0, "quantity": 3,
	}, nil)

	_, body := f.do(t, http.MethodGet, "/api/portfolio", "alice", nil, nil)
	if body["balance"].(float64) != types.InitialBalance-120 {
		t.Errorf("balance = %v, want %v", body["balance"], types.InitialBalance-120)
	}
	positions := body["positions"].([]interface{})
	if len(positions) != 1 {
		t.Fatalf("positions = %v, want 1", positions)
	}
	pos := positions[0].(map[string]interface{})
	if pos["quantity"].(float64) != 3 || pos["prop_id"] != prop {
		t.Errorf("position = %v, want 3 of %s", pos, prop)
	}
	if body["contracts_held"].(float64) != 3 {
		t.Errorf("contracts_held = %v, want 3", body["contracts_held"])
	}
}

func TestGameStatusEndpoint(t *testing.T) {
	f := newFixture(t)

	// Resting order before the game goes final.
	_, body := f.do(t, http.MethodPost, "/api/orders", "alice", gin.H{
		"prop_id": prop, "side": "buy", "price": 30.0, "quantity": 1,
	}, nil)
	orderID := body["order"].(map[string]interface{})["order_id"].(string)

	rec, _ := f.do(t, http.MethodPost, "/internal/contracts/"+prop+"/status", "", gin.H{"status": "live"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status live: %d", rec.Code)
	}

	// Backwards transition is rejected.
	rec, _ = f.do(t, http.MethodPost, "/internal/contracts/"+prop+"/status", "", gin.H{"status": "upcoming"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("backwards transition: status = %d, want 400", rec.Code)
	}

	actual := 2.0
	rec, _ = f.do(t, http.MethodPost, "/internal/contracts/"+prop+"/status", "", gin.H{
		"status": "final", "actual_value": actual,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status final: %d", rec.Code)
	}

	// The resting order was cancelled by the halt.
	var row types.Order
	if err := f.db.Where("order_id = ?", orderID).First(&row).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if row.Status != types.OrderCancelled {
		t.Errorf("order status = %s, want cancelled after final", row.Status)
	}

	// Settlement over the internal endpoint, second call conflicts.
	rec, _ = f.do(t, http.MethodPost, "/internal/contracts/"+prop+"/settle", "", gin.H{"actual_value": actual}, nil)
	if rec.Code != http.StatusCreated {
		t.Errorf("settle: status = %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPost, "/internal/contracts/"+prop+"/settle", "", gin.H{"actual_value": actual}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second settle: status = %d, want 409", rec.Code)
	}
}

func TestCreateContractDerivesPropID(t *testing.T) {
	f := newFixture(t)

	c := &types.Contract{
		PlayerName:   "Patrick Mahomes",
		PropType:     "passing_yards",
		Line:         275.5,
		Difficulty:   "Easy",
		Sport:        "nfl",
		CurrentPrice: 60,
	}
	if err := f.service.CreateContract(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	want := "NFL_PatrickMahomes_PASSING_YARDS_275.5_easy"
	if c.PropID != want {
		t.Errorf("prop_id = %s, want %s", c.PropID, want)
	}

	if err := f.service.CreateContract(&types.Contract{PlayerName: "X"}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("missing fields = %v, want ErrValidation", err)
	}
}
