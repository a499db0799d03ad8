package engine

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/portfolio"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/registry"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

const prop = "MLB_Judge_HITS_1.5_medium"

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&types.Contract{}, &types.Order{}, &types.Trade{},
		&types.Position{}, &types.PriceTick{}, &types.User{}, &types.Transaction{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testEngine(t *testing.T) (*Engine, *registry.Registry, *gorm.DB) {
	t.Helper()
	db := testDB(t)
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

	e, err := New(db, reg, portfolio.NewTracker(), nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e, reg, db
}

func TestSubmit_Validation(t *testing.T) {
	e, _, _ := testEngine(t)

	cases := []struct {
		name string
		user string
		side types.OrderSide
		px   float64
		qty  int
	}{
		{"missing user", "", types.SideBuy, 50, 1},
		{"bad side", "alice", "hold", 50, 1},
		{"zero quantity", "alice", types.SideBuy, 50, 0},
		{"negative quantity", "alice", types.SideBuy, 50, -2},
		{"zero price", "alice", types.SideBuy, 0, 1},
		{"price above payout", "alice", types.SideBuy, types.StandardPayout + 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Submit(tc.user, prop, tc.side, tc.px, tc.qty)
			if !errors.Is(err, types.ErrValidation) {
				t.Errorf("Submit = %v, want ErrValidation", err)
			}
		})
	}

	if _, err := e.Submit("alice", "NBA_Nobody_POINTS_10.5_easy", types.SideBuy, 50, 1); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Submit unknown contract = %v, want ErrNotFound", err)
	}
}

func TestSubmit_PartialFillAtMakerPrice(t *testing.T) {
	e, reg, _ := testEngine(t)

	// Resting ask: 3 @ 1.90.
	if _, err := e.Submit("seller", prop, types.SideSell, 1.90, 3); err != nil {
		t.Fatalf("resting ask: %v", err)
	}

	// Incoming buy: 5 @ 2.00 -> trade 3 @ 1.90, remainder 2 rests at 2.00.
	res, err := e.Submit("buyer", prop, types.SideBuy, 2.00, 5)
	if err != nil {
		t.Fatalf("taker buy: %v", err)
	}
	if len(res.Fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(res.Fills))
	}
	fill := res.Fills[0]
	if fill.Price != 1.90 {
		t.Errorf("fill price = %.2f, want maker price 1.90", fill.Price)
	}
	if fill.Quantity != 3 {
		t.Errorf("fill quantity = %d, want 3", fill.Quantity)
	}
	if res.Order.Remaining != 2 || res.Order.Status != types.OrderOpen {
		t.Errorf("taker remainder = %d/%s, want 2/open", res.Order.Remaining, res.Order.Status)
	}

	snap, err := e.Book(prop, 0)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if len(snap.Asks) != 0 {
		t.Errorf("asks = %v, want empty", snap.Asks)
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 2.00 || snap.Bids[0].Quantity != 2 {
		t.Errorf("bids = %v, want one level 2 @ 2.00", snap.Bids)
	}

	// Price update policy: contract carries the matched price and volume.
	c, _ := reg.Get(prop)
	if c.CurrentPrice != 1.90 {
		t.Errorf("contract price = %.2f, want 1.90", c.CurrentPrice)
	}
	if c.TotalVolume != 3 {
		t.Errorf("contract volume = %d, want 3", c.TotalVolume)
	}
}

func TestSubmit_SweepsMultipleMakersFIFO(t *testing.T) {
	e, _, _ := testEngine(t)

	if _, err := e.Submit("s1", prop, types.SideSell, 40, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Submit("s2", prop, types.SideSell, 40, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Submit("s3", prop, types.SideSell, 45, 2); err != nil {
		t.Fatal(err)
	}

	res, err := e.Submit("buyer", prop, types.SideBuy, 45, 5)
	if err != nil {
		t.Fatalf("taker: %v", err)
	}
	if len(res.Fills) != 3 {
		t.Fatalf("fills = %d, want 3", len(res.Fills))
	}
	// Equal-priced makers fill in submission order, then the next level.
	if res.Fills[0].SellerID != "s1" || res.Fills[1].SellerID != "s2" || res.Fills[2].SellerID != "s3" {
		t.Errorf("fill order = %s,%s,%s, want s1,s2,s3",
			res.Fills[0].SellerID, res.Fills[1].SellerID, res.Fills[2].SellerID)
	}
	if res.Fills[2].Quantity != 1 || res.Fills[2].Price != 45 {
		t.Errorf("last fill = %d @ %.2f, want 1 @ 45.00", res.Fills[2].Quantity, res.Fills[2].Price)
	}
	if res.Order.Status != types.OrderFilled {
		t.Errorf("taker status = %s, want filled", res.Order.Status)
	}

	// s2's remainder (1) stays queued.
	snap, _ := e.Book(prop, 0)
	if len(snap.Asks) != 1 || snap.Asks[0].Price != 45 || snap.Asks[0].Quantity != 1 {
		t.Errorf("asks = %v, want one level 1 @ 45.00", snap.Asks)
	}
}

func TestSubmit_Conservation(t *testing.T) {
	e, _, db := testEngine(t)

	users := []string{"u1", "u2", "u3", "u4"}
	for i := 0; i < 20; i++ {
		user := users[i%len(users)]
		side := types.SideBuy
		if i%2 == 0 {
			side = types.SideSell
		}
		price := 40.0 + float64(i%5)
		_, err := e.Submit(user, prop, side, price, 1+i%3)
		if err != nil && !errors.Is(err, types.ErrPortfolioLimit) {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	var bought, sold int
	var trades []types.Trade
	if err := db.Find(&trades).Error; err != nil {
		t.Fatalf("load trades: %v", err)
	}
	for _, tr := range trades {
		if tr.Side == types.SideBuy {
			bought += tr.Quantity
		} else {
			sold += tr.Quantity
		}
	}
	if bought != sold {
		t.Errorf("conservation violated: bought %d, sold %d", bought, sold)
	}

	// Net positions across all users must sum to zero.
	var positions []types.Position
	if err := db.Find(&positions).Error; err != nil {
		t.Fatalf("load positions: %v", err)
	}
	net := 0
	for _, p := range positions {
		net += p.Quantity
	}
	if net != 0 {
		t.Errorf("net position = %d, want 0", net)
	}
}

func TestSubmit_LiveTradingRule(t *testing.T) {
	e, reg, _ := testEngine(t)

	// Pre-game: alice buys 2 from bob.
	if _, err := e.Submit("bob", prop, types.SideSell, 50, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Submit("alice", prop, types.SideBuy, 50, 2); err != nil {
		t.Fatal(err)
	}

	if err := reg.SetGameStatus(prop, types.GameLive); err != nil {
		t.Fatal(err)
	}

	// Sell with zero position in this contract is rejected.
	if _, err := e.Submit("carol", prop, types.SideSell, 55, 1); !errors.Is(err, types.ErrForbidden) {
		t.Errorf("live sell with no position = %v, want ErrForbidden", err)
	}
	// Buy without a short to cover is rejected, holder or not.
	if _, err := e.Submit("alice", prop, types.SideBuy, 55, 1); !errors.Is(err, types.ErrForbidden) {
		t.Errorf("live buy without short = %v, want ErrForbidden", err)
	}
	// Holder may sell.
	if _, err := e.Submit("alice", prop, types.SideSell, 55, 1); err != nil {
		t.Errorf("live sell by holder: %v", err)
	}
	// Short coverer may buy up to the short size.
	if _, err := e.Submit("bob", prop, types.SideBuy, 45, 1); err != nil {
		t.Errorf("live covering buy: %v", err)
	}
	if _, err := e.Submit("bob", prop, types.SideBuy, 45, 5); !errors.Is(err, types.ErrForbidden) {
		t.Errorf("live buy beyond short = %v, want ErrForbidden", err)
	}
}

func TestSubmit_FinalRejectsAll(t *testing.T) {
	e, reg, _ := testEngine(t)

	if err := reg.SetGameStatus(prop, types.GameLive); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetGameStatus(prop, types.GameFinal); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Submit("alice", prop, types.SideBuy, 50, 1); !errors.Is(err, types.ErrMarketClosed) {
		t.Errorf("buy on FINAL = %v, want ErrMarketClosed", err)
	}
	if _, err := e.Submit("alice", prop, types.SideSell, 50, 1); !errors.Is(err, types.ErrMarketClosed) {
		t.Errorf("sell on FINAL = %v, want ErrMarketClosed", err)
	}
}

func TestSubmit_PortfolioLimit(t *testing.T) {
	e, _, _ := testEngine(t)

	// Submission that could never settle within the cap is rejected upfront.
	_, err := e.Submit("whale", prop, types.SideBuy, 50, types.MaxPortfolioSize+1)
	if !errors.Is(err, types.ErrPortfolioLimit) {
		t.Errorf("oversized submit = %v, want ErrPortfolioLimit", err)
	}

	// Fill the cap, then one more is rejected.
	if _, err := e.Submit("seller", prop, types.SideSell, 50, types.MaxPortfolioSize); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Submit("whale", prop, types.SideBuy, 50, types.MaxPortfolioSize); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Submit("whale", prop, types.SideBuy, 50, 1); !errors.Is(err, types.ErrPortfolioLimit) {
		t.Errorf("submit past cap = %v, want ErrPortfolioLimit", err)
	}
}

func TestSubmit_MakerLimitLeavesMakerIntact(t *testing.T) {
	e, reg, _ := testEngine(t)

	other := "NBA_Curry_POINTS_29.5_hard"
	if err := reg.Create(&types.Contract{
		PropID: other, PlayerName: "Stephen Curry", PropType: "POINTS",
		Line: 29.5, Difficulty: "hard", Sport: "NBA", CurrentPrice: 20,
	}); err != nil {
		t.Fatal(err)
	}

	// The cap covers a user's positions across all contracts. seller rests
	// asks on both props while flat, then the first fill takes them to the
	// cap; the second ask would breach at fill time, not at submission.
	if _, err := e.Submit("seller", prop, types.SideSell, 50, types.MaxPortfolioSize); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Submit("seller", other, types.SideSell, 20, types.MaxPortfolioSize); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Submit("buyer1", prop, types.SideBuy, 50, types.MaxPortfolioSize); err != nil {
		t.Fatal(err)
	}

	// buyer2 crosses seller's second ask; the fill is rejected, the maker
	// keeps its place, and buyer2's order rests on the other side.
	res, err := e.Submit("buyer2", other, types.SideBuy, 20, 1)
	if err != nil {
		t.Fatalf("crossing buy: %v", err)
	}
	if len(res.Fills) != 0 {
		t.Fatalf("fills = %+v, want none", res.Fills)
	}
	if res.Order.Remaining != 1 {
		t.Errorf("buyer2 remaining = %d, want 1", res.Order.Remaining)
	}

	snap, _ := e.Book(other, 0)
	if len(snap.Asks) != 1 || snap.Asks[0].Quantity != types.MaxPortfolioSize {
		t.Errorf("asks = %v, want maker intact", snap.Asks)
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Quantity != 1 {
		t.Errorf("bids = %v, want buyer2 resting", snap.Bids)
	}
	if e.portfolio.Position("seller", other) != 0 {
		t.Errorf("seller position on %s = %d, want 0", other, e.portfolio.Position("seller", other))
	}
}

func TestCancel(t *testing.T) {
	e, _, _ := testEngine(t)

	res, err := e.Submit("alice", prop, types.SideBuy, 40, 2)
	if err != nil {
		t.Fatal(err)
	}
	orderID := res.Order.OrderID

	// Non-owner cancel is Forbidden and leaves the book unchanged.
	if _, err := e.Cancel(orderID, "mallory"); !errors.Is(err, types.ErrForbidden) {
		t.Errorf("cancel by non-owner = %v, want ErrForbidden", err)
	}
	snap, _ := e.Book(prop, 0)
	if len(snap.Bids) != 1 {
		t.Fatalf("book changed after forbidden cancel: %v", snap.Bids)
	}

	// Owner cancel works once.
	cancelled, err := e.Cancel(orderID, "alice")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != types.OrderCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	snap, _ = e.Book(prop, 0)
	if len(snap.Bids) != 0 {
		t.Errorf("book not empty after cancel: %v", snap.Bids)
	}

	// Cancelled orders are terminal.
	if _, err := e.Cancel(orderID, "alice"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("double cancel = %v, want ErrNotFound", err)
	}
	if _, err := e.Cancel("no-such-order", "alice"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("cancel unknown = %v, want ErrNotFound", err)
	}
}

func TestEngine_RehydratesOpenOrders(t *testing.T) {
	db := testDB(t)
	reg, err := registry.New(db)
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Create(&types.Contract{
		PropID: prop, PlayerName: "Aaron Judge", PropType: "HITS",
		Line: 1.5, Difficulty: "medium", Sport: "MLB", CurrentPrice: 50,
	}); err != nil {
		t.Fatal(err)
	}

	e1, err := New(db, reg, portfolio.NewTracker(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e1.Submit("alice", prop, types.SideBuy, 42, 3); err != nil {
		t.Fatal(err)
	}

	// A fresh engine over the same store sees the resting bid.
	e2, err := New(db, reg, portfolio.NewTracker(), nil)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := e2.Book(prop, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 42 || snap.Bids[0].Quantity != 3 {
		t.Errorf("rehydrated bids = %v, want one level 3 @ 42.00", snap.Bids)
	}

	// And matching against it works.
	res, err := e2.Submit("bob", prop, types.SideSell, 42, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Fills) != 1 || res.Fills[0].Price != 42 {
		t.Errorf("fills after rehydrate = %+v", res.Fills)
	}
}

func TestUserOrders(t *testing.T) {
	e, _, _ := testEngine(t)

	for i := 0; i < 3; i++ {
		if _, err := e.Submit("alice", prop, types.SideBuy, 40+float64(i), 1); err != nil {
			t.Fatal(err)
		}
	}
	orders, err := e.UserOrders("alice")
	if err != nil {
		t.Fatalf("UserOrders: %v", err)
	}
	if len(orders) != 3 {
		t.Errorf("orders = %d, want 3", len(orders))
	}

	orders, err = e.UserOrders("nobody")
	if err != nil {
		t.Fatalf("UserOrders(nobody): %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("orders for unknown user = %d, want 0", len(orders))
	}
}

func TestContractsTradeIndependently(t *testing.T) {
	e, reg, _ := testEngine(t)

	other := "NFL_Mahomes_PASSING_YARDS_275.5_easy"
	if err := reg.Create(&types.Contract{
		PropID: other, PlayerName: "Patrick Mahomes", PropType: "PASSING_YARDS",
		Line: 275.5, Difficulty: "easy", Sport: "NFL", CurrentPrice: 80,
	}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 2)
	go func() {
		var err error
		for i := 0; i < 10 && err == nil; i++ {
			_, err = e.Submit(fmt.Sprintf("a%d", i), prop, types.SideSell, 50, 1)
		}
		done <- err
	}()
	go func() {
		var err error
		for i := 0; i < 10 && err == nil; i++ {
			_, err = e.Submit(fmt.Sprintf("b%d", i), other, types.SideBuy, 80, 1)
		}
		done <- err
	}()
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent submit: %v", err)
		}
	}

	s1, _ := e.Book(prop, 0)
	s2, _ := e.Book(other, 0)
	if len(s1.Asks) != 1 || s1.Asks[0].Quantity != 10 {
		t.Errorf("prop asks = %v", s1.Asks)
	}
	if len(s2.Bids) != 1 || s2.Bids[0].Quantity != 10 {
		t.Errorf("other bids = %v", s2.Bids)
	}
}
