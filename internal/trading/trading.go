// Package trading exposes the market over HTTP: contract discovery, order
// placement and cancellation, portfolio views, and the internal endpoints
// the game-status feed calls. All matching decisions live in the engine;
// this layer binds requests, enforces idempotency, and shapes responses.
package trading

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/engine"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/portfolio"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/registry"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/settlement"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/stream"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/pkg/response"
)

const idempotencyTTL = 24 * time.Hour

type Service struct {
	engine    *engine.Engine
	registry  *registry.Registry
	portfolio *portfolio.Tracker
	settle    *settlement.Service
	db        *Database
	events    *stream.Hub // optional
}

func NewService(gormDB *gorm.DB, eng *engine.Engine, reg *registry.Registry, tracker *portfolio.Tracker, settle *settlement.Service, events *stream.Hub) *Service {
	return &Service{
		engine:    eng,
		registry:  reg,
		portfolio: tracker,
		settle:    settle,
		db:        NewDatabase(gormDB),
		events:    events,
	}
}

// PlaceOrder submits an order with idempotency support. A retried request
// carrying the same key returns the originally placed order without
// touching the book again.
func (s *Service) PlaceOrder(userID, propID string, side types.OrderSide, price float64, quantity int, idempotencyKey string) (*engine.SubmitResult, error) {
	if idempotencyKey != "" {
		record, err := s.db.GetIdempotencyRecord(idempotencyKey)
		if err != nil {
			return nil, err
		}
		if record != nil && record.ExpiresAt.After(time.Now()) {
			existing, err := s.db.GetOrder(record.OrderID)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return &engine.SubmitResult{Order: *existing}, nil
			}
		}
	}

	result, err := s.engine.Submit(userID, propID, side, price, quantity)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		if err := s.db.CreateIdempotencyRecord(idempotencyKey, result.Order.OrderID, idempotencyTTL); err != nil {
			log.Error().Err(err).Str("order_id", result.Order.OrderID).Msg("failed to record idempotency key")
		}
	}
	return result, nil
}

// CreateContract registers a new prop contract. The prop ID is derived
// from the contract's fields when not supplied.
func (s *Service) CreateContract(c *types.Contract) error {
	if c.PlayerName == "" || c.PropType == "" || c.Sport == "" {
		return fmt.Errorf("%w: player_name, prop_type and sport are required", types.ErrValidation)
	}
	if c.PropID == "" {
		c.PropID = fmt.Sprintf("%s_%s_%s_%g_%s",
			strings.ToUpper(c.Sport),
			strings.ReplaceAll(c.PlayerName, " ", ""),
			strings.ToUpper(c.PropType),
			c.Line,
			strings.ToLower(c.Difficulty))
	}
	return s.registry.Create(c)
}

// SetGameStatus applies a status transition from the game feed. Going FINAL
// halts the market immediately: every resting order is cancelled. An actual
// stat value, when supplied, is recorded so the settlement processor can
// pay the contract out.
func (s *Service) SetGameStatus(propID string, status types.GameStatus, actual *float64) error {
	if err := s.registry.SetGameStatus(propID, status); err != nil {
		return err
	}

	if status == types.GameFinal {
		if err := s.engine.CancelAllForContract(propID); err != nil {
			log.Error().Err(err).Str("prop_id", propID).Msg("failed to cancel resting orders on final")
		}
		if actual != nil {
			if err := s.registry.RecordResult(propID, *actual); err != nil {
				return err
			}
		}
	}

	s.events.Publish(stream.Event{
		Type:       stream.EventStatus,
		PropID:     propID,
		GameStatus: string(status),
		Timestamp:  time.Now(),
	})
	return nil
}

// Portfolio assembles one user's positions with live contract context.
func (s *Service) Portfolio(userID string) (gin.H, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", types.ErrNotFound, userID)
	}

	positions := s.portfolio.UserPositions(userID)
	held := s.portfolio.TotalAbs(userID)

	holdings := make([]gin.H, 0, len(positions))
	var marketValue float64
	for propID, qty := range positions {
		h := gin.H{"prop_id": propID, "quantity": qty}
		if contract, err := s.registry.Get(propID); err == nil {
			h["player_name"] = contract.PlayerName
			h["prop_type"] = contract.PropType
			h["line"] = contract.Line
			h["current_price"] = contract.CurrentPrice
			h["game_status"] = contract.GameStatus
			marketValue += float64(qty) * contract.CurrentPrice
		}
		holdings = append(holdings, h)
	}

	return gin.H{
		"user_id":        userID,
		"balance":        user.Balance,
		"positions":      holdings,
		"market_value":   marketValue,
		"contracts_held": held,
		"contracts_free": types.MaxPortfolioSize - held,
	}, nil
}

// GinHandlers contains the HTTP handlers for the market endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ListContractsHandler handles GET /api/contracts with optional q, sport
// and difficulty filters.
func (h *GinHandlers) ListContractsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		sport := c.Query("sport")
		difficulty := c.Query("difficulty")

		var contracts []types.Contract
		if query == "" && sport == "" && difficulty == "" {
			contracts = h.service.registry.List()
		} else {
			contracts = h.service.registry.Search(query, sport, difficulty)
		}
		response.OK(c, gin.H{"contracts": contracts, "count": len(contracts)})
	}
}

// GetContractHandler handles GET /api/contracts/:prop_id.
func (h *GinHandlers) GetContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contract, err := h.service.registry.Get(c.Param("prop_id"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"contract": contract})
	}
}

// PriceHandler handles GET /api/contracts/:prop_id/price.
func (h *GinHandlers) PriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contract, err := h.service.registry.Get(c.Param("prop_id"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{
			"prop_id": contract.PropID,
			"price":   contract.CurrentPrice,
			"volume":  contract.TotalVolume,
		})
	}
}

// OrderBookHandler handles GET /api/contracts/:prop_id/orderbook.
func (h *GinHandlers) OrderBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		depth, _ := strconv.Atoi(c.DefaultQuery("depth", "10"))
		snapshot, err := h.service.engine.Book(c.Param("prop_id"), depth)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"orderbook": snapshot})
	}
}

// HistoryHandler handles GET /api/contracts/:prop_id/history.
func (h *GinHandlers) HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		ticks, err := h.service.registry.History(c.Param("prop_id"), limit)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"prop_id": c.Param("prop_id"), "history": ticks})
	}
}

type placeOrderRequest struct {
	PropID   string  `json:"prop_id" binding:"required"`
	Side     string  `json:"side" binding:"required"`
	Price    float64 `json:"price" binding:"required"`
	Quantity int     `json:"quantity" binding:"required"`
}

// PlaceOrderHandler handles POST /api/orders for the authenticated user.
// An optional Idempotency-Key header makes retries safe.
func (h *GinHandlers) PlaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req placeOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}

		result, err := h.service.PlaceOrder(
			c.GetString("userID"),
			req.PropID,
			types.OrderSide(req.Side),
			req.Price,
			req.Quantity,
			c.GetHeader("Idempotency-Key"),
		)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"order": result.Order, "fills": result.Fills})
	}
}

// CancelOrderHandler handles DELETE /api/orders/:order_id.
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.engine.Cancel(c.Param("order_id"), c.GetString("userID"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"order": order})
	}
}

// UserOrdersHandler handles GET /api/orders.
func (h *GinHandlers) UserOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := h.service.engine.UserOrders(c.GetString("userID"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"orders": orders, "count": len(orders)})
	}
}

// UserTradesHandler handles GET /api/trades.
func (h *GinHandlers) UserTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		trades, err := h.service.engine.UserTrades(c.GetString("userID"), limit)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"trades": trades, "count": len(trades)})
	}
}

// PortfolioHandler handles GET /api/portfolio.
func (h *GinHandlers) PortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := h.service.Portfolio(c.GetString("userID"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, view)
	}
}

// CreateContractHandler handles POST /internal/contracts.
func (h *GinHandlers) CreateContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var contract types.Contract
		if err := c.ShouldBindJSON(&contract); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
		if err := h.service.CreateContract(&contract); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"contract": contract})
	}
}

type gameStatusRequest struct {
	Status      string   `json:"status" binding:"required"`
	ActualValue *float64 `json:"actual_value"`
}

// GameStatusHandler handles POST /internal/contracts/:prop_id/status.
func (h *GinHandlers) GameStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req gameStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}

		propID := c.Param("prop_id")
		err := h.service.SetGameStatus(propID, types.GameStatus(strings.ToUpper(req.Status)), req.ActualValue)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"prop_id": propID, "status": strings.ToUpper(req.Status)})
	}
}

type settleRequest struct {
	ActualValue *float64 `json:"actual_value" binding:"required"`
}

// SettleContractHandler handles POST /internal/contracts/:prop_id/settle.
func (h *GinHandlers) SettleContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req settleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}

		propID := c.Param("prop_id")
		payouts, err := h.service.settle.SettleContract(propID, *req.ActualValue)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"prop_id": propID, "payouts": payouts, "count": len(payouts)})
	}
}
