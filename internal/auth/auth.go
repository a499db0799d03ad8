// Package auth manages user accounts and issues the JWT bearer tokens the
// API middleware validates. New accounts start with the standard play
// balance.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

const tokenTTL = 24 * time.Hour

// Claims is the JWT claims structure carried by API tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// TokenResponse is the issued token plus its expiry.
type TokenResponse struct {
	Token      string    `json:"token"`
	Expiration time.Time `json:"expiration"`
}

type Service struct {
	jwtSecret []byte
	db        *Database
}

func NewService(gormDB *gorm.DB, jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		db:        NewDatabase(gormDB),
	}
}

// Register creates an account with the initial balance and logs it in.
func (s *Service) Register(username, email, password string) (*types.User, *TokenResponse, error) {
	if len(username) < 3 {
		return nil, nil, fmt.Errorf("%w: username must be at least 3 characters", types.ErrValidation)
	}
	if len(password) < 8 {
		return nil, nil, fmt.Errorf("%w: password must be at least 8 characters", types.ErrValidation)
	}

	existing, err := s.db.GetUserByUsername(username)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, fmt.Errorf("%w: username %s is taken", types.ErrValidation, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}

	user := &types.User{
		UserID:       uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Balance:      types.InitialBalance,
	}
	if err := s.db.CreateUser(user); err != nil {
		return nil, nil, err
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, nil, err
	}

	log.Info().Str("user_id", user.UserID).Str("username", username).Msg("user registered")
	return user, token, nil
}

// Login verifies a password and issues a fresh token.
func (s *Service) Login(username, password string) (*types.User, *TokenResponse, error) {
	user, err := s.db.GetUserByUsername(username)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, nil, err
	}
	return user, token, nil
}

// GetUser loads one account by ID.
func (s *Service) GetUser(userID string) (*types.User, error) {
	user, err := s.db.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", types.ErrNotFound, userID)
	}
	return user, nil
}

// Leaderboard returns accounts ranked by balance.
func (s *Service) Leaderboard(limit int) ([]types.User, error) {
	return s.db.Leaderboard(limit)
}

// Transactions returns a user's cash ledger, newest first.
func (s *Service) Transactions(userID string, limit int) ([]types.Transaction, error) {
	return s.db.ListUserTransactions(userID, limit)
}

func (s *Service) generateToken(user *types.User) (*TokenResponse, error) {
	expiration := time.Now().Add(tokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		UserID:   user.UserID,
		Username: user.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}
	return &TokenResponse{Token: signed, Expiration: expiration}, nil
}

// GinHandlers contains HTTP handlers for the account endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterHandler handles POST /api/auth/register.
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}

		user, token, err := h.service.Register(req.Username, req.Email, req.Password)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"user": user, "token": token.Token, "expiration": token.Expiration})
	}
}

// LoginHandler handles POST /api/auth/login.
func (h *GinHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}

		user, token, err := h.service.Login(req.Username, req.Password)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"user": user, "token": token.Token, "expiration": token.Expiration})
	}
}

// MeHandler handles GET /api/auth/me for the authenticated user.
func (h *GinHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.service.GetUser(c.GetString("userID"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, gin.H{"user": user})
	}
}

// LeaderboardHandler handles GET /api/leaderboard.
func (h *GinHandlers) LeaderboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := h.service.Leaderboard(50)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		entries := make([]gin.H, 0, len(users))
		for i, u := range users {
			entries = append(entries, gin.H{
				"rank":     i + 1,
				"username": u.Username,
				"balance":  u.Balance,
			})
		}
		response.OK(c, gin.H{"leaderboard": entries})
	}
}
