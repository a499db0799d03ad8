package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

// The API envelope is flat: successful responses carry their payload fields
// next to "success": true; failures carry a single "error" message. The
// frontend reads these fields directly off the top-level object.

// OK sends a successful response with the payload fields merged into the
// envelope. POST requests return 201, everything else 200.
func OK(c *gin.Context, payload gin.H) {
	status := http.StatusOK
	if c.Request.Method == http.MethodPost {
		status = http.StatusCreated
	}

	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}

// Fail sends a failure envelope with the given HTTP status.
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

func BadRequest(c *gin.Context, message string)   { Fail(c, http.StatusBadRequest, message) }
func Unauthorized(c *gin.Context, message string) { Fail(c, http.StatusUnauthorized, message) }
func Forbidden(c *gin.Context, message string)    { Fail(c, http.StatusForbidden, message) }
func NotFound(c *gin.Context, message string)     { Fail(c, http.StatusNotFound, message) }
func Conflict(c *gin.Context, message string)     { Fail(c, http.StatusConflict, message) }

func InternalError(c *gin.Context, message string) {
	Fail(c, http.StatusInternalServerError, message)
}

// Handle maps service errors onto the envelope. On nil error the payload is
// sent with OK. Rejected operations never mutate engine state, so the
// message alone is enough for the client to retry.
func Handle(c *gin.Context, payload gin.H, err error) {
	if err == nil {
		OK(c, payload)
		return
	}

	switch {
	case errors.Is(err, types.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, types.ErrForbidden), errors.Is(err, types.ErrMarketClosed):
		Forbidden(c, err.Error())
	case errors.Is(err, types.ErrValidation),
		errors.Is(err, types.ErrPortfolioLimit),
		errors.Is(err, types.ErrInvalidTransition):
		BadRequest(c, err.Error())
	case errors.Is(err, types.ErrAlreadySettled):
		Conflict(c, err.Error())
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "resource already exists")
	default:
		InternalError(c, "an unexpected error occurred")
	}
}
