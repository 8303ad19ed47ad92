package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/Domenick1991/seatledger/internal/service/catalog"
	"github.com/gin-gonic/gin"
)

// AccountHeader carries the identity of the caller.
const AccountHeader = "X-Account"

func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsUnauthorized(err):
		return http.StatusForbidden
	case domain.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func caller(c *gin.Context) (domain.Account, bool) {
	account := c.GetHeader(AccountHeader)
	if account == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": AccountHeader + " header required"})
		return "", false
	}
	return domain.Account(account), true
}

func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
