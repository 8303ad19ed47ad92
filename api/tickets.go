package api

import (
	"net/http"

	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/Domenick1991/seatledger/internal/ledger"
	"github.com/gin-gonic/gin"
)

type Balances interface {
	BalanceOf(account domain.Account) uint64
}

type TicketHandler struct {
	ledger   ledger.UseCase
	balances Balances
}

func NewTicketHandler(ledger ledger.UseCase, balances Balances) *TicketHandler {
	return &TicketHandler{ledger: ledger, balances: balances}
}

func (h *TicketHandler) Register(tickets, accounts *gin.RouterGroup) {
	tickets.GET("/:id", h.get)
	tickets.POST("/:id/refund", h.refund)

	accounts.GET("/:account/tickets", h.accountTickets)
	accounts.GET("/:account/balance", h.balance)
}

func (h *TicketHandler) get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ticket, err := h.ledger.GetTicket(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *TicketHandler) refund(c *gin.Context) {
	account, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.ledger.Refund(c.Request.Context(), account, id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticketId": id, "refunded": true})
}

func (h *TicketHandler) accountTickets(c *gin.Context) {
	tickets, err := h.ledger.GetUserTickets(c.Request.Context(), domain.Account(c.Param("account")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

func (h *TicketHandler) balance(c *gin.Context) {
	account := domain.Account(c.Param("account"))
	c.JSON(http.StatusOK, gin.H{"account": account, "balance": h.balances.BalanceOf(account)})
}
