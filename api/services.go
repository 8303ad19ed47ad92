package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/Domenick1991/seatledger/internal/ledger"
	"github.com/Domenick1991/seatledger/internal/service/catalog"
	"github.com/gin-gonic/gin"
)

// ServiceHandler serves reads from the catalog and sends writes to the
// ledger.
type ServiceHandler struct {
	catalog catalog.UseCase
	ledger  ledger.UseCase
}

type purchaseRequest struct {
	Seats   []int  `json:"seats"`
	Payment uint64 `json:"payment"`
}

type statusRequest struct {
	IsActive *bool `json:"isActive"`
}

func NewServiceHandler(catalog catalog.UseCase, ledger ledger.UseCase) *ServiceHandler {
	return &ServiceHandler{catalog: catalog, ledger: ledger}
}

func (h *ServiceHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.POST("", h.create)
	router.GET("/stats/platform", h.stats)
	router.GET("/:id", h.get)
	router.GET("/:id/seats", h.seats)
	router.GET("/:id/seats/:seat", h.seat)
	router.GET("/:id/tickets", h.tickets)
	router.POST("/:id/tickets", h.purchase)
	router.PATCH("/:id/status", h.setStatus)
	router.POST("/:id/withdraw", h.withdraw)
}

func (h *ServiceHandler) list(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	services, err := h.catalog.ListServices(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": services, "count": len(services)})
}

func parseFilter(c *gin.Context) (domain.ServiceFilter, error) {
	var filter domain.ServiceFilter
	if v := c.Query("type"); v != "" {
		t, err := domain.ParseServiceType(v)
		if err != nil {
			return filter, err
		}
		filter.Type = &t
	}
	filter.Origin = c.Query("origin")
	filter.Destination = c.Query("destination")

	var err error
	if filter.StartAfter, err = parseDate(c.Query("startDate")); err != nil {
		return filter, err
	}
	if filter.StartBefore, err = parseDate(c.Query("endDate")); err != nil {
		return filter, err
	}
	return filter, nil
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

func (h *ServiceHandler) create(c *gin.Context) {
	provider, ok := caller(c)
	if !ok {
		return
	}
	var req ledger.ListServiceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.ledger.ListService(c.Request.Context(), provider, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"serviceId": id})
}

func (h *ServiceHandler) stats(c *gin.Context) {
	stats, err := h.catalog.PlatformStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *ServiceHandler) get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	svc, err := h.catalog.GetService(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (h *ServiceHandler) seats(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	info, err := h.catalog.GetSeatInfo(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *ServiceHandler) seat(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	seat, err := strconv.Atoi(c.Param("seat"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seat"})
		return
	}
	booked, err := h.ledger.IsSeatBooked(c.Request.Context(), id, seat)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"serviceId": id, "seat": seat, "booked": booked})
}

func (h *ServiceHandler) tickets(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	tickets, err := h.ledger.GetServiceTickets(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

func (h *ServiceHandler) purchase(c *gin.Context) {
	buyer, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ticketID, err := h.ledger.PurchaseSeats(c.Request.Context(), buyer, id, req.Seats, req.Payment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticketId": ticketID})
}

func (h *ServiceHandler) setStatus(c *gin.Context) {
	account, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "isActive required"})
		return
	}
	if err := h.ledger.SetServiceActive(c.Request.Context(), account, id, *req.IsActive); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"serviceId": id, "isActive": *req.IsActive})
}

func (h *ServiceHandler) withdraw(c *gin.Context) {
	account, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	amount, err := h.ledger.WithdrawProvider(c.Request.Context(), account, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"serviceId": id, "amount": amount})
}
