package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/Domenick1991/seatledger/internal/replicator"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTicketRouter(l *MockLedgerUseCase, b Balances) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewTicketHandler(l, b).Register(router.Group("/tickets"), router.Group("/accounts"))
	return router
}

func TestTicketHandler_getAndRefund(t *testing.T) {
	mockLedger := &MockLedgerUseCase{}
	router := newTicketRouter(mockLedger, staticBalances{})

	ticket := &domain.Ticket{ID: 4, ServiceID: 1, Buyer: "alice", Seats: []int{5}, TotalPaid: 100}
	mockLedger.On("GetTicket", mock.Anything, uint64(4)).Return(ticket, nil)
	mockLedger.On("GetTicket", mock.Anything, uint64(5)).Return(nil, domain.ErrTicketNotFound)
	mockLedger.On("Refund", mock.Anything, domain.Account("alice"), uint64(4)).Return(nil).Once()
	mockLedger.On("Refund", mock.Anything, domain.Account("alice"), uint64(4)).Return(domain.ErrAlreadyRefunded).Once()
	mockLedger.On("Refund", mock.Anything, domain.Account("bob"), uint64(4)).Return(domain.ErrNotTicketOwner)

	w := do(router, "GET", "/tickets/4", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"buyer":"alice"`)

	w = do(router, "GET", "/tickets/5", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, "POST", "/tickets/4/refund", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(router, "POST", "/tickets/4/refund", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(router, "POST", "/tickets/4/refund", "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(router, "POST", "/tickets/4/refund", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	mockLedger.AssertExpectations(t)
}

func TestTicketHandler_accounts(t *testing.T) {
	mockLedger := &MockLedgerUseCase{}
	router := newTicketRouter(mockLedger, staticBalances{"alice": 50})

	mockLedger.On("GetUserTickets", mock.Anything, domain.Account("alice")).Return([]uint64{1, 4}, nil)

	w := do(router, "GET", "/accounts/alice/tickets", "", nil)
	assert.JSONEq(t, `{"tickets":[1,4]}`, w.Body.String())

	w = do(router, "GET", "/accounts/alice/balance", "", nil)
	assert.JSONEq(t, `{"account":"alice","balance":50}`, w.Body.String())
}

func TestStatusHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	started := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)

	router := gin.New()
	NewStatusHandler(staticStatus{State: replicator.StateLive, Offset: 12, Services: 3, Pending: []uint64{}, StartedAt: started}).Register(router.Group(""))

	w := do(router, "GET", "/indexer/status", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"state":"live","offset":12,"services":3,"pending":[],"startedAt":"2030-05-01T12:00:00Z"}`, w.Body.String())

	w = do(router, "GET", "/health", "", nil)
	assert.JSONEq(t, `{"status":"ok","replicator":"live","offset":12}`, w.Body.String())

	router = gin.New()
	NewStatusHandler(staticStatus{State: replicator.StateDegraded}).Register(router.Group(""))
	w = do(router, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}
