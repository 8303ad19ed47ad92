package api

import (
	"context"

	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/Domenick1991/seatledger/internal/ledger"
	"github.com/Domenick1991/seatledger/internal/replicator"
	"github.com/Domenick1991/seatledger/internal/service/catalog"
	"github.com/stretchr/testify/mock"
)

// MockCatalogUseCase is a mock implementation of catalog.UseCase
type MockCatalogUseCase struct {
	mock.Mock
}

func (m *MockCatalogUseCase) ListServices(ctx context.Context, filter domain.ServiceFilter) ([]domain.Service, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Service), args.Error(1)
}

func (m *MockCatalogUseCase) GetService(ctx context.Context, serviceID uint64) (*catalog.ServiceView, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.ServiceView), args.Error(1)
}

func (m *MockCatalogUseCase) GetSeatInfo(ctx context.Context, serviceID uint64) (*domain.SeatInfo, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SeatInfo), args.Error(1)
}

func (m *MockCatalogUseCase) PlatformStats(ctx context.Context) (*domain.PlatformStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PlatformStats), args.Error(1)
}

// MockLedgerUseCase is a mock implementation of ledger.UseCase
type MockLedgerUseCase struct {
	mock.Mock
}

func (m *MockLedgerUseCase) ListService(ctx context.Context, provider domain.Account, input ledger.ListServiceInput) (uint64, error) {
	args := m.Called(ctx, provider, input)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockLedgerUseCase) PurchaseSeats(ctx context.Context, buyer domain.Account, serviceID uint64, seats []int, payment uint64) (uint64, error) {
	args := m.Called(ctx, buyer, serviceID, seats, payment)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockLedgerUseCase) Refund(ctx context.Context, caller domain.Account, ticketID uint64) error {
	args := m.Called(ctx, caller, ticketID)
	return args.Error(0)
}

func (m *MockLedgerUseCase) SetServiceActive(ctx context.Context, caller domain.Account, serviceID uint64, active bool) error {
	args := m.Called(ctx, caller, serviceID, active)
	return args.Error(0)
}

func (m *MockLedgerUseCase) WithdrawProvider(ctx context.Context, caller domain.Account, serviceID uint64) (uint64, error) {
	args := m.Called(ctx, caller, serviceID)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockLedgerUseCase) GetService(ctx context.Context, serviceID uint64) (*domain.Service, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Service), args.Error(1)
}

func (m *MockLedgerUseCase) GetTicket(ctx context.Context, ticketID uint64) (*domain.Ticket, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockLedgerUseCase) IsSeatBooked(ctx context.Context, serviceID uint64, seat int) (bool, error) {
	args := m.Called(ctx, serviceID, seat)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerUseCase) GetAvailableSeats(ctx context.Context, serviceID uint64) ([]int, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockLedgerUseCase) GetUserTickets(ctx context.Context, buyer domain.Account) ([]uint64, error) {
	args := m.Called(ctx, buyer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint64), args.Error(1)
}

func (m *MockLedgerUseCase) GetServiceTickets(ctx context.Context, serviceID uint64) ([]uint64, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint64), args.Error(1)
}

type staticStatus replicator.Status

func (s staticStatus) Status() replicator.Status { return replicator.Status(s) }

type staticBalances map[domain.Account]uint64

func (b staticBalances) BalanceOf(account domain.Account) uint64 { return b[account] }
