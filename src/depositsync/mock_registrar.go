package depositsync

import (
	"context"
	"sync"

	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
)

// MockRegistrar records registrations in memory and ignores repeated hashes,
// the same way the backend rpc does
type MockRegistrar struct {
	mu       sync.Mutex
	calls    []model.DepositRegistration
	credited map[string]model.DepositRegistration
	failing  map[string]int
}

func NewMockRegistrar() *MockRegistrar {
	return &MockRegistrar{
		credited: map[string]model.DepositRegistration{},
		failing:  map[string]int{},
	}
}

// FailNext makes the next n registrations of hash fail
func (mr *MockRegistrar) FailNext(hash string, n int) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.failing[hash] = n
}

func (mr *MockRegistrar) RegisterOnchainDeposit(ctx context.Context, deposit model.DepositRegistration) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.calls = append(mr.calls, deposit)
	if n := mr.failing[deposit.TxHash]; n > 0 {
		mr.failing[deposit.TxHash] = n - 1
		return errors.Errorf("mock failure registering %s", deposit.TxHash)
	}
	if _, exists := mr.credited[deposit.TxHash]; !exists {
		mr.credited[deposit.TxHash] = deposit
	}
	return nil
}

// Calls returns every registration attempt, failed ones included
func (mr *MockRegistrar) Calls() []model.DepositRegistration {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return append([]model.DepositRegistration(nil), mr.calls...)
}

func (mr *MockRegistrar) Credited() map[string]model.DepositRegistration {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	out := make(map[string]model.DepositRegistration, len(mr.credited))
	for k, v := range mr.credited {
		out[k] = v
	}
	return out
}
