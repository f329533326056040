// Package testutil provides in-memory stand-ins for the ledger and its event
// stream.
package testutil

import (
	"context"
	"math/big"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/GPTx-global/flightoracle/oracle/types"
)

// SubmitCall is one recorded SubmitResponse.
type SubmitCall struct {
	From    common.Address
	Request types.StatusRequest
	Status  types.StatusCode
}

// FakeLedger behaves like the FlightSurety oracle contract closely enough for
// the registrar and responders: it charges a fee, assigns indexes at
// registration and, with EnforceIndexes, rejects responses for indexes the
// sender does not hold.
type FakeLedger struct {
	mu sync.Mutex

	Fee            *big.Int
	Indexes        map[common.Address]types.Indexes
	Balances       map[common.Address]*big.Int
	RegisterErrors map[common.Address]error
	SubmitErrors   map[common.Address]error
	FeeErr         error
	EnforceIndexes bool

	// SubmitHook runs inside SubmitResponse before the call is recorded.
	SubmitHook func(from common.Address, req types.StatusRequest)

	registered    map[common.Address]types.Indexes
	registrations []common.Address
	submits       []SubmitCall
}

func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		Fee:            big.NewInt(1e18),
		Indexes:        make(map[common.Address]types.Indexes),
		Balances:       make(map[common.Address]*big.Int),
		RegisterErrors: make(map[common.Address]error),
		SubmitErrors:   make(map[common.Address]error),
		registered:     make(map[common.Address]types.Indexes),
	}
}

func (f *FakeLedger) RegistrationFee(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FeeErr != nil {
		return nil, f.FeeErr
	}

	return new(big.Int).Set(f.Fee), nil
}

func (f *FakeLedger) RegisterOracle(_ context.Context, from common.Address, fee *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.RegisterErrors[from]; err != nil {
		return err
	}
	if fee == nil || fee.Cmp(f.Fee) < 0 {
		return errorsmod.Wrap(types.ErrRegistrationRejected, "Registration fee is required")
	}

	indexes, ok := f.Indexes[from]
	if !ok {
		indexes = DeriveIndexes(from)
	}

	f.registered[from] = indexes
	f.registrations = append(f.registrations, from)

	return nil
}

func (f *FakeLedger) AssignedIndexes(_ context.Context, from common.Address) (types.Indexes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	indexes, ok := f.registered[from]
	if !ok {
		return types.Indexes{}, errorsmod.Wrap(types.ErrOracleNotRegistered, "Not registered as an oracle")
	}

	return indexes, nil
}

func (f *FakeLedger) SubmitResponse(_ context.Context, from common.Address, req types.StatusRequest, status types.StatusCode) error {
	f.mu.Lock()
	hook := f.SubmitHook
	f.mu.Unlock()

	if hook != nil {
		hook(from, req)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.submits = append(f.submits, SubmitCall{From: from, Request: req, Status: status})

	if err := f.SubmitErrors[from]; err != nil {
		return err
	}

	if f.EnforceIndexes {
		indexes, ok := f.registered[from]
		if !ok {
			return errorsmod.Wrap(types.ErrOracleNotRegistered, "Not registered as an oracle")
		}
		if !indexes.Contains(req.Index) {
			return errorsmod.Wrap(types.ErrIndexMismatch, "Index does not match oracle request")
		}
	}

	return nil
}

// BalanceAt reports a generous balance unless Balances says otherwise.
func (f *FakeLedger) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if balance, ok := f.Balances[account]; ok {
		return new(big.Int).Set(balance), nil
	}

	return new(big.Int).Mul(f.Fee, big.NewInt(100)), nil
}

func (f *FakeLedger) Registrations() []common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]common.Address, len(f.registrations))
	copy(out, f.registrations)

	return out
}

func (f *FakeLedger) Submits() []SubmitCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]SubmitCall, len(f.submits))
	copy(out, f.submits)

	return out
}

// DeriveIndexes gives an address three deterministic indexes below 10.
func DeriveIndexes(addr common.Address) types.Indexes {
	return types.Indexes{addr[19] % 10, addr[18] % 10, (addr[19] / 10) % 10}
}
