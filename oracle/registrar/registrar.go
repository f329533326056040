// Package registrar registers the oracle identities with the contract and
// builds the pool from the ones that succeed.
package registrar

import (
	"context"
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"

	"github.com/GPTx-global/flightoracle/oracle/ledger"
	"github.com/GPTx-global/flightoracle/oracle/log"
	"github.com/GPTx-global/flightoracle/oracle/monitor"
	"github.com/GPTx-global/flightoracle/oracle/pool"
	"github.com/GPTx-global/flightoracle/oracle/types"
)

// StatusSource picks the fixed status each identity will report.
// *rand.Rand satisfies it.
type StatusSource interface {
	Intn(n int) int
}

type Registrar struct {
	ledger   ledger.Ledger
	status   StatusSource
	maxIndex int
	tracker  *monitor.Tracker
}

// New returns a registrar. tracker may be nil.
func New(l ledger.Ledger, status StatusSource, maxIndex int, tracker *monitor.Tracker) *Registrar {
	return &Registrar{
		ledger:   l,
		status:   status,
		maxIndex: maxIndex,
		tracker:  tracker,
	}
}

// RegisterAll registers every address in order, one at a time. The returned
// pool holds exactly the identities that registered; the error, if any, is a
// *multierror.Error of *types.RegistrationError for the rest.
func (r *Registrar) RegisterAll(ctx context.Context, addrs []common.Address) (*pool.Pool, error) {
	builder := pool.NewBuilder(r.maxIndex)
	var result *multierror.Error

	for i, addr := range addrs {
		if err := ctx.Err(); err != nil {
			for _, rest := range addrs[i:] {
				result = r.fail(result, rest, err)
			}
			break
		}

		identity, err := r.register(ctx, addr)
		if err == nil {
			err = builder.Add(identity)
		}
		if err != nil {
			result = r.fail(result, addr, err)
			continue
		}

		if r.tracker != nil {
			r.tracker.Register(identity)
		}
		log.WithFields(log.Fields{
			"oracle":  addr.Hex(),
			"indexes": identity.Indexes,
			"status":  identity.Status,
		}).Info("oracle registered")
	}

	p := builder.Seal()
	log.Infof("%d oracles registered, %d failed", p.Size(), len(addrs)-p.Size())

	return p, result.ErrorOrNil()
}

func (r *Registrar) register(ctx context.Context, addr common.Address) (types.Identity, error) {
	fee, err := r.ledger.RegistrationFee(ctx)
	if err != nil {
		return types.Identity{}, err
	}

	if err := r.checkBalance(ctx, addr, fee); err != nil {
		return types.Identity{}, err
	}

	if err := r.ledger.RegisterOracle(ctx, addr, fee); err != nil {
		return types.Identity{}, err
	}

	indexes, err := r.ledger.AssignedIndexes(ctx, addr)
	if err != nil {
		return types.Identity{}, err
	}

	return types.Identity{
		Address: addr,
		Indexes: indexes,
		Status:  types.StatusCodes[r.status.Intn(len(types.StatusCodes))],
	}, nil
}

func (r *Registrar) checkBalance(ctx context.Context, addr common.Address, fee *big.Int) error {
	reader, ok := r.ledger.(ledger.BalanceReader)
	if !ok {
		return nil
	}

	balance, err := reader.BalanceAt(ctx, addr, nil)
	if err != nil {
		return types.ClassifyLedgerError(err, types.ErrLedgerTransport)
	}

	if balance.Cmp(fee) < 0 {
		return errorsmod.Wrapf(types.ErrInsufficientFunds, "balance %s below fee %s", balance, fee)
	}

	return nil
}

func (r *Registrar) fail(result *multierror.Error, addr common.Address, err error) *multierror.Error {
	log.Errorf("failed to register oracle %s: %v", addr.Hex(), err)
	if r.tracker != nil {
		r.tracker.RegistrationFailed(addr)
	}

	return multierror.Append(result, &types.RegistrationError{Address: addr, Err: err})
}
