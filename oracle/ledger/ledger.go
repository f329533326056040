package ledger

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/GPTx-global/flightoracle/oracle/log"
	"github.com/GPTx-global/flightoracle/oracle/types"
)

// Ledger is the part of the FlightSurety contract the oracle pool talks to.
type Ledger interface {
	RegistrationFee(ctx context.Context) (*big.Int, error)
	RegisterOracle(ctx context.Context, from common.Address, fee *big.Int) error
	AssignedIndexes(ctx context.Context, from common.Address) (types.Indexes, error)
	SubmitResponse(ctx context.Context, from common.Address, req types.StatusRequest, status types.StatusCode) error
}

// BalanceReader is optionally implemented by a Ledger so registration can
// refuse underfunded accounts before sending.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Backend is everything the contract client needs from a node connection.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceReader
}

type Options struct {
	ChainID          *big.Int
	RegisterGasLimit uint64
	ResponseGasLimit uint64
}

// Contract implements Ledger on a deployed FlightSuretyApp contract, signing
// each transaction with the sending identity's own key.
type Contract struct {
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	backend Backend
	wallet  *Wallet
	opts    Options
}

var _ Ledger = (*Contract)(nil)

func NewContract(backend Backend, address common.Address, contractABI abi.ABI, wallet *Wallet, opts Options) *Contract {
	return &Contract{
		address: address,
		abi:     contractABI,
		bound:   bind.NewBoundContract(address, contractABI, backend, backend, backend),
		backend: backend,
		wallet:  wallet,
		opts:    opts,
	}
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) RegistrationFee(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, MethodRegistrationFee); err != nil {
		return nil, types.ClassifyLedgerError(err, types.ErrLedgerTransport)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s returned %d values", MethodRegistrationFee, len(out))
	}

	fee := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)

	return fee, nil
}

func (c *Contract) RegisterOracle(ctx context.Context, from common.Address, fee *big.Int) error {
	err := c.transact(ctx, from, fee, c.opts.RegisterGasLimit, MethodRegisterOracle)

	return types.ClassifyLedgerError(err, types.ErrRegistrationRejected)
}

func (c *Contract) AssignedIndexes(ctx context.Context, from common.Address) (types.Indexes, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx, From: from}, &out, MethodGetMyIndexes); err != nil {
		return types.Indexes{}, types.ClassifyLedgerError(err, types.ErrLedgerTransport)
	}
	if len(out) != 1 {
		return types.Indexes{}, fmt.Errorf("%s returned %d values", MethodGetMyIndexes, len(out))
	}

	indexes := *abi.ConvertType(out[0], new([types.IndexCount]uint8)).(*[types.IndexCount]uint8)

	return types.Indexes(indexes), nil
}

func (c *Contract) SubmitResponse(ctx context.Context, from common.Address, req types.StatusRequest, status types.StatusCode) error {
	err := c.transact(ctx, from, nil, c.opts.ResponseGasLimit, MethodSubmitResponse,
		req.Index, req.Airline, req.Flight, req.Timestamp, uint8(status))

	return types.ClassifyLedgerError(err, types.ErrResponseRejected)
}

func (c *Contract) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return c.backend.BalanceAt(ctx, account, blockNumber)
}

// transact sends one signed transaction from `from` and waits for it to be
// mined. A reverted transaction is replayed as a call to recover the revert
// reason.
func (c *Contract) transact(ctx context.Context, from common.Address, value *big.Int, gasLimit uint64, method string, params ...interface{}) error {
	key, err := c.wallet.Key(from)
	if err != nil {
		return err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, c.opts.ChainID)
	if err != nil {
		return fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = value
	opts.GasLimit = gasLimit

	unlock := c.wallet.lock(from)
	tx, err := c.bound.Transact(opts, method, params...)
	unlock()
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	log.Debugf("%s sent from %s: %s", method, from.Hex(), tx.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return fmt.Errorf("failed to wait for %s: %w", tx.Hash().Hex(), err)
	}

	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("%s reverted in tx %s: %w", method, tx.Hash().Hex(), c.revertReason(ctx, from, tx, receipt))
	}

	return nil
}

func (c *Contract) revertReason(ctx context.Context, from common.Address, tx *ethtypes.Transaction, receipt *ethtypes.Receipt) error {
	msg := ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}

	if _, err := c.backend.CallContract(ctx, msg, receipt.BlockNumber); err != nil {
		return err
	}

	return fmt.Errorf("execution reverted")
}
