package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/flightoracle/oracle/log"
	"github.com/GPTx-global/flightoracle/oracle/types"
)

type sentTx struct {
	method string
	from   common.Address
	value  *big.Int
	gas    uint64
	args   []interface{}
}

// fakeBackend answers contract calls and mines every transaction instantly,
// decoding calldata with the real ABI.
type fakeBackend struct {
	mu       sync.Mutex
	abi      abi.ABI
	chainID  *big.Int
	fee      *big.Int
	indexes  map[common.Address][3]uint8
	balances map[common.Address]*big.Int
	reverts  map[string]string
	sent     []sentTx
	receipts map[common.Hash]*ethtypes.Receipt
	nonces   map[common.Address]uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		abi:      DefaultABI(),
		chainID:  big.NewInt(1337),
		fee:      big.NewInt(1e18),
		indexes:  make(map[common.Address][3]uint8),
		balances: make(map[common.Address]*big.Int),
		reverts:  make(map[string]string),
		receipts: make(map[common.Hash]*ethtypes.Receipt),
		nonces:   make(map[common.Address]uint64),
	}
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	method, err := f.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}

	if reason, ok := f.reverts[method.Name]; ok {
		return nil, fmt.Errorf("execution reverted: %s", reason)
	}

	switch method.Name {
	case MethodRegistrationFee:
		return method.Outputs.Pack(f.fee)
	case MethodGetMyIndexes:
		idx, ok := f.indexes[call.From]
		if !ok {
			return nil, errors.New("execution reverted: Not registered as an oracle")
		}
		return method.Outputs.Pack(idx)
	}

	return nil, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{Number: big.NewInt(1)}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.nonces[account], nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(f.chainID), tx)
	if err != nil {
		return err
	}

	method, err := f.abi.MethodById(tx.Data()[:4])
	if err != nil {
		return err
	}

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return err
	}

	f.sent = append(f.sent, sentTx{method: method.Name, from: from, value: tx.Value(), gas: tx.Gas(), args: args})
	f.nonces[from]++

	status := ethtypes.ReceiptStatusSuccessful
	if _, ok := f.reverts[method.Name]; ok {
		status = ethtypes.ReceiptStatusFailed
	}
	f.receipts[tx.Hash()] = &ethtypes.Receipt{Status: status, TxHash: tx.Hash(), BlockNumber: big.NewInt(2)}

	return nil
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- ethtypes.Log) (ethereum.Subscription, error) {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	}), nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}

	return receipt, nil
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if balance, ok := f.balances[account]; ok {
		return balance, nil
	}

	return big.NewInt(0), nil
}

type ContractTestSuite struct {
	suite.Suite
	backend  *fakeBackend
	key      *ecdsa.PrivateKey
	from     common.Address
	contract *Contract
	ctx      context.Context
}

func TestContractTestSuite(t *testing.T) {
	suite.Run(t, new(ContractTestSuite))
}

func (suite *ContractTestSuite) SetupSuite() {
	log.InitLogger()
}

func (suite *ContractTestSuite) SetupTest() {
	var err error
	suite.key, err = crypto.GenerateKey()
	suite.Require().NoError(err)
	suite.from = crypto.PubkeyToAddress(suite.key.PublicKey)

	suite.ctx = context.Background()
	suite.backend = newFakeBackend()
	suite.contract = NewContract(
		suite.backend,
		common.HexToAddress("0x00000000000000000000000000000000000000cc"),
		DefaultABI(),
		NewWallet(suite.key),
		Options{ChainID: big.NewInt(1337), RegisterGasLimit: 3000000, ResponseGasLimit: 6000000},
	)
}

func (suite *ContractTestSuite) TestRegistrationFee() {
	fee, err := suite.contract.RegistrationFee(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(0, fee.Cmp(big.NewInt(1e18)))
}

func (suite *ContractTestSuite) TestRegisterOracle() {
	fee := big.NewInt(1e18)
	suite.Require().NoError(suite.contract.RegisterOracle(suite.ctx, suite.from, fee))

	suite.Require().Len(suite.backend.sent, 1)
	sent := suite.backend.sent[0]
	suite.Equal(MethodRegisterOracle, sent.method)
	suite.Equal(suite.from, sent.from)
	suite.Equal(0, sent.value.Cmp(fee))
	suite.Equal(uint64(3000000), sent.gas)
}

func (suite *ContractTestSuite) TestRegisterOracle_Reverted() {
	suite.backend.reverts[MethodRegisterOracle] = "Registration fee is required"

	err := suite.contract.RegisterOracle(suite.ctx, suite.from, big.NewInt(1))
	suite.Require().Error(err)
	suite.True(errors.Is(err, types.ErrRegistrationRejected), "got %v", err)
}

func (suite *ContractTestSuite) TestRegisterOracle_UnknownKey() {
	err := suite.contract.RegisterOracle(suite.ctx, common.HexToAddress("0x01"), big.NewInt(1))
	suite.Require().Error(err)
	suite.Contains(err.Error(), "no key")
	suite.Empty(suite.backend.sent)
}

func (suite *ContractTestSuite) TestAssignedIndexes() {
	suite.backend.indexes[suite.from] = [3]uint8{2, 7, 9}

	indexes, err := suite.contract.AssignedIndexes(suite.ctx, suite.from)
	suite.Require().NoError(err)
	suite.Equal(types.Indexes{2, 7, 9}, indexes)

	_, err = suite.contract.AssignedIndexes(suite.ctx, common.HexToAddress("0x01"))
	suite.True(errors.Is(err, types.ErrOracleNotRegistered), "got %v", err)
}

func (suite *ContractTestSuite) TestSubmitResponse() {
	req := types.StatusRequest{
		Index:     7,
		Airline:   common.HexToAddress("0xA1"),
		Flight:    "ND1309",
		Timestamp: big.NewInt(1700000000),
	}

	suite.Require().NoError(suite.contract.SubmitResponse(suite.ctx, suite.from, req, types.StatusLateAirline))

	suite.Require().Len(suite.backend.sent, 1)
	sent := suite.backend.sent[0]
	suite.Equal(MethodSubmitResponse, sent.method)
	suite.Equal(uint64(6000000), sent.gas)
	suite.Require().Len(sent.args, 5)
	suite.Equal(uint8(7), sent.args[0])
	suite.Equal(req.Airline, sent.args[1])
	suite.Equal("ND1309", sent.args[2])
	suite.Equal(0, sent.args[3].(*big.Int).Cmp(req.Timestamp))
	suite.Equal(uint8(types.StatusLateAirline), sent.args[4])
}

func (suite *ContractTestSuite) TestSubmitResponse_RevertReasonRecovered() {
	suite.backend.reverts[MethodSubmitResponse] = "Index does not match oracle request"

	req := types.StatusRequest{Index: 3, Airline: common.HexToAddress("0xA1"), Flight: "ND1309", Timestamp: big.NewInt(1)}
	err := suite.contract.SubmitResponse(suite.ctx, suite.from, req, types.StatusOnTime)

	suite.Require().Error(err)
	suite.True(errors.Is(err, types.ErrIndexMismatch), "got %v", err)
}

func (suite *ContractTestSuite) TestSequentialSendsUseIncreasingNonces() {
	for i := 0; i < 3; i++ {
		suite.Require().NoError(suite.contract.RegisterOracle(suite.ctx, suite.from, big.NewInt(1)))
	}

	suite.Equal(uint64(3), suite.backend.nonces[suite.from])
}

func (suite *ContractTestSuite) TestBalanceAt() {
	suite.backend.balances[suite.from] = big.NewInt(5)

	balance, err := suite.contract.BalanceAt(suite.ctx, suite.from, nil)
	suite.Require().NoError(err)
	suite.Equal(int64(5), balance.Int64())
}
