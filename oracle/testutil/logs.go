package testutil

import (
	"context"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/GPTx-global/flightoracle/oracle/ledger"
	"github.com/GPTx-global/flightoracle/oracle/types"
)

// FakeLogSource serves a fixed history through FilterLogs and a live feed
// through SubscribeFilterLogs.
type FakeLogSource struct {
	mu      sync.Mutex
	history []ethtypes.Log
	head    uint64
	queries []ethereum.FilterQuery

	FilterErr    error
	SubscribeErr error

	feed       chan ethtypes.Log
	failures   chan error
	subscribed chan struct{}
	once       sync.Once
}

func NewFakeLogSource() *FakeLogSource {
	return &FakeLogSource{
		feed:       make(chan ethtypes.Log, 64),
		failures:   make(chan error, 1),
		subscribed: make(chan struct{}),
	}
}

// AddHistory appends mined logs and advances the head to the highest block.
func (f *FakeLogSource) AddHistory(logs ...ethtypes.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, l := range logs {
		f.history = append(f.history, l)
		if l.BlockNumber > f.head {
			f.head = l.BlockNumber
		}
	}
}

func (f *FakeLogSource) SetHead(head uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.head = head
}

// Emit queues a log on the live feed.
func (f *FakeLogSource) Emit(l ethtypes.Log) {
	f.feed <- l
}

// Fail ends the live subscription with err.
func (f *FakeLogSource) Fail(err error) {
	f.failures <- err
}

// Subscribed is closed once SubscribeFilterLogs has been called.
func (f *FakeLogSource) Subscribed() <-chan struct{} {
	return f.subscribed
}

func (f *FakeLogSource) Queries() []ethereum.FilterQuery {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]ethereum.FilterQuery, len(f.queries))
	copy(out, f.queries)

	return out
}

func (f *FakeLogSource) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.head, nil
}

func (f *FakeLogSource) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	if f.FilterErr != nil {
		return nil, f.FilterErr
	}

	out := make([]ethtypes.Log, 0, len(f.history))
	for _, l := range f.history {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		out = append(out, l)
	}

	return out, nil
}

func (f *FakeLogSource) SubscribeFilterLogs(_ context.Context, q ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	err := f.SubscribeErr
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}

	sub := event.NewSubscription(func(quit <-chan struct{}) error {
		for {
			select {
			case l := <-f.feed:
				select {
				case ch <- l:
				case <-quit:
					return nil
				}
			case err := <-f.failures:
				return err
			case <-quit:
				return nil
			}
		}
	})

	f.once.Do(func() { close(f.subscribed) })

	return sub, nil
}

// RequestLog builds an OracleRequest log the way the contract emits it.
func RequestLog(contract common.Address, block uint64, req types.StatusRequest) ethtypes.Log {
	ev := ledger.DefaultABI().Events[ledger.EventOracleRequest]

	data, err := ev.Inputs.NonIndexed().Pack(req.Index, req.Airline, req.Flight, req.Timestamp)
	if err != nil {
		panic(err)
	}

	return ethtypes.Log{
		Address:     contract,
		Topics:      []common.Hash{ev.ID},
		Data:        data,
		BlockNumber: block,
	}
}

// Request is a shorthand for a StatusRequest.
func Request(index uint8, airline string, flight string, timestamp int64) types.StatusRequest {
	return types.StatusRequest{
		Index:     index,
		Airline:   common.HexToAddress(airline),
		Flight:    flight,
		Timestamp: big.NewInt(timestamp),
	}
}
