package subscribe

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"

	errorsmod "cosmossdk.io/errors"
	"github.com/davecgh/go-spew/spew"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cast"

	"github.com/GPTx-global/flightoracle/oracle/ledger"
	"github.com/GPTx-global/flightoracle/oracle/log"
	"github.com/GPTx-global/flightoracle/oracle/types"
)

// LogSource is the part of a node connection the listener reads from.
// *ethclient.Client satisfies it.
type LogSource interface {
	ethereum.LogFilterer
	BlockNumber(ctx context.Context) (uint64, error)
}

// Handler receives every well-formed request in delivery order.
type Handler interface {
	Dispatch(ctx context.Context, req types.StatusRequest) int
}

type HandlerFunc func(ctx context.Context, req types.StatusRequest) int

func (f HandlerFunc) Dispatch(ctx context.Context, req types.StatusRequest) int {
	return f(ctx, req)
}

// Listener follows OracleRequest events of one contract from genesis onwards.
type Listener struct {
	source      LogSource
	contract    common.Address
	abi         abi.ABI
	event       abi.Event
	handler     Handler
	channelSize int

	received atomic.Int64
	dropped  atomic.Int64
}

func NewListener(source LogSource, contract common.Address, contractABI abi.ABI, handler Handler) (*Listener, error) {
	event, ok := contractABI.Events[ledger.EventOracleRequest]
	if !ok {
		return nil, fmt.Errorf("contract abi has no %s event", ledger.EventOracleRequest)
	}

	return &Listener{
		source:      source,
		contract:    contract,
		abi:         contractABI,
		event:       event,
		handler:     handler,
		channelSize: 2 << 10,
	}, nil
}

// Run attaches the live subscription first, replays history from block 0 up
// to the head seen at attach time and then follows the subscription, skipping
// what the replay already covered. It returns nil when ctx ends and an
// ErrListenerTransport error when the subscription fails.
func (l *Listener) Run(ctx context.Context) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{l.contract},
		Topics:    [][]common.Hash{{l.event.ID}},
	}

	live := make(chan ethtypes.Log, l.channelSize)
	sub, err := l.source.SubscribeFilterLogs(ctx, query, live)
	if err != nil {
		return l.transportError(ctx, "subscribe", err)
	}
	defer sub.Unsubscribe()

	head, err := l.source.BlockNumber(ctx)
	if err != nil {
		return l.transportError(ctx, "read head", err)
	}

	backfill := query
	backfill.FromBlock = big.NewInt(0)
	backfill.ToBlock = new(big.Int).SetUint64(head)

	history, err := l.source.FilterLogs(ctx, backfill)
	if err != nil {
		return l.transportError(ctx, "replay history", err)
	}

	log.Infof("listening for %s on %s, replaying %d requests up to block %d", l.event.Name, l.contract.Hex(), len(history), head)

	for _, entry := range history {
		if ctx.Err() != nil {
			return nil
		}
		l.handle(ctx, entry)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-sub.Err():
			if ctx.Err() != nil {
				return nil
			}
			if !ok || err == nil {
				err = fmt.Errorf("subscription closed")
			}
			return l.transportError(ctx, "subscription", err)

		case entry := <-live:
			if !entry.Removed && entry.BlockNumber <= head {
				continue
			}
			l.handle(ctx, entry)
		}
	}
}

// Received is the number of well-formed requests handed to the handler.
func (l *Listener) Received() int {
	return int(l.received.Load())
}

// Dropped is the number of malformed logs discarded.
func (l *Listener) Dropped() int {
	return int(l.dropped.Load())
}

func (l *Listener) handle(ctx context.Context, entry ethtypes.Log) {
	req, err := l.decode(entry)
	if err != nil {
		l.dropped.Add(1)
		log.WithFields(log.Fields{
			"block": entry.BlockNumber,
			"tx":    entry.TxHash.Hex(),
		}).WithError(err).Warn("dropping oracle request")
		log.Debugf("malformed log: %s", spew.Sdump(entry))

		return
	}

	l.received.Add(1)
	log.WithFields(log.Fields{
		"index":     req.Index,
		"airline":   req.Airline.Hex(),
		"flight":    req.Flight,
		"timestamp": req.Timestamp,
		"block":     entry.BlockNumber,
		"tx":        entry.TxHash.Hex(),
	}).Info("oracle request received")

	l.handler.Dispatch(ctx, req)
}

func (l *Listener) decode(entry ethtypes.Log) (types.StatusRequest, error) {
	if entry.Removed {
		return types.StatusRequest{}, errorsmod.Wrap(types.ErrMalformedEvent, "log removed by reorg")
	}
	if len(entry.Topics) == 0 || entry.Topics[0] != l.event.ID {
		return types.StatusRequest{}, errorsmod.Wrap(types.ErrMalformedEvent, "unexpected event topic")
	}
	if entry.Address != l.contract {
		return types.StatusRequest{}, errorsmod.Wrapf(types.ErrMalformedEvent, "emitted by %s", entry.Address.Hex())
	}

	fields := make(map[string]interface{})
	if err := l.abi.UnpackIntoMap(fields, l.event.Name, entry.Data); err != nil {
		return types.StatusRequest{}, errorsmod.Wrapf(types.ErrMalformedEvent, "unpack: %v", err)
	}

	var indexed abi.Arguments
	for _, arg := range l.event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(fields, indexed, entry.Topics[1:]); err != nil {
			return types.StatusRequest{}, errorsmod.Wrapf(types.ErrMalformedEvent, "topics: %v", err)
		}
	}

	return requestFromFields(fields)
}

func requestFromFields(fields map[string]interface{}) (types.StatusRequest, error) {
	for _, name := range []string{"index", "airline", "flight", "timestamp"} {
		if _, ok := fields[name]; !ok {
			return types.StatusRequest{}, errorsmod.Wrapf(types.ErrMalformedEvent, "missing field %s", name)
		}
	}

	index, err := cast.ToUint8E(fields["index"])
	if err != nil {
		return types.StatusRequest{}, errorsmod.Wrapf(types.ErrMalformedEvent, "index: %v", err)
	}

	airline, ok := fields["airline"].(common.Address)
	if !ok {
		return types.StatusRequest{}, errorsmod.Wrapf(types.ErrMalformedEvent, "airline is %T", fields["airline"])
	}

	flight, err := cast.ToStringE(fields["flight"])
	if err != nil {
		return types.StatusRequest{}, errorsmod.Wrapf(types.ErrMalformedEvent, "flight: %v", err)
	}

	timestamp, ok := fields["timestamp"].(*big.Int)
	if !ok || timestamp == nil {
		return types.StatusRequest{}, errorsmod.Wrapf(types.ErrMalformedEvent, "timestamp is %T", fields["timestamp"])
	}

	return types.StatusRequest{
		Index:     index,
		Airline:   airline,
		Flight:    flight,
		Timestamp: timestamp,
	}, nil
}

func (l *Listener) transportError(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil {
		return nil
	}

	log.Errorf("oracle request listener failed to %s: %v", stage, err)

	return errorsmod.Wrapf(types.ErrListenerTransport, "%s: %v", stage, err)
}
