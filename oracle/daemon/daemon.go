package daemon

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync/atomic"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/GPTx-global/flightoracle/oracle/config"
	"github.com/GPTx-global/flightoracle/oracle/dispatcher"
	"github.com/GPTx-global/flightoracle/oracle/health"
	"github.com/GPTx-global/flightoracle/oracle/ledger"
	"github.com/GPTx-global/flightoracle/oracle/log"
	"github.com/GPTx-global/flightoracle/oracle/monitor"
	"github.com/GPTx-global/flightoracle/oracle/pool"
	"github.com/GPTx-global/flightoracle/oracle/registrar"
	"github.com/GPTx-global/flightoracle/oracle/server"
	"github.com/GPTx-global/flightoracle/oracle/submitter"
	"github.com/GPTx-global/flightoracle/oracle/subscribe"
)

const healthInterval = 15 * time.Second

// Options are the already-connected pieces a Daemon is assembled from.
type Options struct {
	Ledger    ledger.Ledger
	Source    subscribe.LogSource
	ABI       abi.ABI
	Contract  common.Address
	Addresses []common.Address
	Status    registrar.StatusSource
	MaxIndex  int
	// Listen empty disables the HTTP server.
	Listen string
	Checks []health.Check
}

type Daemon struct {
	opts   Options
	client *ethclient.Client

	tracker    *monitor.Tracker
	sink       *metrics.InmemSink
	checker    *health.Checker
	registrar  *registrar.Registrar
	submitter  *submitter.Submitter
	dispatcher *dispatcher.Dispatcher
	listener   *subscribe.Listener
	server     *server.Server
	pool       *pool.Pool

	listening atomic.Bool
	ctx       context.Context
}

// New connects to the configured ledger and assembles the daemon from the
// loaded config.
func New(ctx context.Context) (*Daemon, error) {
	contractABI := ledger.DefaultABI()
	var artifact *ledger.Artifact
	if path := config.ArtifactPath(); path != "" {
		var err error
		artifact, err = ledger.LoadArtifact(path)
		if err != nil {
			return nil, err
		}
		contractABI = artifact.ABI
	}

	client, err := ledger.Dial(ctx, config.ChainEndpoint())
	if err != nil {
		return nil, err
	}

	chainID := new(big.Int).SetUint64(config.ChainID())
	if chainID.Sign() == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to get chain id: %w", err)
		}
	}

	contractAddr, err := resolveContract(ctx, client, artifact)
	if err != nil {
		client.Close()
		return nil, err
	}

	wallet, err := ledger.NewWalletFromMnemonic(config.Mnemonic(), config.FirstAccount(), config.OracleCount())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to derive oracle accounts: %w", err)
	}

	contract := ledger.NewContract(client, contractAddr, contractABI, wallet, ledger.Options{
		ChainID:          chainID,
		RegisterGasLimit: config.RegisterGasLimit(),
		ResponseGasLimit: config.ResponseGasLimit(),
	})

	seed := config.Seed()
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	d, err := NewWithOptions(ctx, Options{
		Ledger:    contract,
		Source:    client,
		ABI:       contractABI,
		Contract:  contractAddr,
		Addresses: wallet.Addresses(),
		Status:    rand.New(rand.NewSource(seed)),
		MaxIndex:  config.MaxIndex(),
		Listen:    config.ServerListen(),
		Checks: []health.Check{
			health.NewFuncCheck("ledger", func(ctx context.Context) error {
				_, err := client.BlockNumber(ctx)
				return err
			}),
		},
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	d.client = client

	log.Infof("connected to %s (chain %s), contract %s, %d oracle accounts", config.ChainEndpoint(), chainID, contractAddr.Hex(), len(wallet.Addresses()))

	return d, nil
}

func resolveContract(ctx context.Context, client *ethclient.Client, artifact *ledger.Artifact) (common.Address, error) {
	if addr := config.ContractAddress(); addr != "" {
		return common.HexToAddress(addr), nil
	}

	if artifact == nil {
		return common.Address{}, fmt.Errorf("no contract address configured")
	}

	networkID, err := client.NetworkID(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get network id: %w", err)
	}

	addr, ok := artifact.Address(networkID.Uint64())
	if !ok {
		return common.Address{}, fmt.Errorf("artifact has no deployment for network %s", networkID)
	}

	return addr, nil
}

// NewWithOptions assembles a daemon from connected pieces.
func NewWithOptions(ctx context.Context, opts Options) (*Daemon, error) {
	if opts.Ledger == nil || opts.Source == nil {
		return nil, fmt.Errorf("ledger and log source are required")
	}
	if opts.Status == nil {
		opts.Status = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.MaxIndex == 0 {
		opts.MaxIndex = 10
	}
	if len(opts.ABI.Events) == 0 {
		opts.ABI = ledger.DefaultABI()
	}

	m, sink, err := monitor.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	d := &Daemon{
		opts:    opts,
		ctx:     ctx,
		tracker: monitor.NewTracker(m),
		sink:    sink,
		checker: health.NewChecker(healthInterval),
	}

	d.registrar = registrar.New(opts.Ledger, opts.Status, opts.MaxIndex, d.tracker)
	d.submitter = submitter.New(opts.Ledger, d.tracker)
	d.server = server.New(d.tracker, d.checker, d.sink, len(opts.Addresses))

	for _, check := range opts.Checks {
		d.checker.AddCheck(check)
	}
	d.checker.AddCheck(health.NewFuncCheck("listener", func(context.Context) error {
		if !d.listening.Load() {
			return fmt.Errorf("oracle request listener is not running")
		}
		return nil
	}))

	return d, nil
}

// Start registers every oracle account and prepares the listener. A partial
// registration failure is logged and the daemon continues with the
// identities that registered.
func (d *Daemon) Start() error {
	p, err := d.registrar.RegisterAll(d.ctx, d.opts.Addresses)
	if err != nil {
		log.Errorf("some oracles failed to register: %v", err)
	}
	if d.ctx.Err() != nil {
		return d.ctx.Err()
	}
	d.pool = p

	d.dispatcher = dispatcher.New(d.ctx, d.pool, d.submitter, d.tracker)

	d.listener, err = subscribe.NewListener(d.opts.Source, d.opts.Contract, d.opts.ABI, d.dispatcher)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	return nil
}

// Run serves requests until ctx ends or the listener fails, returning the
// listener's error.
func (d *Daemon) Run() error {
	if d.listener == nil {
		return fmt.Errorf("daemon not started")
	}

	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()

	go d.checker.Start(runCtx)

	if d.opts.Listen != "" {
		go func() {
			if err := d.server.Serve(runCtx, d.opts.Listen); err != nil {
				log.Errorf("http server stopped: %v", err)
			}
		}()
	}

	d.listening.Store(true)
	defer d.listening.Store(false)

	return d.listener.Run(runCtx)
}

// Stop waits for in-flight responses and closes the ledger connection.
func (d *Daemon) Stop() {
	if d.dispatcher != nil {
		d.dispatcher.Wait()
	}
	if d.client != nil {
		d.client.Close()
	}
	log.Infof("daemon stopped")
}

func (d *Daemon) Pool() *pool.Pool {
	return d.pool
}

func (d *Daemon) Tracker() *monitor.Tracker {
	return d.tracker
}

func (d *Daemon) Dispatcher() *dispatcher.Dispatcher {
	return d.dispatcher
}

func (d *Daemon) Listener() *subscribe.Listener {
	return d.listener
}

func (d *Daemon) Server() *server.Server {
	return d.server
}
