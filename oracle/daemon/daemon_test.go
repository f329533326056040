package daemon_test

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/GPTx-global/flightoracle/oracle/daemon"
	"github.com/GPTx-global/flightoracle/oracle/testutil"
	"github.com/GPTx-global/flightoracle/oracle/types"
)

var _ = Describe("Daemon", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		ledger   *testutil.FakeLedger
		source   *testutil.FakeLogSource
		contract common.Address
		addrs    []common.Address
		holders  map[common.Address]bool
		request  types.StatusRequest
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		ledger = testutil.NewFakeLedger()
		ledger.EnforceIndexes = true
		source = testutil.NewFakeLogSource()
		contract = common.HexToAddress("0x00000000000000000000000000000000000000cc")
		request = testutil.Request(7, "0xA1", "ND1309", 1700000000)

		// exactly three of the 21 accounts hold index 7
		special := map[int]types.Indexes{2: {7, 1, 2}, 9: {0, 7, 9}, 15: {8, 8, 7}}
		addrs = make([]common.Address, 21)
		holders = make(map[common.Address]bool)
		for i := range addrs {
			addrs[i] = common.BigToAddress(big.NewInt(int64(0x100 + i)))
			indexes, ok := special[i]
			if ok {
				holders[addrs[i]] = true
			} else {
				indexes = types.Indexes{uint8(i % 7), uint8((i + 1) % 7), uint8((i + 2) % 7)}
			}
			ledger.Indexes[addrs[i]] = indexes
		}
	})

	AfterEach(func() {
		cancel()
	})

	newDaemon := func() *daemon.Daemon {
		d, err := daemon.NewWithOptions(ctx, daemon.Options{
			Ledger:    ledger,
			Source:    source,
			Contract:  contract,
			Addresses: addrs,
			Status:    rand.New(rand.NewSource(7)),
			MaxIndex:  10,
		})
		Expect(err).NotTo(HaveOccurred())

		return d
	}

	run := func(d *daemon.Daemon) <-chan error {
		result := make(chan error, 1)
		go func() {
			result <- d.Run()
		}()
		Eventually(source.Subscribed()).Should(BeClosed())

		return result
	}

	It("refuses to run before registration", func() {
		Expect(newDaemon().Run()).To(MatchError(ContainSubstring("not started")))
	})

	It("answers a request with exactly the identities holding its index", func() {
		d := newDaemon()
		Expect(d.Start()).To(Succeed())
		Expect(d.Pool().Size()).To(Equal(21))
		Expect(d.Pool().Matching(7)).To(HaveLen(3))

		statuses := make(map[common.Address]types.StatusCode)
		for _, identity := range d.Pool().All() {
			Expect(identity.Indexes.Within(10)).To(BeTrue())
			statuses[identity.Address] = identity.Status
		}

		result := run(d)
		source.Emit(testutil.RequestLog(contract, 1, request))

		Eventually(func() []testutil.SubmitCall { return ledger.Submits() }).Should(HaveLen(3))
		d.Dispatcher().Wait()
		Consistently(func() []testutil.SubmitCall { return ledger.Submits() }, 100*time.Millisecond).Should(HaveLen(3))

		for _, call := range ledger.Submits() {
			Expect(holders).To(HaveKey(call.From))
			Expect(call.Status).To(Equal(statuses[call.From]))
			Expect(call.Request).To(Equal(request))
		}
		Expect(d.Tracker().Active()).To(Equal(3))

		cancel()
		Eventually(result).Should(Receive(BeNil()))
		d.Stop()
	})

	It("replays requests mined before it attached", func() {
		source.AddHistory(testutil.RequestLog(contract, 3, request))

		d := newDaemon()
		Expect(d.Start()).To(Succeed())
		result := run(d)

		Eventually(func() []testutil.SubmitCall { return ledger.Submits() }).Should(HaveLen(3))

		cancel()
		Eventually(result).Should(Receive(BeNil()))
		d.Stop()
	})

	It("ignores requests nobody can answer", func() {
		d := newDaemon()
		Expect(d.Start()).To(Succeed())
		result := run(d)

		unanswerable := request
		unanswerable.Index = 200
		source.Emit(testutil.RequestLog(contract, 1, unanswerable))

		Eventually(d.Listener().Received).Should(Equal(1))
		d.Dispatcher().Wait()
		Expect(ledger.Submits()).To(BeEmpty())

		cancel()
		Eventually(result).Should(Receive(BeNil()))
	})

	It("keeps serving with the identities that registered", func() {
		ledger.RegisterErrors[addrs[2]] = errorsmod.Wrap(types.ErrRegistrationRejected, "reverted")

		d := newDaemon()
		Expect(d.Start()).To(Succeed())
		Expect(d.Pool().Size()).To(Equal(20))
		Expect(d.Tracker().Failed()).To(Equal(1))

		result := run(d)
		source.Emit(testutil.RequestLog(contract, 1, request))

		Eventually(func() []testutil.SubmitCall { return ledger.Submits() }).Should(HaveLen(2))
		for _, call := range ledger.Submits() {
			Expect(call.From).NotTo(Equal(addrs[2]))
		}

		cancel()
		Eventually(result).Should(Receive(BeNil()))
	})

	It("counts a rejected response without disturbing the others", func() {
		ledger.SubmitErrors[addrs[9]] = errors.New("execution reverted: Flight or timestamp do not match oracle request")

		d := newDaemon()
		Expect(d.Start()).To(Succeed())
		result := run(d)

		source.Emit(testutil.RequestLog(contract, 1, request))
		Eventually(func() []testutil.SubmitCall { return ledger.Submits() }).Should(HaveLen(3))
		d.Dispatcher().Wait()

		Expect(d.Tracker().Active()).To(Equal(2))

		cancel()
		Eventually(result).Should(Receive(BeNil()))
	})

	It("stops with a transport error when the subscription fails", func() {
		d := newDaemon()
		Expect(d.Start()).To(Succeed())
		result := run(d)

		source.Fail(errors.New("websocket: close 1006 (abnormal closure)"))

		var err error
		Eventually(result).Should(Receive(&err))
		Expect(errors.Is(err, types.ErrListenerTransport)).To(BeTrue())
	})

	It("drops a malformed request and still answers the next one", func() {
		d := newDaemon()
		Expect(d.Start()).To(Succeed())
		result := run(d)

		broken := testutil.RequestLog(contract, 1, request)
		broken.Data = broken.Data[:10]
		source.Emit(broken)
		source.Emit(testutil.RequestLog(contract, 2, request))

		Eventually(func() []testutil.SubmitCall { return ledger.Submits() }).Should(HaveLen(3))
		Expect(d.Listener().Dropped()).To(Equal(1))

		cancel()
		Eventually(result).Should(Receive(BeNil()))
	})
})
