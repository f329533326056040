// Package monitor keeps track of what every oracle identity has done since
// the daemon started and mirrors it into go-metrics.
package monitor

import (
	"sort"
	"sync/atomic"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum/common"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/spf13/cast"

	"github.com/GPTx-global/flightoracle/oracle/types"
)

const ServiceName = "flightoracle"

var (
	keyRegistered       = []string{"oracle", "registered"}
	keyRegistrationFail = []string{"oracle", "registration", "failed"}
	keyActive           = []string{"oracle", "active"}
	keyRequests         = []string{"request", "received"}
	keyResponses        = []string{"response"}
	keyResponseTime     = []string{"response", "latency"}
)

// Participation is a point-in-time view of one identity.
type Participation struct {
	Address     common.Address
	Indexes     types.Indexes
	Status      types.StatusCode
	Submitted   uint64
	Rejected    uint64
	LastRequest string
	LastError   string
	LastAt      time.Time
}

// Active reports whether the identity has had at least one response accepted.
func (p Participation) Active() bool {
	return p.Submitted > 0
}

type entry struct {
	seq int
	Participation
}

type Tracker struct {
	entries cmap.ConcurrentMap[string, entry]
	seq     atomic.Int64
	active  atomic.Int64
	failed  atomic.Int64
	metrics *metrics.Metrics
}

// NewMetrics builds a go-metrics instance backed by an in-memory sink that
// the HTTP server can render. Runtime metrics are off.
func NewMetrics() (*metrics.Metrics, *metrics.InmemSink, error) {
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)

	conf := metrics.DefaultConfig(ServiceName)
	conf.EnableHostname = false
	conf.EnableRuntimeMetrics = false

	m, err := metrics.New(conf, sink)
	if err != nil {
		return nil, nil, err
	}

	return m, sink, nil
}

// NewTracker returns an empty tracker. A nil m discards metrics.
func NewTracker(m *metrics.Metrics) *Tracker {
	if m == nil {
		conf := metrics.DefaultConfig(ServiceName)
		conf.EnableRuntimeMetrics = false
		m, _ = metrics.New(conf, &metrics.BlackholeSink{})
	}

	return &Tracker{
		entries: cmap.New[entry](),
		metrics: m,
	}
}

// Register adds a registered identity. Registering the same address again
// refreshes its indexes and status but keeps its counters.
func (t *Tracker) Register(identity types.Identity) {
	t.entries.Upsert(identity.Address.Hex(), entry{}, func(exist bool, old entry, _ entry) entry {
		if !exist {
			old.seq = int(t.seq.Add(1))
			old.Address = identity.Address
		}
		old.Indexes = identity.Indexes
		old.Status = identity.Status

		return old
	})

	t.metrics.SetGauge(keyRegistered, float32(t.entries.Count()))
}

// RegistrationFailed counts an address that could not be registered.
func (t *Tracker) RegistrationFailed(common.Address) {
	t.failed.Add(1)
	t.metrics.IncrCounter(keyRegistrationFail, 1)
}

// Requested counts one decoded OracleRequest.
func (t *Tracker) Requested(req types.StatusRequest) {
	t.metrics.IncrCounterWithLabels(keyRequests, 1, []metrics.Label{{Name: "index", Value: cast.ToString(req.Index)}})
}

// Record stores the outcome of a terminal attempt. started is when the
// attempt began and feeds the latency sample.
func (t *Tracker) Record(attempt types.Attempt, started time.Time) {
	if !attempt.State.Terminal() {
		return
	}

	becameActive := false
	t.entries.Upsert(attempt.Identity.Address.Hex(), entry{}, func(exist bool, old entry, _ entry) entry {
		if !exist {
			old.seq = int(t.seq.Add(1))
			old.Address = attempt.Identity.Address
			old.Indexes = attempt.Identity.Indexes
			old.Status = attempt.Identity.Status
		}

		old.LastRequest = attempt.Request.Key()
		old.LastAt = time.Now()

		switch attempt.State {
		case types.AttemptSubmitted:
			becameActive = old.Submitted == 0
			old.Submitted++
			old.LastError = ""
		case types.AttemptRejected:
			old.Rejected++
			if attempt.Err != nil {
				old.LastError = attempt.Err.Error()
			}
		}

		return old
	})

	if becameActive {
		t.metrics.SetGauge(keyActive, float32(t.active.Add(1)))
	}

	labels := []metrics.Label{{Name: "state", Value: attempt.State.String()}}
	t.metrics.IncrCounterWithLabels(keyResponses, 1, labels)
	t.metrics.MeasureSinceWithLabels(keyResponseTime, started, labels)
}

// Registered is the number of identities in the pool.
func (t *Tracker) Registered() int {
	return t.entries.Count()
}

// Active is the number of identities with at least one accepted response.
func (t *Tracker) Active() int {
	return int(t.active.Load())
}

func (t *Tracker) Failed() int {
	return int(t.failed.Load())
}

// Snapshot returns every identity in registration order.
func (t *Tracker) Snapshot() []Participation {
	items := t.entries.Items()

	entries := make([]entry, 0, len(items))
	for _, e := range items {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]Participation, len(entries))
	for i, e := range entries {
		out[i] = e.Participation
	}

	return out
}
