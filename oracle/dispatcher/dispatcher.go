package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/GPTx-global/flightoracle/oracle/log"
	"github.com/GPTx-global/flightoracle/oracle/monitor"
	"github.com/GPTx-global/flightoracle/oracle/pool"
	"github.com/GPTx-global/flightoracle/oracle/types"
)

// Responder answers one request for one identity. *submitter.Submitter
// satisfies it.
type Responder interface {
	Respond(ctx context.Context, identity types.Identity, req types.StatusRequest) types.Attempt
}

// Dispatcher fans every request out to the identities holding its index.
type Dispatcher struct {
	ctx       context.Context
	pool      *pool.Pool
	responder Responder
	tracker   *monitor.Tracker

	wg       sync.WaitGroup
	inflight atomic.Int64
}

// New returns a Dispatcher whose attempts run under ctx, independent of the
// context each request is dispatched with. tracker may be nil.
func New(ctx context.Context, p *pool.Pool, responder Responder, tracker *monitor.Tracker) *Dispatcher {
	return &Dispatcher{
		ctx:       ctx,
		pool:      p,
		responder: responder,
		tracker:   tracker,
	}
}

// Dispatch starts one responder goroutine per matching identity and returns
// the number started without waiting for any of them. Nothing is started
// once ctx is done.
func (d *Dispatcher) Dispatch(ctx context.Context, req types.StatusRequest) int {
	if ctx.Err() != nil {
		return 0
	}

	if d.tracker != nil {
		d.tracker.Requested(req)
	}

	matches := d.pool.Matching(req.Index)
	if len(matches) == 0 {
		log.Debugf("no oracle holds index %d for %s", req.Index, req.Key())
		return 0
	}

	log.WithFields(log.Fields{
		"index":      req.Index,
		"flight":     req.Key(),
		"responders": len(matches),
	}).Info("dispatching oracle request")

	for _, identity := range matches {
		d.wg.Add(1)
		d.inflight.Add(1)

		go func(identity types.Identity) {
			defer d.wg.Done()
			defer d.inflight.Add(-1)

			d.responder.Respond(d.ctx, identity, req)
		}(identity)
	}

	return len(matches)
}

// InFlight is the number of attempts not yet finished.
func (d *Dispatcher) InFlight() int {
	return int(d.inflight.Load())
}

// Wait blocks until every started attempt has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
