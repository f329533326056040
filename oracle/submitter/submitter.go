package submitter

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"

	"github.com/GPTx-global/flightoracle/oracle/ledger"
	"github.com/GPTx-global/flightoracle/oracle/log"
	"github.com/GPTx-global/flightoracle/oracle/monitor"
	"github.com/GPTx-global/flightoracle/oracle/types"
)

// Submitter answers an OracleRequest on behalf of one identity.
// Every attempt ends SUBMITTED or REJECTED and is never retried.
type Submitter struct {
	ledger  ledger.Ledger
	tracker *monitor.Tracker
}

// New creates a Submitter. tracker may be nil.
func New(l ledger.Ledger, tracker *monitor.Tracker) *Submitter {
	return &Submitter{
		ledger:  l,
		tracker: tracker,
	}
}

// Respond submits identity's fixed status for req and waits for the ledger's
// verdict. A panic in the ledger call is turned into a rejection.
func (s *Submitter) Respond(ctx context.Context, identity types.Identity, req types.StatusRequest) (attempt types.Attempt) {
	started := time.Now()
	attempt = types.Attempt{
		Identity: identity,
		Request:  req,
		State:    types.AttemptPending,
	}

	defer func() {
		if r := recover(); r != nil {
			attempt.State = types.AttemptRejected
			attempt.Err = s.responseError(identity, req, errorsmod.Wrapf(types.ErrResponseRejected, "panic: %v", r))
		}
		s.finish(attempt, started)
	}()

	if err := s.ledger.SubmitResponse(ctx, identity.Address, req, identity.Status); err != nil {
		attempt.State = types.AttemptRejected
		attempt.Err = s.responseError(identity, req, types.ClassifyLedgerError(err, types.ErrResponseRejected))

		return attempt
	}

	attempt.State = types.AttemptSubmitted

	return attempt
}

func (s *Submitter) responseError(identity types.Identity, req types.StatusRequest, err error) error {
	return &types.ResponseError{
		Address: identity.Address,
		Request: req,
		Err:     err,
	}
}

func (s *Submitter) finish(attempt types.Attempt, started time.Time) {
	if s.tracker != nil {
		s.tracker.Record(attempt, started)
	}

	entry := log.WithFields(log.Fields{
		"oracle":  attempt.Identity.Address.Hex(),
		"index":   attempt.Request.Index,
		"flight":  attempt.Request.Key(),
		"status":  attempt.Identity.Status,
		"state":   attempt.State,
		"elapsed": time.Since(started),
	})

	if attempt.State == types.AttemptSubmitted {
		entry.Info("oracle responded")
		return
	}

	entry.WithError(attempt.Err).Warn("oracle response rejected")
}
