package types

import (
	"errors"
	"fmt"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
)

const Codespace = "flightoracle"

var (
	ErrInsufficientFunds    = errorsmod.Register(Codespace, 2, "insufficient funds for registration fee")
	ErrRegistrationRejected = errorsmod.Register(Codespace, 3, "oracle registration rejected by ledger")
	ErrLedgerTransport      = errorsmod.Register(Codespace, 4, "ledger transport failure")
	ErrInvalidIndexes       = errorsmod.Register(Codespace, 5, "invalid oracle indexes")
	ErrMalformedEvent       = errorsmod.Register(Codespace, 6, "malformed oracle request event")
	ErrResponseRejected     = errorsmod.Register(Codespace, 7, "oracle response rejected by ledger")
	ErrIndexMismatch        = errorsmod.Register(Codespace, 8, "index does not match oracle request")
	ErrRequestClosed        = errorsmod.Register(Codespace, 9, "oracle request closed or unknown")
	ErrOracleNotRegistered  = errorsmod.Register(Codespace, 10, "oracle not registered")
	ErrListenerTransport    = errorsmod.Register(Codespace, 11, "request listener transport failure")
	ErrPoolSealed           = errorsmod.Register(Codespace, 12, "identity pool is sealed")
	ErrDuplicateIdentity    = errorsmod.Register(Codespace, 13, "duplicate oracle identity")
)

// RegistrationError reports the failed registration of one address.
type RegistrationError struct {
	Address common.Address
	Err     error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register oracle %s: %v", e.Address.Hex(), e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// ResponseError reports the failed response of one identity to one request.
type ResponseError struct {
	Address common.Address
	Request StatusRequest
	Err     error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("oracle %s response to index %d (%s): %v", e.Address.Hex(), e.Request.Index, e.Request.Key(), e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

var (
	revertReasons = []struct {
		substr string
		err    *errorsmod.Error
	}{
		{"index does not match oracle request", ErrIndexMismatch},
		{"flight or timestamp do not match oracle request", ErrRequestClosed},
		{"not registered as an oracle", ErrOracleNotRegistered},
		{"registration fee is required", ErrRegistrationRejected},
		{"insufficient funds", ErrInsufficientFunds},
	}

	transportSymptoms = []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"timeout",
		"context deadline exceeded",
		"no such host",
		"network is unreachable",
		"websocket: close",
		"use of closed network connection",
		"eof",
	}
)

// ClassifyLedgerError maps a raw ledger error onto the registered error that
// best describes it. Errors that already carry a registered error are
// returned unchanged; anything unrecognised is wrapped in fallback.
func ClassifyLedgerError(err error, fallback *errorsmod.Error) error {
	if err == nil {
		return nil
	}

	var registered *errorsmod.Error
	if errors.As(err, &registered) && registered.Codespace() == Codespace {
		return err
	}

	msg := strings.ToLower(err.Error())

	for _, r := range revertReasons {
		if strings.Contains(msg, r.substr) {
			return errorsmod.Wrap(r.err, err.Error())
		}
	}

	for _, symptom := range transportSymptoms {
		if strings.Contains(msg, symptom) {
			return errorsmod.Wrap(ErrLedgerTransport, err.Error())
		}
	}

	return errorsmod.Wrap(fallback, err.Error())
}
