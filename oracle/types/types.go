package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// StatusCode is the flight status an oracle reports, as defined by the
// FlightSurety contract.
type StatusCode uint8

const (
	StatusUnknown       StatusCode = 0
	StatusOnTime        StatusCode = 10
	StatusLateAirline   StatusCode = 20
	StatusLateWeather   StatusCode = 30
	StatusLateTechnical StatusCode = 40
	StatusLateOther     StatusCode = 50
)

// StatusCodes lists every valid status in contract order.
var StatusCodes = []StatusCode{
	StatusUnknown,
	StatusOnTime,
	StatusLateAirline,
	StatusLateWeather,
	StatusLateTechnical,
	StatusLateOther,
}

func (s StatusCode) Valid() bool {
	switch s {
	case StatusUnknown, StatusOnTime, StatusLateAirline, StatusLateWeather, StatusLateTechnical, StatusLateOther:
		return true
	}

	return false
}

func (s StatusCode) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusOnTime:
		return "ON_TIME"
	case StatusLateAirline:
		return "LATE_AIRLINE"
	case StatusLateWeather:
		return "LATE_WEATHER"
	case StatusLateTechnical:
		return "LATE_TECHNICAL"
	case StatusLateOther:
		return "LATE_OTHER"
	}

	return fmt.Sprintf("STATUS(%d)", uint8(s))
}

// IndexCount is the number of routing indexes the contract assigns per oracle.
const IndexCount = 3

// Indexes are the routing indexes assigned to an oracle at registration.
type Indexes [IndexCount]uint8

func (idx Indexes) Contains(index uint8) bool {
	for _, i := range idx {
		if i == index {
			return true
		}
	}

	return false
}

// Within reports whether every index is below max.
func (idx Indexes) Within(max int) bool {
	for _, i := range idx {
		if int(i) >= max {
			return false
		}
	}

	return true
}

// Identity is one simulated oracle. It is a value type: the pool hands out
// copies, never references into its own storage.
type Identity struct {
	Address common.Address
	Indexes Indexes
	Status  StatusCode
}

func (id Identity) String() string {
	return fmt.Sprintf("%s%v:%s", id.Address.Hex(), id.Indexes, id.Status)
}

// StatusRequest is one OracleRequest event. Airline, Flight and Timestamp are
// echoed back unchanged in every response.
type StatusRequest struct {
	Index     uint8
	Airline   common.Address
	Flight    string
	Timestamp *big.Int
}

// Key identifies the flight the request is about. It is only used for logs.
func (r StatusRequest) Key() string {
	ts := "<nil>"
	if r.Timestamp != nil {
		ts = r.Timestamp.String()
	}

	return fmt.Sprintf("%s/%s/%s", r.Airline.Hex(), r.Flight, ts)
}

type AttemptState byte

const (
	AttemptPending AttemptState = iota
	AttemptSubmitted
	AttemptRejected
)

func (s AttemptState) Terminal() bool {
	return s == AttemptSubmitted || s == AttemptRejected
}

func (s AttemptState) String() string {
	switch s {
	case AttemptPending:
		return "PENDING"
	case AttemptSubmitted:
		return "SUBMITTED"
	case AttemptRejected:
		return "REJECTED"
	}

	return "INVALID"
}

// Attempt is the outcome of one (identity, request) response.
type Attempt struct {
	Identity Identity
	Request  StatusRequest
	State    AttemptState
	Err      error
}
