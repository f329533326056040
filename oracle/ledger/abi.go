package ledger

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Contract method and event names of FlightSuretyApp used by the oracle.
const (
	MethodRegistrationFee = "REGISTRATION_FEE"
	MethodRegisterOracle  = "registerOracle"
	MethodGetMyIndexes    = "getMyIndexes"
	MethodSubmitResponse  = "submitOracleResponse"

	EventOracleRequest = "OracleRequest"
)

// FlightSuretyABI is the subset of the FlightSuretyApp interface the oracle
// needs. A truffle artifact may replace it (see LoadArtifact).
const FlightSuretyABI = `[
	{"type":"function","name":"REGISTRATION_FEE","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"registerOracle","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"getMyIndexes","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8[3]"}]},
	{"type":"function","name":"submitOracleResponse","stateMutability":"nonpayable","inputs":[
		{"name":"index","type":"uint8"},
		{"name":"airline","type":"address"},
		{"name":"flight","type":"string"},
		{"name":"timestamp","type":"uint256"},
		{"name":"statusCode","type":"uint8"}
	],"outputs":[]},
	{"type":"function","name":"fetchFlightStatus","stateMutability":"nonpayable","inputs":[
		{"name":"airline","type":"address"},
		{"name":"flight","type":"string"},
		{"name":"timestamp","type":"uint256"}
	],"outputs":[]},
	{"type":"event","name":"OracleRequest","anonymous":false,"inputs":[
		{"name":"index","type":"uint8","indexed":false},
		{"name":"airline","type":"address","indexed":false},
		{"name":"flight","type":"string","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"OracleReport","anonymous":false,"inputs":[
		{"name":"airline","type":"address","indexed":false},
		{"name":"flight","type":"string","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false},
		{"name":"status","type":"uint8","indexed":false}
	]},
	{"type":"event","name":"FlightStatusInfo","anonymous":false,"inputs":[
		{"name":"airline","type":"address","indexed":false},
		{"name":"flight","type":"string","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false},
		{"name":"status","type":"uint8","indexed":false}
	]}
]`

func DefaultABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(FlightSuretyABI))
	if err != nil {
		panic(fmt.Errorf("embedded FlightSurety ABI: %w", err))
	}

	return parsed
}

// Artifact is a truffle build artifact (build/contracts/FlightSuretyApp.json).
type Artifact struct {
	ABI abi.ABI
	raw []byte
}

func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read artifact")
	}

	return ParseArtifact(raw)
}

// ParseArtifact accepts either a full truffle artifact or a bare ABI array.
func ParseArtifact(raw []byte) (*Artifact, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("artifact is not valid JSON")
	}

	abiJSON := gjson.GetBytes(raw, "abi")
	if !abiJSON.Exists() {
		abiJSON = gjson.ParseBytes(raw)
	}
	if !abiJSON.IsArray() {
		return nil, errors.New("artifact has no abi array")
	}

	parsed, err := abi.JSON(strings.NewReader(abiJSON.Raw))
	if err != nil {
		return nil, errors.Wrap(err, "parse artifact abi")
	}

	for _, method := range []string{MethodRegistrationFee, MethodRegisterOracle, MethodGetMyIndexes, MethodSubmitResponse} {
		if _, ok := parsed.Methods[method]; !ok {
			return nil, errors.Errorf("artifact abi has no %s method", method)
		}
	}
	if _, ok := parsed.Events[EventOracleRequest]; !ok {
		return nil, errors.Errorf("artifact abi has no %s event", EventOracleRequest)
	}

	return &Artifact{ABI: parsed, raw: raw}, nil
}

// Address returns the deployed address recorded for networkID. When the
// artifact records exactly one network that address is returned for any id.
func (a *Artifact) Address(networkID uint64) (common.Address, bool) {
	if a == nil || a.raw == nil {
		return common.Address{}, false
	}

	exact := gjson.GetBytes(a.raw, fmt.Sprintf("networks.%d.address", networkID))
	if exact.Exists() && common.IsHexAddress(exact.String()) {
		return common.HexToAddress(exact.String()), true
	}

	var (
		found common.Address
		count int
	)
	gjson.GetBytes(a.raw, "networks").ForEach(func(_, network gjson.Result) bool {
		if addr := network.Get("address"); common.IsHexAddress(addr.String()) {
			found = common.HexToAddress(addr.String())
			count++
		}
		return true
	})

	return found, count == 1
}
