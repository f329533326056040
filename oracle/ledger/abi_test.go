package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultABI(t *testing.T) {
	parsed := DefaultABI()

	for _, method := range []string{MethodRegistrationFee, MethodRegisterOracle, MethodGetMyIndexes, MethodSubmitResponse} {
		assert.Contains(t, parsed.Methods, method)
	}

	event, ok := parsed.Events[EventOracleRequest]
	require.True(t, ok)
	assert.Len(t, event.Inputs, 4)
	assert.Equal(t, "index", event.Inputs[0].Name)
}

func TestParseArtifact(t *testing.T) {
	truffle := `{"contractName":"FlightSuretyApp","abi":` + FlightSuretyABI + `,
		"networks":{"5777":{"address":"0x00000000000000000000000000000000000000aa"}}}`

	artifact, err := ParseArtifact([]byte(truffle))
	require.NoError(t, err)

	addr, ok := artifact.Address(5777)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xaa"), addr)

	// a single recorded network answers for any id
	addr, ok = artifact.Address(1337)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xaa"), addr)
}

func TestParseArtifact_AmbiguousNetworks(t *testing.T) {
	truffle := `{"abi":` + FlightSuretyABI + `,"networks":{
		"1":{"address":"0x00000000000000000000000000000000000000aa"},
		"2":{"address":"0x00000000000000000000000000000000000000bb"}}}`

	artifact, err := ParseArtifact([]byte(truffle))
	require.NoError(t, err)

	_, ok := artifact.Address(3)
	assert.False(t, ok)

	addr, ok := artifact.Address(2)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xbb"), addr)
}

func TestParseArtifact_BareABI(t *testing.T) {
	artifact, err := ParseArtifact([]byte(FlightSuretyABI))
	require.NoError(t, err)

	_, ok := artifact.Address(1)
	assert.False(t, ok)
}

func TestParseArtifact_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		errorMsg string
	}{
		{"not json", `{abi:`, "not valid JSON"},
		{"abi not array", `{"abi":{}}`, "no abi array"},
		{"missing method", `{"abi":[{"type":"event","name":"OracleRequest","inputs":[]}]}`, "REGISTRATION_FEE"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseArtifact([]byte(tc.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorMsg)
		})
	}
}

func TestLoadArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "FlightSuretyApp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"abi":`+FlightSuretyABI+`}`), 0644))

	artifact, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Contains(t, artifact.ABI.Events, EventOracleRequest)

	_, err = LoadArtifact(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
