package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opnet-labs/opnetd/contract"
)

func testLimits() Limits {
	return Limits{
		MaxCallDepth:       8,
		MaxDeployDepth:     4,
		MaxEventLen:        1024,
		MaxReceiptLen:      4096,
		StorageCostPerByte: 1,
	}
}

func TestExecuteRejectsDepthExceeded(t *testing.T) {
	engine := NewEngine(nil, testLimits(), nil)
	frame := &Frame{
		ContractAddress: contract.Address{1},
		Overlay:         NewOverlay(),
		MaxGas:          1000,
		CallDepth:       9, // > MaxCallDepth
	}

	result, err := engine.Execute(frame, []byte{0x00, 0x61, 0x73, 0x6d})
	require.NoError(t, err)
	require.Equal(t, StatusReverted, result.Status)
	require.Equal(t, "DepthExceeded", result.RevertReason)
}

func TestExecuteRejectsDeployDepthExceeded(t *testing.T) {
	engine := NewEngine(nil, testLimits(), nil)
	frame := &Frame{
		ContractAddress: contract.Address{1},
		Overlay:         NewOverlay(),
		MaxGas:          1000,
		IsConstructor:   true,
		DeployDepth:     5, // > MaxDeployDepth
	}

	result, err := engine.Execute(frame, []byte{0x00, 0x61, 0x73, 0x6d})
	require.NoError(t, err)
	require.Equal(t, StatusReverted, result.Status)
	require.Equal(t, "DepthExceeded", result.RevertReason)
}

func TestExecuteRejectsMalformedModule(t *testing.T) {
	engine := NewEngine(nil, testLimits(), nil)
	frame := &Frame{
		ContractAddress: contract.Address{1},
		Overlay:         NewOverlay(),
		MaxGas:          1000,
	}

	result, err := engine.Execute(frame, []byte("not a wasm module"))
	require.NoError(t, err)
	require.Equal(t, StatusReverted, result.Status)
	require.Contains(t, result.RevertReason, "invalid bytecode")
}
