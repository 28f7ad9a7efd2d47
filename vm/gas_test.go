package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGasMeterConsumeWithinLimit(t *testing.T) {
	m := NewGasMeter(100, 0)
	require.NoError(t, m.Consume(60))
	require.Equal(t, uint64(60), m.Used())
	require.Equal(t, uint64(40), m.Remaining())
}

func TestGasMeterOutOfGasLeavesUsedUnchanged(t *testing.T) {
	m := NewGasMeter(100, 90)
	err := m.Consume(20)
	require.Error(t, err)
	require.Equal(t, uint64(90), m.Used(), "a failed consume must not partially charge")
}

func TestGasMeterStartsFromPriorUsage(t *testing.T) {
	m := NewGasMeter(1000, 400)
	require.Equal(t, uint64(600), m.Remaining())
}
