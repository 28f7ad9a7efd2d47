package epoch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEpochBoundsAlignToBlocksPerEpoch(t *testing.T) {
	m := &Manager{blocksPerEpoch: 1008}

	epochNumber, start, end := m.EpochBounds(0)
	require.Equal(t, uint64(0), epochNumber)
	require.Equal(t, uint64(0), start)
	require.Equal(t, uint64(1007), end)

	epochNumber, start, end = m.EpochBounds(2016)
	require.Equal(t, uint64(2), epochNumber)
	require.Equal(t, uint64(2016), start)
	require.Equal(t, uint64(3023), end)
}

func TestMergeWitnessesDedupesByHeightAndSortsAscending(t *testing.T) {
	responses := []*AttestationResponse{
		{Success: true, Witnesses: []BlockWitness{{Height: 5}, {Height: 2}}},
		{Success: true, Witnesses: []BlockWitness{{Height: 2}, {Height: 3}}},
		{Success: false, Witnesses: []BlockWitness{{Height: 99}}},
	}

	merged := mergeWitnesses(responses)
	require.Len(t, merged, 3)
	require.Equal(t, uint64(2), merged[0].Height)
	require.Equal(t, uint64(3), merged[1].Height)
	require.Equal(t, uint64(5), merged[2].Height)
}

func TestValidateQuorumRequiresDistinctAttestors(t *testing.T) {
	client := NewAttestorClient(nil, 3)

	err := client.ValidateQuorum([]*AttestationResponse{
		{AttestorIndex: 0, Success: true},
		{AttestorIndex: 0, Success: true},
	})
	require.Error(t, err)

	err = client.ValidateQuorum([]*AttestationResponse{
		{AttestorIndex: 0, Success: true},
		{AttestorIndex: 1, Success: true},
		{AttestorIndex: 2, Success: true},
	})
	require.NoError(t, err)
}
