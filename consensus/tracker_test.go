package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opnet-labs/opnetd/errkind"
)

func TestActiveAtPicksMaxEnabledBelowHeight(t *testing.T) {
	tr, err := NewTracker([]Params{
		Genesis,
		{Name: "v2", EnabledAtBlock: 100},
	})
	require.NoError(t, err)

	p, err := tr.ActiveAt(50)
	require.NoError(t, err)
	require.Equal(t, "genesis", p.Name)

	p, err = tr.ActiveAt(100)
	require.NoError(t, err)
	require.Equal(t, "v2", p.Name)

	p, err = tr.ActiveAt(1_000_000)
	require.NoError(t, err)
	require.Equal(t, "v2", p.Name)
}

func TestCheckTransitionLockdownOnNotReady(t *testing.T) {
	tr, err := NewTracker([]Params{
		{
			Name:                    "v1",
			EnabledAtBlock:          0,
			NextConsensus:           "v2",
			NextConsensusBlock:      100,
			IsReadyForNextConsensus: false,
		},
	})
	require.NoError(t, err)

	require.NoError(t, tr.CheckTransition(99))

	err = tr.CheckTransition(100)
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errkind.KindConsensus, kind)
	require.True(t, errkind.IsFatal(err))

	locked, lockErr := tr.InLockdown()
	require.True(t, locked)
	require.Error(t, lockErr)

	_, err = tr.ActiveAt(50)
	require.Error(t, err)
}

func TestNewTrackerRequiresGenesisEntry(t *testing.T) {
	_, err := NewTracker([]Params{{Name: "v1", EnabledAtBlock: 5}})
	require.Error(t, err)
}
