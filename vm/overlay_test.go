package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opnet-labs/opnetd/contract"
)

func TestOverlaySetThenGet(t *testing.T) {
	o := NewOverlay()
	key := StorageKey{Contract: contract.Address{1}, Pointer: contract.Pointer{2}}
	var value contract.Value
	copy(value[:], []byte("hello"))

	isNew := o.Set(key, value)
	require.True(t, isNew)

	got, ok := o.Get(key)
	require.True(t, ok)
	require.Equal(t, value, got)

	isNew = o.Set(key, value)
	require.False(t, isNew, "overwriting an existing key is not a new entry")
}

func TestOverlayCheckpointRollback(t *testing.T) {
	o := NewOverlay()
	p1 := StorageKey{Contract: contract.Address{1}, Pointer: contract.Pointer{1}}
	var v1, v2 contract.Value
	v1[0] = 1
	v2[0] = 2

	o.Set(p1, v1)
	checkpoint := o.Checkpoint()

	p2 := StorageKey{Contract: contract.Address{1}, Pointer: contract.Pointer{2}}
	o.Set(p2, v2)

	_, hasP2 := o.Get(p2)
	require.True(t, hasP2)

	o.Rollback(checkpoint)

	_, hasP2After := o.Get(p2)
	require.False(t, hasP2After, "rollback must discard writes made after the checkpoint")

	gotP1, hasP1 := o.Get(p1)
	require.True(t, hasP1, "rollback must preserve writes made before the checkpoint")
	require.Equal(t, v1, gotP1)
}

func TestReadFallsThroughOverlayPreloadSnapshot(t *testing.T) {
	key := StorageKey{Contract: contract.Address{9}, Pointer: contract.Pointer{9}}

	o := NewOverlay()
	_, found, err := Read(o, nil, nil, 10, key)
	require.NoError(t, err)
	require.False(t, found)

	preload := map[StorageKey]contract.Value{key: {7}}
	v, found, err := Read(o, preload, nil, 10, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, contract.Value{7}, v)

	var overlayValue contract.Value
	overlayValue[0] = 5
	o.Set(key, overlayValue)
	v, found, err = Read(o, preload, nil, 10, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, overlayValue, v, "overlay must take precedence over preload")
}
