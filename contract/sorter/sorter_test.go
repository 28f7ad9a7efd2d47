package sorter

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func hashWithPrefix(t *testing.T, prefix string) [32]byte {
	t.Helper()
	raw, err := hex.DecodeString(prefix)
	require.NoError(t, err)
	var out [32]byte
	copy(out[:], raw)
	return out
}

func TestSortEqualFeeTiebreak(t *testing.T) {
	txs := []Tx{
		{ID: "0001", PriorityFee: 32, IndexingHash: hashWithPrefix(t, "b413")},
		{ID: "0002", PriorityFee: 32, IndexingHash: hashWithPrefix(t, "fcf0")},
		{ID: "0003", PriorityFee: 32, IndexingHash: hashWithPrefix(t, "583c")},
		{ID: "0004", PriorityFee: 32, IndexingHash: hashWithPrefix(t, "4f35")},
		{ID: "0005", PriorityFee: 32, Parents: []string{"0002", "0003", "0004"}, IndexingHash: hashWithPrefix(t, "9f1a")},
		{ID: "0006", PriorityFee: 100, Parents: []string{"0001", "0005"}, IndexingHash: hashWithPrefix(t, "40d8")},
	}

	sorted, err := Sort(txs)
	require.NoError(t, err)

	ids := make([]string, len(sorted))
	for i, tx := range sorted {
		ids[i] = tx.ID
	}
	require.Equal(t, []string{"0004", "0003", "0001", "0002", "0005", "0006"}, ids)
}

func TestSortParentBeforeChild(t *testing.T) {
	txs := []Tx{
		{ID: "a", PriorityFee: 5, IndexingHash: hashWithPrefix(t, "01")},
		{ID: "b", PriorityFee: 50, Parents: []string{"a"}, IndexingHash: hashWithPrefix(t, "02")},
		{ID: "c", PriorityFee: 1, Parents: []string{"b"}, IndexingHash: hashWithPrefix(t, "03")},
	}

	sorted, err := Sort(txs)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
}

func TestSortSingleTx(t *testing.T) {
	txs := []Tx{{ID: "only", PriorityFee: 1, IndexingHash: hashWithPrefix(t, "ff")}}
	sorted, err := Sort(txs)
	require.NoError(t, err)
	require.Len(t, sorted, 1)
	require.Equal(t, "only", sorted[0].ID)
}

func TestSortEmpty(t *testing.T) {
	sorted, err := Sort(nil)
	require.NoError(t, err)
	require.Empty(t, sorted)
}
