package sorter

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// genDAG builds a random forest of Tx where every parent index is
// strictly less than its child's index, guaranteeing an acyclic input
// without rapid having to discover that constraint by trial and error.
func genDAG(t *rapid.T) []Tx {
	n := rapid.IntRange(1, 24).Draw(t, "n")
	txs := make([]Tx, n)
	for i := 0; i < n; i++ {
		var parents []string
		if i > 0 {
			numParents := rapid.IntRange(0, i).Draw(t, fmt.Sprintf("numParents%d", i))
			for p := 0; p < numParents; p++ {
				parentIdx := rapid.IntRange(0, i-1).Draw(t, fmt.Sprintf("parent%d_%d", i, p))
				parentID := fmt.Sprintf("tx%d", parentIdx)
				already := false
				for _, existing := range parents {
					if existing == parentID {
						already = true
						break
					}
				}
				if !already {
					parents = append(parents, parentID)
				}
			}
		}
		var hash [32]byte
		hash[0] = byte(rapid.IntRange(0, 255).Draw(t, fmt.Sprintf("hashHi%d", i)))
		hash[31] = byte(i)
		txs[i] = Tx{
			ID:           fmt.Sprintf("tx%d", i),
			PriorityFee:  uint64(rapid.IntRange(0, 1_000_000).Draw(t, fmt.Sprintf("fee%d", i))),
			Parents:      parents,
			IndexingHash: hash,
		}
	}
	return txs
}

func TestSortIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		txs := genDAG(t)

		first, err := Sort(txs)
		if err != nil {
			t.Fatalf("first sort: %v", err)
		}
		second, err := Sort(txs)
		if err != nil {
			t.Fatalf("second sort: %v", err)
		}

		if len(first) != len(second) {
			t.Fatalf("length differs across runs: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if first[i].ID != second[i].ID {
				t.Fatalf("order differs at index %d: %s vs %s", i, first[i].ID, second[i].ID)
			}
		}
	})
}

func TestSortRespectsParentOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		txs := genDAG(t)

		sorted, err := Sort(txs)
		if err != nil {
			t.Fatalf("sort: %v", err)
		}

		position := make(map[string]int, len(sorted))
		for i, tx := range sorted {
			position[tx.ID] = i
		}
		for _, tx := range txs {
			for _, parentID := range tx.Parents {
				if position[parentID] >= position[tx.ID] {
					t.Fatalf("parent %s did not precede child %s", parentID, tx.ID)
				}
			}
		}
	})
}

func TestSortIsAPermutationOfInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		txs := genDAG(t)

		sorted, err := Sort(txs)
		if err != nil {
			t.Fatalf("sort: %v", err)
		}

		seen := make(map[string]bool, len(txs))
		for _, tx := range sorted {
			if seen[tx.ID] {
				t.Fatalf("id %s appeared twice in output", tx.ID)
			}
			seen[tx.ID] = true
		}
		if len(seen) != len(txs) {
			t.Fatalf("output has %d distinct ids, input had %d", len(seen), len(txs))
		}
	})
}
