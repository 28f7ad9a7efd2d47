// Package sorter produces the canonical per-block execution order of
// OPNet transactions: parents always precede children, ties among
// ready transactions break on effective fee (the transaction's own
// priority fee, or any descendant's if higher), and remaining ties
// break on the lexicographically smallest indexing hash.
package sorter

import (
	"bytes"
	"container/heap"

	"github.com/opnet-labs/opnetd/errkind"
)

// Tx is one transaction to be ordered. ID is opaque to the sorter and
// only used to report cycles; Parents lists the IDs this transaction
// depends on (spends their output, or references their PSBT as
// previous_psbt_id). IndexingHash is the tiebreak key,
// sha256(txhash ∥ block_hash), compared byte-for-byte.
type Tx struct {
	ID           string
	PriorityFee  uint64
	Parents      []string
	IndexingHash [32]byte
}

// Sort returns txs in canonical execution order. It is deterministic:
// the same input always produces the same output. A dependency cycle,
// which cannot occur from well-formed input, is reported as a
// Corruption error rather than silently dropping transactions.
func Sort(txs []Tx) ([]Tx, error) {
	byID := make(map[string]*node, len(txs))
	for i := range txs {
		byID[txs[i].ID] = &node{tx: &txs[i], effectiveFee: txs[i].PriorityFee}
	}

	for _, n := range byID {
		for _, parentID := range n.tx.Parents {
			parent, ok := byID[parentID]
			if !ok {
				continue // parent outside this block's tx set; already committed
			}
			parent.children = append(parent.children, n)
			n.indegree++
		}
	}

	if err := computeEffectiveFees(byID); err != nil {
		return nil, err
	}

	pq := &readyQueue{}
	heap.Init(pq)
	for _, n := range byID {
		if n.indegree == 0 {
			heap.Push(pq, n)
		}
	}

	out := make([]Tx, 0, len(txs))
	for pq.Len() > 0 {
		n := heap.Pop(pq).(*node)
		out = append(out, *n.tx)
		for _, child := range n.children {
			child.indegree--
			if child.indegree == 0 {
				heap.Push(pq, child)
			}
		}
	}

	if len(out) != len(txs) {
		return nil, errkind.New(errkind.KindExecution, "Corruption", true, nil)
	}
	return out, nil
}

type node struct {
	tx           *Tx
	children     []*node
	indegree     int
	effectiveFee uint64

	outstanding int // unresolved children, for the bottom-up effective-fee pass
	done        bool
}

// computeEffectiveFees performs the reverse topological traversal: a
// leaf (no children) takes its own fee; a node with children takes the
// max of its own fee and every child's already-resolved effective fee.
func computeEffectiveFees(byID map[string]*node) error {
	for _, n := range byID {
		n.outstanding = len(n.children)
	}

	queue := make([]*node, 0, len(byID))
	for _, n := range byID {
		if n.outstanding == 0 {
			queue = append(queue, n)
		}
	}

	parentsOf := make(map[*node][]*node, len(byID))
	for _, n := range byID {
		for _, child := range n.children {
			parentsOf[child] = append(parentsOf[child], n)
		}
	}

	resolved := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.done {
			continue
		}
		n.done = true
		resolved++

		for _, child := range n.children {
			if child.effectiveFee > n.effectiveFee {
				n.effectiveFee = child.effectiveFee
			}
		}
		for _, parent := range parentsOf[n] {
			parent.outstanding--
			if parent.outstanding == 0 {
				queue = append(queue, parent)
			}
		}
	}

	if resolved != len(byID) {
		return errkind.New(errkind.KindExecution, "Corruption", true, nil)
	}
	return nil
}

// readyQueue is a max-heap on (effectiveFee desc, indexingHash asc).
type readyQueue []*node

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	if q[i].effectiveFee != q[j].effectiveFee {
		return q[i].effectiveFee > q[j].effectiveFee
	}
	return bytes.Compare(q[i].tx.IndexingHash[:], q[j].tx.IndexingHash[:]) < 0
}

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) { *q = append(*q, x.(*node)) }

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
