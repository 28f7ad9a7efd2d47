package mempool

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/opnet-labs/opnetd/contract"
	"github.com/opnet-labs/opnetd/contract/parser"
)

type stubUTXOs struct {
	spent map[[36]byte]bool
}

func newStubUTXOs() *stubUTXOs { return &stubUTXOs{spent: make(map[[36]byte]bool)} }

func (s *stubUTXOs) IsSpent(txid [32]byte, vout uint32) (bool, error) {
	return s.spent[outpointKey(txid, vout)], nil
}

type stubParser struct {
	feeSat uint64
	kind   contract.Kind
}

func (s stubParser) ParseTransaction(tx *wire.MsgTx, maxPriorityFee uint64) (*parser.Envelope, error) {
	return &parser.Envelope{Kind: s.kind, PriorityFeeSat: s.feeSat}, nil
}

func rawTxBytes(t *testing.T, in wire.OutPoint, fee int64) []byte {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&in, nil, nil))
	tx.AddTxOut(wire.NewTxOut(fee, []byte{0x51}))
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return buf.Bytes()
}

func newTestPool(feeSat uint64) (*Pool, *stubUTXOs) {
	utxos := newStubUTXOs()
	cfg := Config{
		Policy:          DefaultPolicy,
		UTXOs:           utxos,
		Parser:          stubParser{feeSat: feeSat, kind: contract.KindGeneric},
		MinFeeRateVByte: 1,
		MaxPriorityFee:  1_000_000,
	}
	return New(cfg), utxos
}

func TestAdmitAcceptsWellFormedTransaction(t *testing.T) {
	pool, _ := newTestPool(100_000)
	raw := rawTxBytes(t, wire.OutPoint{Index: 0}, 50_000)

	err := pool.Admit("tx1", raw, false, 0)
	require.NoError(t, err)
	require.Equal(t, 1, pool.Size())
}

func TestAdmitRejectsLowFeeRate(t *testing.T) {
	pool, _ := newTestPool(1)
	raw := rawTxBytes(t, wire.OutPoint{Index: 0}, 50_000)

	err := pool.Admit("tx1", raw, false, 0)
	require.Error(t, err)
}

func TestAdmitRejectsDuplicateIdentifier(t *testing.T) {
	pool, _ := newTestPool(100_000)
	raw := rawTxBytes(t, wire.OutPoint{Index: 0}, 50_000)

	require.NoError(t, pool.Admit("tx1", raw, false, 0))
	err := pool.Admit("tx1", raw, false, 0)
	require.Error(t, err)
}

func TestAdmitRejectsSpentInput(t *testing.T) {
	pool, utxos := newTestPool(100_000)
	outpoint := wire.OutPoint{Index: 7}
	utxos.spent[outpointKey(outpoint.Hash, outpoint.Index)] = true

	raw := rawTxBytes(t, outpoint, 50_000)
	err := pool.Admit("tx1", raw, false, 0)
	require.Error(t, err)
}

func TestAdmitRejectsWhenCongested(t *testing.T) {
	utxos := newStubUTXOs()
	cfg := Config{
		Policy:          Policy{MaxEntries: 1, MaxOrphans: 10, MaxEntrySize: 400_000, OrphanTTL: DefaultPolicy.OrphanTTL, OrphanScanPeriod: DefaultPolicy.OrphanScanPeriod},
		UTXOs:           utxos,
		Parser:          stubParser{feeSat: 100_000, kind: contract.KindGeneric},
		MinFeeRateVByte: 1,
		MaxPriorityFee:  1_000_000,
	}
	pool := New(cfg)

	require.NoError(t, pool.Admit("tx1", rawTxBytes(t, wire.OutPoint{Index: 0}, 50_000), false, 0))
	err := pool.Admit("tx2", rawTxBytes(t, wire.OutPoint{Index: 1}, 50_000), false, 0)
	require.Error(t, err)
}

func TestRebaseEvictsConfirmedAndConflicting(t *testing.T) {
	pool, utxos := newTestPool(100_000)
	outpoint := wire.OutPoint{Index: 2}
	require.NoError(t, pool.Admit("tx1", rawTxBytes(t, outpoint, 50_000), false, 0))
	require.Equal(t, 1, pool.Size())

	utxos.spent[outpointKey(outpoint.Hash, outpoint.Index)] = true
	pool.Rebase(map[string]bool{})
	require.Equal(t, 0, pool.Size())

	require.NoError(t, pool.Admit("tx2", rawTxBytes(t, wire.OutPoint{Index: 3}, 50_000), false, 0))
	require.Equal(t, 1, pool.Size())
	pool.Rebase(map[string]bool{"tx2": true})
	require.Equal(t, 0, pool.Size())
	require.Nil(t, pool.Get("tx2"))
}
