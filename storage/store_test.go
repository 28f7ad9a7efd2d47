package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opnet-labs/opnetd/contract"
	"github.com/opnet-labs/opnetd/errkind"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func commitEmpty(t *testing.T, s *Store, height uint64) {
	t.Helper()
	sn, err := s.OpenSnapshot(height)
	require.NoError(t, err)
	require.NoError(t, sn.Commit())
}

func TestOpenSnapshotRejectsConcurrentWriter(t *testing.T) {
	s := openTestStore(t)

	sn, err := s.OpenSnapshot(0)
	require.NoError(t, err)

	_, err = s.OpenSnapshot(1)
	require.Error(t, err)
	var e *errkind.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, "Conflict", e.Code)

	require.NoError(t, sn.Revert())
}

func TestOpenSnapshotRejectsSkippedHeight(t *testing.T) {
	s := openTestStore(t)
	commitEmpty(t, s, 0)

	_, err := s.OpenSnapshot(5)
	require.Error(t, err)
	var e *errkind.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, "PreconditionViolation", e.Code)
}

func TestRevertIsIdempotentAndReopenable(t *testing.T) {
	s := openTestStore(t)

	sn, err := s.OpenSnapshot(0)
	require.NoError(t, err)
	require.NoError(t, sn.Revert())
	require.NoError(t, sn.Revert())

	_, known := s.CommittedTip()
	require.False(t, known)

	sn2, err := s.OpenSnapshot(0)
	require.NoError(t, err)
	require.NoError(t, sn2.Commit())

	tip, known := s.CommittedTip()
	require.True(t, known)
	require.Equal(t, uint64(0), tip)
}

// TestReorgRewind reproduces the reorg scenario: the store commits up
// to height 100, then a reorg is detected and the tip is rewound to
// 99 so the block processor can re-drive height 100 on the new chain.
func TestReorgRewind(t *testing.T) {
	s := openTestStore(t)

	for h := uint64(0); h <= 100; h++ {
		sn, err := s.OpenSnapshot(h)
		require.NoError(t, err)
		require.NoError(t, s.PutHeader(sn, BlockHeader{Height: h}))
		require.NoError(t, sn.Commit())
	}

	tip, known := s.CommittedTip()
	require.True(t, known)
	require.Equal(t, uint64(100), tip)

	require.NoError(t, s.RewindTo(99))

	tip, known = s.CommittedTip()
	require.True(t, known)
	require.Equal(t, uint64(99), tip)

	hdr, err := s.GetHeader(100)
	require.NoError(t, err)
	require.Nil(t, hdr)

	hdr, err = s.GetHeader(99)
	require.NoError(t, err)
	require.NotNil(t, hdr)

	sn, err := s.OpenSnapshot(100)
	require.NoError(t, err)
	require.NoError(t, sn.Commit())
}

// TestVersionedPointerRead reproduces the versioned-read scenario: a
// pointer written at height 50 with one value and again at height 75
// with another must resolve to the value in effect at the queried
// height, and be absent before its first write.
func TestVersionedPointerRead(t *testing.T) {
	s := openTestStore(t)

	var c contract.Address
	c[0] = 0xAA
	var p contract.Pointer
	p[0] = 0xBB
	var v1, v2 contract.Value
	v1[0] = 0x01
	v2[0] = 0x02

	sn, err := s.OpenSnapshot(0)
	require.NoError(t, err)
	require.NoError(t, s.PutPointers(sn, []contract.StorageEntry{
		{Contract: c, Pointer: p, Value: v1, LastSeenAt: 50},
	}))
	require.NoError(t, sn.Commit())

	sn, err = s.OpenSnapshot(1)
	require.NoError(t, err)
	require.NoError(t, s.PutPointers(sn, []contract.StorageEntry{
		{Contract: c, Pointer: p, Value: v2, LastSeenAt: 75},
	}))
	require.NoError(t, sn.Commit())

	entry, err := s.GetPointer(c, p, 60)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, v1, entry.Value)

	entry, err = s.GetPointer(c, p, 80)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, v2, entry.Value)

	entry, err = s.GetPointer(c, p, 40)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestPutPointersRejectsDuplicateKeyInBatch(t *testing.T) {
	s := openTestStore(t)

	var c contract.Address
	var p contract.Pointer
	var v contract.Value

	sn, err := s.OpenSnapshot(0)
	require.NoError(t, err)

	err = s.PutPointers(sn, []contract.StorageEntry{
		{Contract: c, Pointer: p, Value: v, LastSeenAt: 10},
		{Contract: c, Pointer: p, Value: v, LastSeenAt: 10},
	})
	require.Error(t, err)
}

func TestContractRoundTrip(t *testing.T) {
	s := openTestStore(t)

	var addr contract.Address
	addr[0] = 0x01
	c := contract.Contract{Address: addr, Bytecode: []byte{0xde, 0xad}, DeployedAtBlock: 7}

	sn, err := s.OpenSnapshot(0)
	require.NoError(t, err)
	require.NoError(t, s.PutContract(sn, c))
	require.NoError(t, sn.Commit())

	got, err := s.GetContract(addr)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, c.Bytecode, got.Bytecode)

	bytecode, ok := s.ResolveBytecode(addr)
	require.True(t, ok)
	require.Equal(t, c.Bytecode, bytecode)

	var missing contract.Address
	missing[0] = 0xFF
	_, ok = s.ResolveBytecode(missing)
	require.False(t, ok)
}

func TestMempoolEntryRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rec := MempoolRecord{Identifier: "tx-1", RawBytes: []byte{1, 2, 3}, FirstSeen: 42}

	sn, err := s.OpenSnapshot(0)
	require.NoError(t, err)
	require.NoError(t, s.PutMempoolEntry(sn, rec))
	require.NoError(t, sn.Commit())

	got, err := s.GetMempoolEntry("tx-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, rec.RawBytes, got.RawBytes)

	sn, err = s.OpenSnapshot(1)
	require.NoError(t, err)
	s.DeleteMempoolEntry(sn, "tx-1")
	require.NoError(t, sn.Commit())

	got, err = s.GetMempoolEntry("tx-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestEpochRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rec := EpochRecord{EpochNumber: 3, StartBlock: 300, EndBlock: 399, Proposer: "node-a"}

	sn, err := s.OpenSnapshot(0)
	require.NoError(t, err)
	require.NoError(t, s.PutEpoch(sn, rec))
	require.NoError(t, sn.Commit())

	got, err := s.GetEpoch(3)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, rec.StartBlock, got.StartBlock)

	got, err = s.GetEpoch(4)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestHeaderSafeU64Deterministic(t *testing.T) {
	var h BlockHeader
	h.Hash[0] = 0xAB
	h.Hash[31] = 0xCD

	require.Equal(t, h.SafeU64(), h.SafeU64())

	var h2 BlockHeader
	h2.Hash[0] = 0xAB
	require.NotEqual(t, h.SafeU64(), h2.SafeU64())
}

func TestUTXOMarkSpent(t *testing.T) {
	s := openTestStore(t)

	var txid [32]byte
	txid[0] = 0x11
	rec := UTXORecord{Txid: txid, Vout: 2, ValueSat: 1000, BlockHeight: 10}

	sn, err := s.OpenSnapshot(0)
	require.NoError(t, err)
	require.NoError(t, s.PutUTXO(sn, rec))
	require.NoError(t, sn.Commit())

	got, err := s.GetUTXO(txid, 2)
	require.NoError(t, err)
	require.Nil(t, got.SpentAt)

	sn, err = s.OpenSnapshot(1)
	require.NoError(t, err)
	require.NoError(t, s.MarkSpent(sn, *got, 11))
	require.NoError(t, sn.Commit())

	got, err = s.GetUTXO(txid, 2)
	require.NoError(t, err)
	require.NotNil(t, got.SpentAt)
	require.Equal(t, uint64(11), *got.SpentAt)
}
