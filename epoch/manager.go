package epoch

import (
	"crypto/sha256"

	"github.com/karalabe/ssz"

	"github.com/opnet-labs/opnetd/errkind"
	"github.com/opnet-labs/opnetd/storage"
)

// Manager finalizes fixed-length block windows into epoch records:
// epoch_hash = H(prev_epoch_hash || target_hash || attestation_root).
// Epochs below quorum are held in AwaitingQuorum rather than
// finalized with a partial attestation set.
type Manager struct {
	store           *storage.Store
	client          *AttestorClient
	blocksPerEpoch  uint64
}

// NewManager builds a Manager over store, finalizing with attestations
// collected through client.
func NewManager(store *storage.Store, client *AttestorClient, blocksPerEpoch uint64) *Manager {
	return &Manager{store: store, client: client, blocksPerEpoch: blocksPerEpoch}
}

// EpochBounds returns the [start, end] block heights of the epoch
// containing height.
func (m *Manager) EpochBounds(height uint64) (epochNumber, start, end uint64) {
	epochNumber = height / m.blocksPerEpoch
	start, end = m.boundsOfEpoch(epochNumber)
	return
}

// Finalize attempts to close epochNumber, given the epoch's target
// hash (the block header hash at its end_block). It requires the
// previous epoch's hash to already be persisted and at least one block
// witness from the attestors; either absence is a fatal, diagnostic
// error. Fewer distinct successful attestors than the client's quorum
// returns the non-fatal AwaitingQuorum error and persists nothing.
func (m *Manager) Finalize(sn *storage.Snapshot, epochNumber uint64, targetHash [32]byte) (*storage.EpochRecord, error) {
	start, end := m.boundsOfEpoch(epochNumber)

	var prevHash [32]byte
	if epochNumber > 0 {
		prev, err := m.store.GetEpoch(epochNumber - 1)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return nil, errkind.New(errkind.KindConsensus, "MissingPreviousEpoch", true, nil)
		}
		prevHash = prev.EpochHash
	}

	responses, err := m.client.RequestAttestations(AttestationRequest{
		EpochNumber: epochNumber,
		StartBlock:  start,
		EndBlock:    end,
	})
	if err != nil {
		return nil, err
	}
	if err := m.client.ValidateQuorum(responses); err != nil {
		return nil, err
	}

	witnesses := mergeWitnesses(responses)
	if len(witnesses) == 0 {
		return nil, errkind.New(errkind.KindConsensus, "MissingBlockWitnesses", true, nil)
	}

	attestationRoot := attestationRootOf(witnesses)
	epochHash := sha256.Sum256(append(append(append([]byte{}, prevHash[:]...), targetHash[:]...), attestationRoot[:]...))

	rec := storage.EpochRecord{
		EpochNumber: epochNumber,
		StartBlock:  start,
		EndBlock:    end,
		TargetHash:  targetHash,
		EpochRoot:   attestationRoot,
		EpochHash:   epochHash,
	}
	if err := m.store.PutEpoch(sn, rec); err != nil {
		return nil, err
	}
	log.Infof("finalized epoch %d (blocks %d-%d, %d attestors)", epochNumber, start, end, len(responses))
	return &rec, nil
}

func (m *Manager) boundsOfEpoch(epochNumber uint64) (start, end uint64) {
	start = epochNumber * m.blocksPerEpoch
	end = start + m.blocksPerEpoch - 1
	return
}

// Reindex deletes every epoch from fromEpoch onward and re-runs
// finalization starting there. targetHashes must supply the target
// hash for every epoch number from fromEpoch through the highest
// epoch the caller wants re-finalized; they are finalized in ascending
// epoch order.
func (m *Manager) Reindex(sn *storage.Snapshot, fromEpoch uint64, targetHashes map[uint64][32]byte) error {
	for epochNumber := fromEpoch; ; epochNumber++ {
		rec, err := m.store.GetEpoch(epochNumber)
		if err != nil {
			return err
		}
		if rec == nil {
			break
		}
		m.store.DeleteEpoch(sn, epochNumber)
	}
	for epochNumber := range targetHashes {
		if epochNumber < fromEpoch {
			continue
		}
		m.store.DeleteEpoch(sn, epochNumber)
	}

	epochNumbers := make([]uint64, 0, len(targetHashes))
	for epochNumber := range targetHashes {
		if epochNumber >= fromEpoch {
			epochNumbers = append(epochNumbers, epochNumber)
		}
	}
	sortUint64s(epochNumbers)

	for _, epochNumber := range epochNumbers {
		if _, err := m.Finalize(sn, epochNumber, targetHashes[epochNumber]); err != nil {
			return err
		}
	}
	return nil
}

func sortUint64s(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func mergeWitnesses(responses []*AttestationResponse) []BlockWitness {
	seen := make(map[uint64]BlockWitness)
	for _, r := range responses {
		if !r.Success {
			continue
		}
		for _, w := range r.Witnesses {
			if _, ok := seen[w.Height]; !ok {
				seen[w.Height] = w
			}
		}
	}
	out := make([]BlockWitness, 0, len(seen))
	for _, w := range seen {
		out = append(out, w)
	}
	sortWitnesses(out)
	return out
}

func sortWitnesses(w []BlockWitness) {
	for i := 1; i < len(w); i++ {
		for j := i; j > 0 && w[j-1].Height > w[j].Height; j-- {
			w[j-1], w[j] = w[j], w[j-1]
		}
	}
}

// attestationRootOf Merkleizes witnesses into a single root via
// karalabe/ssz, giving the epoch layer the same canonical-hashing
// treatment indexer/ gives block receipts.
func attestationRootOf(witnesses []BlockWitness) [32]byte {
	ptrs := make([]*BlockWitness, len(witnesses))
	for i := range witnesses {
		w := witnesses[i]
		ptrs[i] = &w
	}
	list := &witnessList{Witnesses: ptrs}
	return ssz.HashSequential(list)
}
