package storage

import (
	"encoding/json"

	"github.com/opnet-labs/opnetd/errkind"
)

// EpochRecord is the persisted form of one finalized epoch.
type EpochRecord struct {
	EpochNumber uint64
	StartBlock  uint64
	EndBlock    uint64
	TargetHash  [32]byte
	EpochRoot   [32]byte
	EpochHash   [32]byte
	Proposer    string
	Proofs      [][]byte
}

func epochKey(number uint64) []byte {
	return beBytes(number)
}

// GetEpoch returns the record for epoch number, or nil if not yet
// finalized.
func (s *Store) GetEpoch(number uint64) (*EpochRecord, error) {
	data, err := s.rawGet(prefixEpoch, epochKey(number))
	if err != nil || data == nil {
		return nil, err
	}
	var rec EpochRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	return &rec, nil
}

// PutEpoch stages rec within sn. Epochs are append-only; like
// PutContract this does not itself reject overwrites.
func (s *Store) PutEpoch(sn *Snapshot, rec EpochRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	s.rawPut(sn, prefixEpoch, epochKey(rec.EpochNumber), data)
	return nil
}

// DeleteEpoch stages removal of epoch number, used by the Epoch
// Manager's reindex when re-finalizing from an earlier epoch.
func (s *Store) DeleteEpoch(sn *Snapshot, number uint64) {
	s.rawDelete(sn, prefixEpoch, epochKey(number))
}
