package storage

import (
	"encoding/json"

	"github.com/opnet-labs/opnetd/errkind"
)

// MempoolRecord is the persisted form of a pending entry, indexed
// uniquely by Identifier and by the PreviousPsbtID dependency edge.
type MempoolRecord struct {
	Identifier     string
	RawBytes       []byte
	IsPSBT         bool
	PreviousPsbtID string
	FirstSeen      uint64
}

// GetMempoolEntry returns the record for identifier, or nil if absent.
func (s *Store) GetMempoolEntry(identifier string) (*MempoolRecord, error) {
	data, err := s.rawGet(prefixMempool, []byte(identifier))
	if err != nil || data == nil {
		return nil, err
	}
	var rec MempoolRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	return &rec, nil
}

// PutMempoolEntry stages rec within sn.
func (s *Store) PutMempoolEntry(sn *Snapshot, rec MempoolRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	s.rawPut(sn, prefixMempool, []byte(rec.Identifier), data)
	return nil
}

// DeleteMempoolEntry stages removal of identifier, used once a mined
// block or eviction retires the entry.
func (s *Store) DeleteMempoolEntry(sn *Snapshot, identifier string) {
	s.rawDelete(sn, prefixMempool, []byte(identifier))
}
