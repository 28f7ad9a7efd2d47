package storage

import (
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/opnet-labs/opnetd/errkind"
)

// Snapshot scopes a transaction to the commit of one block height.
// Writes made through any sub-store against a Snapshot are buffered
// in its batch and only become visible to readers once Commit
// succeeds.
type Snapshot struct {
	store  *Store
	height uint64
	batch  *leveldb.Batch
	done   bool
}

// OpenSnapshot begins a transaction scoped to height. Acquiring a
// snapshot for a height whose previous height is not committed fails
// with PreconditionViolation; a second snapshot while one is already
// open fails with Conflict.
func (s *Store) OpenSnapshot(height uint64) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writerOpen {
		return nil, errkind.New(errkind.KindStorage, "Conflict", false, nil)
	}

	switch {
	case s.tipKnown && height != s.tipHeight+1:
		return nil, errkind.New(errkind.KindStorage, "PreconditionViolation", false, nil)
	case !s.tipKnown && height != 0:
		return nil, errkind.New(errkind.KindStorage, "PreconditionViolation", false, nil)
	}

	s.writerOpen = true
	return &Snapshot{store: s, height: height, batch: new(leveldb.Batch)}, nil
}

// Height returns the block height this snapshot is scoped to.
func (sn *Snapshot) Height() uint64 { return sn.height }

// Commit durably materializes every write staged against sn, then
// advances the store's committed tip. It fails with Conflict if
// another writer has advanced the tip since sn was opened; the caller
// must Revert and re-drive the block.
func (sn *Snapshot) Commit() error {
	sn.store.mu.Lock()
	defer sn.store.mu.Unlock()

	if sn.done {
		return nil
	}

	wantPrev := sn.height - 1
	if sn.height == 0 {
		if sn.store.tipKnown {
			return errkind.New(errkind.KindStorage, "Conflict", false, nil)
		}
	} else if !sn.store.tipKnown || sn.store.tipHeight != wantPrev {
		return errkind.New(errkind.KindStorage, "Conflict", false, nil)
	}

	sn.batch.Put([]byte{prefixTip}, beBytes(sn.height))
	if err := sn.store.db.Write(sn.batch, nil); err != nil {
		log.Errorf("leveldb write failed committing height %d: %v", sn.height, err)
		return errkind.New(errkind.KindStorage, "Corruption", true, err)
	}

	sn.store.tipHeight = sn.height
	sn.store.tipKnown = true
	sn.store.writerOpen = false
	sn.done = true
	return nil
}

// Revert discards all writes staged against sn. Double-revert is a
// no-op, matching the storage engine's idempotence requirement.
func (sn *Snapshot) Revert() error {
	sn.store.mu.Lock()
	defer sn.store.mu.Unlock()
	if sn.done {
		return nil
	}
	sn.batch.Reset()
	sn.store.writerOpen = false
	sn.done = true
	return nil
}

// Terminate releases sn without committing. Used for dry-run and
// simulation callers that never intended to persist anything.
func (sn *Snapshot) Terminate() error { return sn.Revert() }

// RewindTo reverts the store's committed tip back to height by
// deleting every header/tip record above it. It is used to recover
// from a reorg once the Block Processor has identified the common
// ancestor.
func (s *Store) RewindTo(height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writerOpen {
		return errkind.New(errkind.KindStorage, "Conflict", false, nil)
	}
	if !s.tipKnown || height > s.tipHeight {
		return errkind.New(errkind.KindStorage, "PreconditionViolation", false, nil)
	}

	batch := new(leveldb.Batch)
	for h := s.tipHeight; h > height; h-- {
		batch.Delete(headerKey(h))
	}
	batch.Put([]byte{prefixTip}, beBytes(height))

	if err := s.db.Write(batch, nil); err != nil {
		return errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	log.Warnf("rewound committed tip from %d to %d", s.tipHeight, height)
	s.tipHeight = height
	return nil
}
