package mempool

import (
	"bytes"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"

	"github.com/opnet-labs/opnetd/contract"
	"github.com/opnet-labs/opnetd/errkind"
)

// waitingTx is an entry held back because its previous_psbt_id has not
// yet been seen, much like Bitcoin's orphan pool entries: a payload
// plus the bookkeeping needed to evict it once its TTL or its
// dependency resolves, re-keyed from Bitcoin's missing-prevout
// condition to OPNet's missing-previous_psbt_id condition.
type waitingTx struct {
	entry      *Entry
	tag        Tag
	expiration time.Time
}

// Pool is opnetd's pending-transaction store: decode, classify,
// verify, dependency-link, and admit. It splits a primary index
// (Pool.entries) from a secondary waiting index keyed by the
// dependency edge each entry blocks on (Pool.waitingByParent).
type Pool struct {
	cfg Config
	fee *FeeCalculator

	mu sync.RWMutex

	entries map[string]*Entry

	waiting         map[string]*waitingTx   // identifier -> waiting entry
	waitingByParent map[string]map[string]*Entry // previous_psbt_id -> identifiers waiting on it

	spentBy map[[36]byte]string // outpoint key -> identifier currently spending it

	nextExpireScan time.Time
}

// New builds a Pool from cfg. cfg.Policy zero value falls back to
// DefaultPolicy.
func New(cfg Config) *Pool {
	if cfg.Policy.MaxEntries == 0 {
		cfg.Policy = DefaultPolicy
	}
	return &Pool{
		cfg:             cfg,
		fee:             NewFeeCalculator(cfg.MinFeeRateVByte),
		entries:         make(map[string]*Entry),
		waiting:         make(map[string]*waitingTx),
		waitingByParent: make(map[string]map[string]*Entry),
		spentBy:         make(map[[36]byte]string),
		nextExpireScan:  time.Now().Add(cfg.Policy.OrphanScanPeriod),
	}
}

// Admit runs the full admission pipeline for one candidate and either
// inserts it, holds it as waiting on a dependency, or returns a
// Reject classified under errkind.KindMempool.
func (p *Pool) Admit(identifier string, raw []byte, isPSBT bool, tag Tag) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[identifier]; exists {
		return errkind.New(errkind.KindMempool, "DuplicatePsbt", false, nil)
	}
	if _, exists := p.waiting[identifier]; exists {
		return errkind.New(errkind.KindMempool, "DuplicatePsbt", false, nil)
	}
	if int64(len(raw)) > p.cfg.Policy.MaxEntrySize {
		return errkind.New(errkind.KindMempool, "Congested", false, nil)
	}
	if len(p.entries) >= p.cfg.Policy.MaxEntries {
		return errkind.New(errkind.KindMempool, "Congested", false, nil)
	}

	entry, err := p.decode(identifier, raw, isPSBT)
	if err != nil {
		log.Debugf("rejecting %s: decode failed: %v", identifier, err)
		return err
	}
	entry.tag = tag

	if err := p.classifyAndVerify(entry); err != nil {
		log.Debugf("rejecting %s: verification failed: %v", identifier, err)
		return err
	}

	if entry.PreviousPsbtID != "" {
		if parent, ok := p.entries[entry.PreviousPsbtID]; !ok || parent == nil {
			p.addWaiting(entry, tag)
			return nil
		}
	}

	if err := p.checkCycle(entry); err != nil {
		return err
	}

	p.insert(entry)
	p.resolveWaiting(identifier)
	log.Tracef("admitted %s (%d entries)", identifier, len(p.entries))
	return nil
}

// decode tries PSBT first when isPSBT is set, then falls back to a
// raw transaction.
func (p *Pool) decode(identifier string, raw []byte, isPSBT bool) (*Entry, error) {
	entry := &Entry{
		Identifier: identifier,
		RawBytes:   raw,
		IsPSBT:     isPSBT,
		FirstSeen:  time.Now(),
	}

	if isPSBT {
		pkt, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
		if err != nil {
			return nil, errkind.New(errkind.KindParse, "MalformedPSBT", false, err)
		}
		entry.PSBT = pkt
		entry.Tx = pkt.UnsignedTx
		if len(pkt.Inputs) > 0 {
			entry.PreviousPsbtID = previousPsbtIDOf(pkt)
		}
	} else {
		tx := wire.NewMsgTx(wire.TxVersion)
		if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
			return nil, errkind.New(errkind.KindParse, "MalformedTransaction", false, err)
		}
		entry.Tx = tx
	}

	entry.VirtualSize = VirtualSize(entry.Tx)
	return entry, nil
}

// previousPsbtIDOf extracts the previous_psbt_id dependency edge from
// a PSBT's proprietary key-value fields, the chained-PSBT convention
// OPNet uses to link sequential funding transactions. Absence is not
// an error: a PSBT with no declared predecessor simply has no
// dependency edge.
func previousPsbtIDOf(pkt *psbt.Packet) string {
	for _, unknown := range pkt.Unknowns {
		if string(unknown.Key) == "previous_psbt_id" {
			return string(unknown.Value)
		}
	}
	return ""
}

// classifyAndVerify assigns entry.Type, runs the per-consensus fee
// floor check, the OPNet envelope parse when applicable, and
// ML-DSA-link verification for entries that declare it.
func (p *Pool) classifyAndVerify(entry *Entry) error {
	envelope, err := p.cfg.Parser.ParseTransaction(entry.Tx, p.cfg.MaxPriorityFee)
	if err != nil {
		return errkind.New(errkind.KindParse, "MalformedWitness", false, err)
	}
	entry.Envelope = envelope
	entry.PriorityFeeSat = envelope.PriorityFeeSat

	switch envelope.Kind {
	case contract.KindInteraction:
		entry.Type = TypeOPNetInteraction
	case contract.KindDeployment:
		entry.Type = TypeOPNetDeployment
	default:
		if entry.Tx.Version >= 2 {
			entry.Type = TypeBitcoinTxV2
		} else {
			entry.Type = TypeBitcoinTxV1
		}
	}

	if err := p.fee.CheckFloor(entry.PriorityFeeSat, entry.VirtualSize); err != nil {
		return err
	}

	if envelope.FeatureFlags.Has(contract.FeatureMLDSALinkPubkey) && p.cfg.Signatures != nil {
		if !p.cfg.Signatures.VerifyMLDSALink(envelope.SenderPubkey, entry.RawBytes, envelope.Calldata) {
			return errkind.New(errkind.KindMempool, "InvalidSignature", false, nil)
		}
	}

	for _, in := range entry.Tx.TxIn {
		spent, err := p.cfg.UTXOs.IsSpent(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
		if err != nil {
			return errkind.New(errkind.KindUpstream, "transient", false, err)
		}
		if spent {
			return errkind.New(errkind.KindMempool, "InvalidSignature", false, nil)
		}
	}

	return nil
}

// checkCycle walks previous_psbt_id back through already-admitted
// entries; if it revisits entry.Identifier, admitting entry would
// close a cycle, which is forbidden outright.
func (p *Pool) checkCycle(entry *Entry) error {
	seen := map[string]bool{entry.Identifier: true}
	cur := entry.PreviousPsbtID
	for cur != "" {
		if seen[cur] {
			return errkind.New(errkind.KindMempool, "Cycle", false, nil)
		}
		seen[cur] = true
		parent, ok := p.entries[cur]
		if !ok {
			break
		}
		cur = parent.PreviousPsbtID
	}
	return nil
}

func outpointKey(hash [32]byte, index uint32) [36]byte {
	var k [36]byte
	copy(k[:32], hash[:])
	k[32] = byte(index)
	k[33] = byte(index >> 8)
	k[34] = byte(index >> 16)
	k[35] = byte(index >> 24)
	return k
}

func (p *Pool) insert(entry *Entry) {
	p.entries[entry.Identifier] = entry
	for _, in := range entry.Tx.TxIn {
		key := outpointKey(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
		p.spentBy[key] = entry.Identifier
	}
}

// addWaiting holds entry pending its previous_psbt_id's arrival,
// enforcing the orphan pool's size bound the way Bitcoin Core's
// limitNumOrphans does: evict expired entries first, then the oldest
// remaining one if capacity is still exceeded.
func (p *Pool) addWaiting(entry *Entry, tag Tag) {
	p.evictExpiredWaiting()

	if len(p.waiting) >= p.cfg.Policy.MaxOrphans {
		var oldestID string
		var oldestTime time.Time
		for id, w := range p.waiting {
			if oldestID == "" || w.expiration.Before(oldestTime) {
				oldestID, oldestTime = id, w.expiration
			}
		}
		if oldestID != "" {
			p.removeWaiting(oldestID)
		}
	}

	w := &waitingTx{entry: entry, tag: tag, expiration: time.Now().Add(p.cfg.Policy.OrphanTTL)}
	p.waiting[entry.Identifier] = w

	if entry.PreviousPsbtID != "" {
		byParent, ok := p.waitingByParent[entry.PreviousPsbtID]
		if !ok {
			byParent = make(map[string]*Entry)
			p.waitingByParent[entry.PreviousPsbtID] = byParent
		}
		byParent[entry.Identifier] = entry
	}
}

func (p *Pool) removeWaiting(identifier string) {
	w, ok := p.waiting[identifier]
	if !ok {
		return
	}
	if w.entry.PreviousPsbtID != "" {
		if byParent, ok := p.waitingByParent[w.entry.PreviousPsbtID]; ok {
			delete(byParent, identifier)
			if len(byParent) == 0 {
				delete(p.waitingByParent, w.entry.PreviousPsbtID)
			}
		}
	}
	delete(p.waiting, identifier)
}

func (p *Pool) evictExpiredWaiting() {
	now := time.Now()
	if now.Before(p.nextExpireScan) {
		return
	}
	for id, w := range p.waiting {
		if now.After(w.expiration) {
			p.removeWaiting(id)
		}
	}
	p.nextExpireScan = now.Add(p.cfg.Policy.OrphanScanPeriod)
}

// resolveWaiting re-attempts admission for every entry that was
// waiting on identifier, now that it has been inserted.
func (p *Pool) resolveWaiting(identifier string) {
	byParent, ok := p.waitingByParent[identifier]
	if !ok {
		return
	}
	ready := make([]*Entry, 0, len(byParent))
	for _, e := range byParent {
		ready = append(ready, e)
	}
	for _, e := range ready {
		p.removeWaiting(e.Identifier)
		if err := p.checkCycle(e); err != nil {
			continue
		}
		p.insert(e)
		p.resolveWaiting(e.Identifier)
	}
}

// Get returns the admitted entry for identifier, or nil.
func (p *Pool) Get(identifier string) *Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[identifier]
}

// Size returns the number of admitted (non-waiting) entries.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Rebase removes entries the new block just confirmed and any entry
// whose input the UTXO source now reports spent. confirmedIDs is the
// set of identifiers mined into the block; it may be nil. Rebase does
// not evict by height: the pool records no admission height, and
// Policy.ExpireAfterBlocks is not applied anywhere.
func (p *Pool) Rebase(confirmedIDs map[string]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range confirmedIDs {
		p.remove(id)
	}

	for id, entry := range p.entries {
		for _, in := range entry.Tx.TxIn {
			spent, err := p.cfg.UTXOs.IsSpent(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
			if err == nil && spent && !confirmedIDs[id] {
				p.remove(id)
				break
			}
		}
	}
}

// Remove evicts identifier and any entry waiting on it, recursively.
func (p *Pool) Remove(identifier string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remove(identifier)
}

func (p *Pool) remove(identifier string) {
	entry, ok := p.entries[identifier]
	if !ok {
		return
	}
	for _, in := range entry.Tx.TxIn {
		key := outpointKey(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
		if p.spentBy[key] == identifier {
			delete(p.spentBy, key)
		}
	}
	delete(p.entries, identifier)

	if byParent, ok := p.waitingByParent[identifier]; ok {
		for waitingID := range byParent {
			p.remove(waitingID)
			p.removeWaiting(waitingID)
		}
	}
}

// DumpEntry renders an admitted entry's full internal state for
// trace-level logging, reaching for spew.Sdump rather than a
// hand-rolled formatter when a log line needs to show an entire
// struct.
func (p *Pool) DumpEntry(identifier string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[identifier]
	if !ok {
		return ""
	}
	return spew.Sdump(entry)
}

// RemoveByTag evicts every entry and waiting entry carrying tag, for
// bulk cleanup when a peer is banned.
func (p *Pool) RemoveByTag(tag Tag) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for id, entry := range p.entries {
		if entry.tag == tag {
			p.remove(id)
			count++
		}
	}
	for id, w := range p.waiting {
		if w.tag == tag {
			p.removeWaiting(id)
			count++
		}
	}
	return count
}
