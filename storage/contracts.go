package storage

import (
	"encoding/json"

	"github.com/opnet-labs/opnetd/contract"
	"github.com/opnet-labs/opnetd/errkind"
)

// GetContract returns the deployed contract record at addr, or nil if
// none has been deployed there.
func (s *Store) GetContract(addr contract.Address) (*contract.Contract, error) {
	data, err := s.rawGet(prefixContract, addr[:])
	if err != nil || data == nil {
		return nil, err
	}
	var c contract.Contract
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	return &c, nil
}

// PutContract stages c's immutable record. Contracts are write-once;
// callers are expected to check GetContract first, since this method
// does not itself reject overwrites (the uniqueness is enforced by
// the deployment address derivation being collision-resistant, not by
// this store).
func (s *Store) PutContract(sn *Snapshot, c contract.Contract) error {
	data, err := json.Marshal(c)
	if err != nil {
		return errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	s.rawPut(sn, prefixContract, c.Address[:], data)
	secretHash := c.SecretHash160()
	s.rawPut(sn, prefixSecretHash, secretHash[:], c.Address[:])
	return nil
}

// GetContractBySecretHash resolves the deployment address a contract
// was registered under by its witness-reveal secret hash, the lookup
// the Block Processor performs for every Interaction envelope to find
// which contract it targets.
func (s *Store) GetContractBySecretHash(secretHash [20]byte) (*contract.Contract, error) {
	data, err := s.rawGet(prefixSecretHash, secretHash[:])
	if err != nil || data == nil {
		return nil, err
	}
	var addr contract.Address
	copy(addr[:], data)
	return s.GetContract(addr)
}

// ResolveBytecode implements vm.ExternalCallResolver against the
// contract sub-store.
func (s *Store) ResolveBytecode(addr contract.Address) ([]byte, bool) {
	c, err := s.GetContract(addr)
	if err != nil || c == nil {
		return nil, false
	}
	return c.Bytecode, true
}
