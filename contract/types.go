// Package contract defines the data model shared by the transaction
// parser, the execution engine, and the storage engine: contracts,
// storage pointers/values, and the calldata conventions of the OPNet
// envelope.
package contract

import "golang.org/x/crypto/ripemd160"

// Address is a contract's 32-byte identity.
type Address [32]byte

// Pointer is a 32-byte storage key scoped to a single contract.
type Pointer [32]byte

// Value is a 32-byte storage value.
type Value [32]byte

// Kind classifies a base-chain transaction once the parser has
// inspected its witness data.
type Kind uint8

const (
	KindGeneric Kind = iota
	KindInteraction
	KindDeployment
)

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindInteraction:
		return "interaction"
	case KindDeployment:
		return "deployment"
	default:
		return "unknown"
	}
}

// FeatureFlags is the 24-bit bitset carried in the OPNet header.
type FeatureFlags uint32

const (
	FeatureAccessList      FeatureFlags = 1 << 0
	FeatureEpochSubmission FeatureFlags = 1 << 1
	FeatureMLDSALinkPubkey FeatureFlags = 1 << 2
)

func (f FeatureFlags) Has(flag FeatureFlags) bool { return f&flag == flag }

// Contract is the immutable record of a deployed contract. Bytecode is
// the deployment calldata as the parser returned it (already
// decompressed when the envelope's compression flag was set); the
// storage engine stores and returns it unchanged.
type Contract struct {
	Address          Address
	Bytecode         []byte
	DeployerPubkey   []byte
	ContractSeed     [32]byte
	DeployedAtBlock  uint64
	TweakedPublicKey []byte
	HybridPublicKey  []byte
}

// SecretHash160 is the witness-reveal hash an Interaction envelope
// carries to name its target contract, ripemd160 of the contract's
// deployment address. Storage indexes each contract under this value
// and the parser reads it from the witness, so an interaction
// transaction's witness data alone is enough to look up which contract
// it calls.
func (c Contract) SecretHash160() [20]byte {
	h := ripemd160.New()
	h.Write(c.Address[:])
	sum := h.Sum(nil)
	var out [20]byte
	copy(out[:], sum)
	return out
}

// StorageEntry is one versioned (contract, pointer) -> value record.
type StorageEntry struct {
	Contract   Address
	Pointer    Pointer
	Value      Value
	Proofs     []string
	LastSeenAt uint64
}
