// Package address implements display encoding for OPNet contract
// addresses: 32-byte values encoded as bech32m witness-v1 style
// strings, network-scoped by human-readable part the same way Bitcoin
// Taproot addresses are network-scoped.
package address

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/opnet-labs/opnetd/netparams"
)

var (
	// ErrInvalidAddress is returned when an address string fails to
	// decode to a well-formed contract address.
	ErrInvalidAddress = errors.New("address: invalid contract address")

	// ErrWrongNetwork is returned when an address decodes but carries
	// a human-readable part for a different network.
	ErrWrongNetwork = errors.New("address: address is for a different network")
)

// contractWitnessVersion is the witness version byte OPNet contract
// addresses are tagged with, analogous to Taproot's witness version 1.
const contractWitnessVersion = 1

// Contract is a 32-byte OPNet contract address.
type Contract [32]byte

// Encode renders addr as a bech32m string using params' HRP.
func Encode(addr Contract, params *netparams.Params) (string, error) {
	conv, err := bech32.ConvertBits(addr[:], 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("address: convert bits: %w", err)
	}
	data := append([]byte{contractWitnessVersion}, conv...)
	encoded, err := bech32.EncodeM(params.ContractHRP, data)
	if err != nil {
		return "", fmt.Errorf("address: encode: %w", err)
	}
	return encoded, nil
}

// Decode parses s into a Contract address, verifying it was encoded
// for params' network.
func Decode(s string, params *netparams.Params) (Contract, error) {
	var out Contract

	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return out, ErrInvalidAddress
	}
	if hrp != params.ContractHRP {
		return out, ErrWrongNetwork
	}
	if len(data) < 1 {
		return out, ErrInvalidAddress
	}
	if data[0] != contractWitnessVersion {
		return out, ErrInvalidAddress
	}
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return out, ErrInvalidAddress
	}
	if len(program) != 32 {
		return out, ErrInvalidAddress
	}
	copy(out[:], program)
	return out, nil
}

// String renders addr with the mainnet HRP; callers that care about
// network correctness should use Encode directly.
func (c Contract) String() string {
	s, err := Encode(c, mustMainnet())
	if err != nil {
		return fmt.Sprintf("%x", c[:])
	}
	return s
}

func mustMainnet() *netparams.Params {
	p, _ := netparams.ForNetwork("mainnet")
	return p
}
