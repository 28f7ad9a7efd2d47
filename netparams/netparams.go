// Package netparams selects the Bitcoin base-chain network parameters
// opnetd runs against and carries the handful of OPNet-specific
// constants that are genuinely bit-exact per network: the contract
// address human-readable part and the network's WBTC bridge contract
// address. Base-chain consensus itself (genesis block, difficulty,
// soft-fork activation) belongs to the full node opnetd talks to over
// RPC, not to this package.
package netparams

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network identifies one of the four base-chain networks opnetd can
// index against.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
	Signet  Network = "signet"
)

// Params bundles the real btcsuite chain parameters with the OPNet
// overlay constants that vary per network.
type Params struct {
	Network Network
	Chain   *chaincfg.Params

	// ContractHRP is the bech32m human-readable part used to encode
	// 32-byte OPNet contract addresses for display.
	ContractHRP string

	// WBTCContractAddress is the well-known address of the wrapped-BTC
	// bridge contract deployed on this network. It is empty for
	// networks that have not deployed one (regtest by default).
	WBTCContractAddress [32]byte
}

var table = map[Network]*Params{
	Mainnet: {
		Network:     Mainnet,
		Chain:       &chaincfg.MainNetParams,
		ContractHRP: "op",
	},
	Testnet: {
		Network:     Testnet,
		Chain:       &chaincfg.TestNet3Params,
		ContractHRP: "top",
	},
	Regtest: {
		Network:     Regtest,
		Chain:       &chaincfg.RegressionNetParams,
		ContractHRP: "rop",
	},
	Signet: {
		Network:     Signet,
		Chain:       &chaincfg.SigNetParams,
		ContractHRP: "sop",
	},
}

// ForNetwork returns the Params for name: "mainnet", "testnet",
// "regtest", or "signet".
func ForNetwork(name string) (*Params, error) {
	p, ok := table[Network(name)]
	if !ok {
		return nil, fmt.Errorf("netparams: unknown network %q", name)
	}
	return p, nil
}

// SetWBTCContractAddress overrides the WBTC bridge address for a
// network at boot, e.g. from the operator's config file, without
// mutating the shared table entries for other networks.
func (p *Params) SetWBTCContractAddress(addr [32]byte) {
	p.WBTCContractAddress = addr
}
