package contract

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	decredec "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// DeriveAddress computes a contract's address and its tweaked/hybrid
// public keys from the deployer's public key and the contract's seed
// (a deployment-time nonce, typically the deploying transaction's
// txid). The tweak follows the same "pubkey + tagged-hash(pubkey ||
// seed)" construction BIP341 uses for Taproot output keys, so a
// contract address reuses the exact key-tweak idiom the base chain
// already relies on for spend authorization, rather than inventing a
// new scheme.
//
// TweakedPublicKey is produced with btcsuite/btcd's secp256k1
// implementation. HybridPublicKey is that result followed by the same
// tweak re-derived with the independent decred secp256k1
// implementation; the two halves are expected to be byte-identical (a
// mismatch indicates a faulty curve implementation, not a
// protocol-level fork). DeriveAddress itself does not compare them.
func DeriveAddress(deployerPubkey []byte, seed [32]byte) (Contract, error) {
	var out Contract

	tweak := tapTweakHash(deployerPubkey, seed)

	tweakedBtcec, err := tweakBtcec(deployerPubkey, tweak)
	if err != nil {
		return out, fmt.Errorf("contract: btcec tweak: %w", err)
	}
	tweakedDecred, err := tweakDecred(deployerPubkey, tweak)
	if err != nil {
		return out, fmt.Errorf("contract: decred tweak: %w", err)
	}

	var addr Address
	copy(addr[:], tweakedBtcec)

	out.Address = addr
	out.DeployerPubkey = append([]byte(nil), deployerPubkey...)
	out.ContractSeed = seed
	out.TweakedPublicKey = tweakedBtcec
	out.HybridPublicKey = append(append([]byte(nil), tweakedBtcec...), tweakedDecred...)
	return out, nil
}

// tapTweakHash computes the 32-byte tweak scalar input, tagged the way
// BIP341 tags its hashes (domain-separated from any other SHA-256 use
// in the node).
func tapTweakHash(pubkey []byte, seed [32]byte) [32]byte {
	tag := sha256.Sum256([]byte("OPNet/ContractTweak"))
	h := sha256.New()
	h.Write(tag[:])
	h.Write(tag[:])
	h.Write(pubkey)
	h.Write(seed[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func tweakBtcec(pubkeyBytes []byte, tweak [32]byte) ([]byte, error) {
	pubkey, err := schnorr.ParsePubKey(xOnly(pubkeyBytes))
	if err != nil {
		return nil, err
	}
	tweakInt := new(btcec.ModNScalar)
	tweakInt.SetBytes(&tweak)

	var pubJ, resJ btcec.JacobianPoint
	pubkey.AsJacobian(&pubJ)

	var tweakPoint btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(tweakInt, &tweakPoint)
	btcec.AddNonConst(&pubJ, &tweakPoint, &resJ)
	resJ.ToAffine()

	res := btcec.NewPublicKey(&resJ.X, &resJ.Y)
	return schnorr.SerializePubKey(res), nil
}

func tweakDecred(pubkeyBytes []byte, tweak [32]byte) ([]byte, error) {
	pubkey, err := decredec.ParsePubKey(append([]byte{0x02}, xOnly(pubkeyBytes)...))
	if err != nil {
		return nil, err
	}
	var tweakScalar decredec.ModNScalar
	tweakScalar.SetBytes(&tweak)

	var pubJ, tweakJ, resJ decredec.JacobianPoint
	pubkey.AsJacobian(&pubJ)
	decredec.ScalarBaseMultNonConst(&tweakScalar, &tweakJ)
	decredec.AddNonConst(&pubJ, &tweakJ, &resJ)
	resJ.ToAffine()

	res := decredec.NewPublicKey(&resJ.X, &resJ.Y)
	return res.SerializeCompressed()[1:], nil
}

// xOnly returns the 32-byte x-coordinate of a possibly-33-byte
// compressed public key.
func xOnly(pubkey []byte) []byte {
	if len(pubkey) == 33 {
		return pubkey[1:]
	}
	return pubkey
}
