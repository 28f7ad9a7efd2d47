package mempool

import (
	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// MLDSAVerifier implements SignatureVerifier over Dilithium3
// (cloudflare/circl's Go implementation, the NIST round-3 predecessor
// to the finalized ML-DSA-65 parameter set). Entries carrying
// FeatureMLDSALinkPubkey attach a post-quantum signature binding their
// linkage key to the witness's classical key; this is the verifier
// the pool's admission pipeline calls for that check.
type MLDSAVerifier struct{}

// VerifyMLDSALink reports whether signature is a valid Dilithium3
// signature by pubkey over message. A malformed public key is treated
// as a verification failure rather than an error, matching how the
// pool treats every other admission check: bad input rejects the
// entry, it never panics the worker.
func (MLDSAVerifier) VerifyMLDSALink(pubkey, message, signature []byte) bool {
	var pk mode3.PublicKey
	if err := pk.UnmarshalBinary(pubkey); err != nil {
		return false
	}
	return mode3.Verify(&pk, message, signature)
}
