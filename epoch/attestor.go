package epoch

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/opnet-labs/opnetd/errkind"
)

// AttestorClient requests and verifies block-witness attestations from
// the configured set of authorized attestors.
type AttestorClient struct {
	httpClient *http.Client
	attestors  []AttestorInfo
	minQuorum  int
}

// NewAttestorClient builds a client over attestors, requiring at least
// minQuorum successful, distinct responses to accept an epoch's
// attestation set.
func NewAttestorClient(attestors []AttestorInfo, minQuorum int) *AttestorClient {
	return &AttestorClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attestors:  attestors,
		minQuorum:  minQuorum,
	}
}

// RequestAttestations polls every known attestor for req, returning
// the collected successful responses. A response failing signature
// verification is dropped rather than aborting the whole round: a
// best-effort poll followed by a separate quorum check.
func (ac *AttestorClient) RequestAttestations(req AttestationRequest) ([]*AttestationResponse, error) {
	responses := make([]*AttestationResponse, 0, len(ac.attestors))
	for i, attestor := range ac.attestors {
		resp, err := ac.requestFromAttestor(i, attestor, req)
		if err != nil {
			continue
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

func (ac *AttestorClient) requestFromAttestor(index int, attestor AttestorInfo, req AttestationRequest) (*AttestationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, attestor.Endpoint+"/attest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := ac.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	var resp AttestationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	resp.AttestorIndex = index

	if err := ac.verifySignature(index, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// verifySignature checks resp.Signature against the hash of its
// witness data using the attestor's registered public key.
func (ac *AttestorClient) verifySignature(index int, resp *AttestationResponse) error {
	if index >= len(ac.attestors) {
		return fmt.Errorf("attestor index %d out of range", index)
	}
	attestor := ac.attestors[index]
	if len(attestor.PublicKey) == 0 {
		return fmt.Errorf("attestor %s has no registered public key", attestor.Name)
	}
	if len(resp.Signature) == 0 {
		return fmt.Errorf("attestor %s returned no signature", attestor.Name)
	}

	digest := hashWitnesses(resp.Witnesses, resp.Timestamp)

	signature, err := ecdsa.ParseSignature(resp.Signature)
	if err != nil {
		return fmt.Errorf("parse attestor signature: %w", err)
	}
	pubkey, err := btcec.ParsePubKey(attestor.PublicKey)
	if err != nil {
		return fmt.Errorf("parse attestor pubkey: %w", err)
	}
	if !signature.Verify(digest[:], pubkey) {
		return fmt.Errorf("attestor %s signature verification failed", attestor.Name)
	}
	return nil
}

// hashWitnesses computes a deterministic digest of a response's
// witness set for signature verification via field concatenation.
func hashWitnesses(witnesses []BlockWitness, timestamp uint32) [32]byte {
	buf := make([]byte, 0, len(witnesses)*44+4)
	for _, w := range witnesses {
		var heightBytes [8]byte
		for i := 0; i < 8; i++ {
			heightBytes[i] = byte(w.Height >> (8 * i))
		}
		buf = append(buf, heightBytes[:]...)
		buf = append(buf, w.BlockHash[:]...)
	}
	var tsBytes [4]byte
	for i := 0; i < 4; i++ {
		tsBytes[i] = byte(timestamp >> (8 * i))
	}
	buf = append(buf, tsBytes[:]...)
	return sha256.Sum256(buf)
}

// ValidateQuorum enforces the minimum-quorum and attestor-diversity
// check: consensus.epoch.min_attestor_quorum distinct, successful
// responses.
func (ac *AttestorClient) ValidateQuorum(responses []*AttestationResponse) error {
	seen := make(map[int]bool)
	for _, r := range responses {
		if r.Success {
			seen[r.AttestorIndex] = true
		}
	}
	if len(seen) < ac.minQuorum {
		return errkind.New(errkind.KindConsensus, "AwaitingQuorum", false,
			fmt.Errorf("got %d distinct attestors, need %d", len(seen), ac.minQuorum))
	}
	return nil
}
