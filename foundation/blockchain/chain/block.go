package chain

import (
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/canonical"
	"github.com/ardanlabs/powchain/foundation/blockchain/digest"
)

// GenesisPrevHash is the previous hash value carried by the genesis block
// since it has no real predecessor.
const GenesisPrevHash = "0"

// Payload is the structured value recorded by a block. The chain treats it
// as opaque data.
type Payload map[string]any

// Block represents a single sealed record in the chain.
type Block struct {
	Index     uint64  `json:"index"`         // Position in the chain, starting at 0.
	TimeStamp uint64  `json:"timestamp"`     // Unix seconds when the block was created.
	Payload   Payload `json:"payload"`       // Data recorded by this block.
	PrevHash  string  `json:"previous_hash"` // Hash of the previous block, or "0" for genesis.
	Nonce     uint64  `json:"nonce"`         // Value identified to solve the hash solution.
	Hash      string  `json:"hash"`          // Digest of the canonical encoding of the fields above.
}

// ComputeHash recalculates the digest of the block from its stored fields. The
// stored Hash field is never consulted.
func (b Block) ComputeHash(hasher digest.Hasher) (string, error) {
	data, err := canonical.EncodeBlock(b.fields())
	if err != nil {
		return "", err
	}

	return hasher.Sum(data), nil
}

// fields returns the part of the block covered by the hash.
func (b Block) fields() canonical.Fields {
	return canonical.Fields{
		Index:     b.Index,
		TimeStamp: b.TimeStamp,
		Payload:   map[string]any(b.Payload),
		PrevHash:  b.PrevHash,
		Nonce:     b.Nonce,
	}
}

// clone returns a copy of the block that shares no payload memory.
func (b Block) clone() Block {
	b.Payload = clonePayload(b.Payload)
	return b
}

// =============================================================================

// BlockData represents the record exchanged with a storage adapter. The
// field order is fixed for store compatibility: index, timestamp, payload,
// previous hash, hash and nonce.
type BlockData struct {
	Index     uint64 `json:"index"`
	TimeStamp uint64 `json:"timestamp"`
	Payload   string `json:"payload"` // Canonical encoding of the payload.
	PrevHash  string `json:"previous_hash"`
	Hash      string `json:"hash"`
	Nonce     uint64 `json:"nonce"`
}

// NewBlockData constructs the record to hand to a storage adapter.
func NewBlockData(b Block) (BlockData, error) {
	payload, err := canonical.Encode(map[string]any(b.Payload))
	if err != nil {
		return BlockData{}, err
	}

	bd := BlockData{
		Index:     b.Index,
		TimeStamp: b.TimeStamp,
		Payload:   string(payload),
		PrevHash:  b.PrevHash,
		Hash:      b.Hash,
		Nonce:     b.Nonce,
	}

	return bd, nil
}

// ToBlock converts a stored record back into a Block. The stored hash and
// nonce are taken as given and are not recomputed.
func ToBlock(bd BlockData) (Block, error) {
	payload, err := canonical.Decode([]byte(bd.Payload))
	if err != nil {
		return Block{}, fmt.Errorf("block %d: %w", bd.Index, err)
	}

	b := Block{
		Index:     bd.Index,
		TimeStamp: bd.TimeStamp,
		Payload:   payload,
		PrevHash:  bd.PrevHash,
		Nonce:     bd.Nonce,
		Hash:      bd.Hash,
	}

	return b, nil
}

// =============================================================================

// normalizePayload runs the payload through the canonical encoding and back.
// The result shares no memory with the caller's value and holds exactly what
// a store will hand back on load, so hashes never depend on Go types.
func normalizePayload(p Payload) (Payload, error) {
	data, err := canonical.Encode(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	m, err := canonical.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	return m, nil
}

func clonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}

	return cloneValue(map[string]any(p)).(map[string]any)
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = cloneValue(e)
		}
		return m

	case []any:
		s := make([]any, len(v))
		for i, e := range v {
			s[i] = cloneValue(e)
		}
		return s
	}

	return v
}
