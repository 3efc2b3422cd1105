package chaingrp

import (
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
)

type block struct {
	Index     uint64        `json:"index"`
	TimeStamp uint64        `json:"timestamp"`
	DateTime  string        `json:"datetime"`
	Payload   chain.Payload `json:"payload"`
	PrevHash  string        `json:"previous_hash"`
	Nonce     uint64        `json:"nonce"`
	Hash      string        `json:"hash"`
}

func toBlock(b chain.Block) block {
	return block{
		Index:     b.Index,
		TimeStamp: b.TimeStamp,
		DateTime:  time.Unix(int64(b.TimeStamp), 0).UTC().Format(time.RFC3339),
		Payload:   b.Payload,
		PrevHash:  b.PrevHash,
		Nonce:     b.Nonce,
		Hash:      b.Hash,
	}
}

func toBlocks(blocks []chain.Block) []block {
	out := make([]block, len(blocks))
	for i, b := range blocks {
		out[i] = toBlock(b)
	}
	return out
}

type summary struct {
	Name          string                  `json:"name"`
	TotalBlocks   int                     `json:"total_blocks"`
	IsValid       bool                    `json:"is_valid"`
	Difficulty    uint                    `json:"difficulty"`
	HashAlgorithm string                  `json:"hash_algorithm"`
	Encoding      string                  `json:"encoding"`
	LatestBlock   *block                  `json:"latest_block,omitempty"`
	Persistence   chain.PersistenceStatus `json:"persistence"`
}

func toSummary(name string, s chain.Summary) summary {
	sum := summary{
		Name:          name,
		TotalBlocks:   s.TotalBlocks,
		IsValid:       s.IsValid,
		Difficulty:    s.Difficulty,
		HashAlgorithm: s.HashAlgorithm,
		Encoding:      s.Encoding,
		Persistence:   s.Persistence,
	}

	if s.TotalBlocks > 0 {
		latest := toBlock(s.LatestBlock)
		sum.LatestBlock = &latest
	}

	return sum
}

type chainResponse struct {
	Chain   []block `json:"chain"`
	Summary summary `json:"summary"`
}

type blockResponse struct {
	Block block `json:"block"`
}

type validation struct {
	IsValid           bool            `json:"is_valid"`
	Message           string          `json:"message"`
	FirstInvalidIndex *uint64         `json:"first_invalid_index,omitempty"`
	Violation         chain.Violation `json:"violation,omitempty"`
	Detail            string          `json:"detail,omitempty"`
}

// NewBlock is what we require from clients when adding a block.
type NewBlock struct {
	Payload chain.Payload `json:"payload" validate:"required"`
}
