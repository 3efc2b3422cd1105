package chain

import (
	"context"

	"github.com/ardanlabs/powchain/foundation/blockchain/canonical"
	"github.com/ardanlabs/powchain/foundation/blockchain/digest"
)

// DefaultDifficulty is the number of leading zeros required by a chain
// unless configured otherwise.
const DefaultDifficulty = 2

// cancelCheckInterval sets how many attempts are made between checks of the
// context. Must be a power of two.
const cancelCheckInterval = 1 << 10

// Mine performs the proof of work for the block. Nonces are tried in
// increasing order starting at the block's current nonce until the digest
// begins with difficulty zeros. On success the block carries the solving
// nonce and its hash.
//
// A nil hasher uses digest.Default. The search has no iteration cap. Expected work is around 16^difficulty
// hashes and the context is the only way to stop it early.
func Mine(ctx context.Context, b *Block, difficulty uint, hasher digest.Hasher, evHandler EventHandler) error {
	if hasher == nil {
		hasher = digest.Default
	}

	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	// The payload and every other field stay fixed during the search, so
	// only the nonce needs to be encoded on each attempt.
	tmpl, err := canonical.NewTemplate(b.fields())
	if err != nil {
		return err
	}

	ev("chain: Mine: MINING: started: blk[%d]: difficulty[%d]", b.Index, difficulty)

	var buf []byte
	var attempts uint64
	for nonce := b.Nonce; ; nonce++ {
		if attempts&(cancelCheckInterval-1) == 0 && ctx.Err() != nil {
			ev("chain: Mine: MINING: CANCELLED: blk[%d]: attempts[%d]", b.Index, attempts)
			return ctx.Err()
		}

		attempts++
		if attempts%1_000_000 == 0 {
			ev("chain: Mine: MINING: blk[%d]: attempts[%d]", b.Index, attempts)
		}

		buf = tmpl.AppendNonce(buf[:0], nonce)
		hash := hasher.Sum(buf)
		if !IsHashSolved(difficulty, hash) {
			continue
		}

		b.Nonce = nonce
		b.Hash = hash

		ev("chain: Mine: MINING: SOLVED: blk[%d]: hash[%s]: attempts[%d]", b.Index, hash, attempts)
		return nil
	}
}

// IsHashSolved checks the hash begins with difficulty zero characters.
func IsHashSolved(difficulty uint, hash string) bool {
	if uint(len(hash)) < difficulty {
		return false
	}

	for i := range difficulty {
		if hash[i] != '0' {
			return false
		}
	}

	return true
}
