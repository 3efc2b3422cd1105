package chain

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/digest"
)

// Violation identifies which chain rule a block broke.
type Violation string

// Set of rules checked by Verify.
const (
	ViolationSequence Violation = "sequence" // Index doesn't match the position.
	ViolationGenesis  Violation = "genesis"  // Genesis previous hash isn't the sentinel.
	ViolationLinkage  Violation = "linkage"  // Previous hash doesn't match the predecessor.
	ViolationEncoding Violation = "encoding" // Payload can no longer be encoded.
	ViolationDigest   Violation = "digest"   // Stored hash doesn't match the fields.
	ViolationWork     Violation = "work"     // Hash doesn't solve the difficulty.
)

// ValidationError is returned by Verify for the first block that breaks a
// chain rule.
type ValidationError struct {
	Index     uint64
	Violation Violation
	Detail    string
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	return fmt.Sprintf("block %d: %s: %s", ve.Index, ve.Violation, ve.Detail)
}

// AsValidationError returns the ValidationError in the error chain, if any.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return nil, false
	}
	return ve, true
}

// =============================================================================

// Validate reports whether the whole chain is intact.
func (c *Chain) Validate() bool {
	return c.Verify() == nil
}

// Verify walks the chain and returns a ValidationError for the first block
// that breaks a rule. Every hash is recomputed from the stored fields.
func (c *Chain) Verify() error {
	return verify(c.snapshot(), c.difficulty, c.hasher)
}

// VerifyBlocks applies the chain rules to blocks read outside of a Chain,
// such as the records of a storage adapter.
func VerifyBlocks(blocks []Block, difficulty uint, hasher digest.Hasher) error {
	if hasher == nil {
		hasher = digest.Default
	}
	return verify(blocks, difficulty, hasher)
}

// verify is a pure function of its inputs so it can run concurrently with
// other readers.
func verify(blocks []Block, difficulty uint, hasher digest.Hasher) error {
	for i, block := range blocks {
		idx := uint64(i)

		if block.Index != idx {
			return &ValidationError{Index: idx, Violation: ViolationSequence, Detail: fmt.Sprintf("got index %d", block.Index)}
		}

		switch {
		case i == 0 && block.PrevHash != GenesisPrevHash:
			return &ValidationError{Index: idx, Violation: ViolationGenesis, Detail: fmt.Sprintf("got previous hash %q, exp %q", block.PrevHash, GenesisPrevHash)}

		case i > 0 && block.PrevHash != blocks[i-1].Hash:
			return &ValidationError{Index: idx, Violation: ViolationLinkage, Detail: fmt.Sprintf("got previous hash %s, exp %s", block.PrevHash, blocks[i-1].Hash)}
		}

		hash, err := block.ComputeHash(hasher)
		if err != nil {
			return &ValidationError{Index: idx, Violation: ViolationEncoding, Detail: err.Error()}
		}

		if hash != block.Hash {
			return &ValidationError{Index: idx, Violation: ViolationDigest, Detail: fmt.Sprintf("got hash %s, exp %s", block.Hash, hash)}
		}

		if !IsHashSolved(difficulty, block.Hash) {
			return &ValidationError{Index: idx, Violation: ViolationWork, Detail: fmt.Sprintf("hash %s doesn't solve difficulty %d", block.Hash, difficulty)}
		}
	}

	return nil
}
