// Package digest provides the hash functions used to identify blocks.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Hasher represents the behavior required to turn encoded block bytes into
// a fixed length hex identifier. Implementations must be pure.
type Hasher interface {
	Name() string
	Sum(data []byte) string
	HexLen() int
}

// Set of hashers supported by the chain.
var (
	SHA256    Hasher = sha256Hasher{}
	Keccak256 Hasher = keccakHasher{}
)

// Default is the hasher used when a chain is not configured with one.
var Default = SHA256

// Lookup returns the hasher registered under the specified name. The empty
// string resolves to the default hasher.
func Lookup(name string) (Hasher, error) {
	switch strings.ToLower(name) {
	case "":
		return Default, nil
	case SHA256.Name():
		return SHA256, nil
	case Keccak256.Name():
		return Keccak256, nil
	}

	return nil, fmt.Errorf("unknown hash algorithm %q", name)
}

// =============================================================================

type sha256Hasher struct{}

func (sha256Hasher) Name() string { return "sha256" }
func (sha256Hasher) HexLen() int  { return sha256.Size * 2 }

// Sum returns the lowercase hex SHA-256 digest of data.
func (sha256Hasher) Sum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

type keccakHasher struct{}

func (keccakHasher) Name() string { return "keccak256" }
func (keccakHasher) HexLen() int  { return 64 }

// Sum returns the lowercase hex Keccak-256 digest of data, the hash Ethereum
// uses, so chains anchored on a contract store can share one algorithm.
func (keccakHasher) Sum(data []byte) string {
	return hex.EncodeToString(crypto.Keccak256(data))
}
