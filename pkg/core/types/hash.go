package types

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Hash is a double-SHA256 block hash. Like bitcoin, its string form is byte-reversed.
type Hash = chainhash.Hash

// ZeroHash is the all-zeroes hash, used as the PrevBlock of the genesis block.
var ZeroHash Hash

// HashFromBytes creates a Hash from a byte slice in internal byte order.
func HashFromBytes(b []byte) (Hash, error) {
	h, err := chainhash.NewHash(b)
	if err != nil {
		return Hash{}, err
	}
	return *h, nil
}

// HashFromHex parses a hash in its byte-reversed display form.
func HashFromHex(s string) (Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return *h, nil
}
