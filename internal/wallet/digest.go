// Package wallet verifies wallet signatures and holds the processor's signing key.
package wallet

import (
	"golang.org/x/crypto/blake2b"

	"Mist/internal/bcs"
	"Mist/internal/ledger"
)

// Scheme flags as they appear in the first byte of a serialized signature.
const (
	FlagEd25519   byte = 0x00
	FlagSecp256k1 byte = 0x01
	FlagSecp256r1 byte = 0x02
)

// Intent scopes prepended to signed payloads.
var (
	scopeTransaction     = []byte{0, 0, 0}
	scopePersonalMessage = []byte{3, 0, 0}
)

// PersonalMessageDigest returns the 32-byte digest a wallet signs for a
// personal message: BLAKE2b-256([3,0,0] || ULEB128(len(msg)) || msg).
func PersonalMessageDigest(msg []byte) [32]byte {
	buf := make([]byte, 0, len(scopePersonalMessage)+len(msg)+5)
	buf = append(buf, scopePersonalMessage...)
	buf = append(buf, bcs.VecBytes(msg)...)

	return blake2b.Sum256(buf)
}

// TransactionDigest returns the digest signed for a transaction: BLAKE2b-256([0,0,0] || txBytes).
func TransactionDigest(txBytes []byte) [32]byte {
	buf := make([]byte, 0, len(scopeTransaction)+len(txBytes))
	buf = append(buf, scopeTransaction...)
	buf = append(buf, txBytes...)

	return blake2b.Sum256(buf)
}

// DeriveAddress returns BLAKE2b-256(flag || publicKey).
func DeriveAddress(flag byte, publicKey []byte) ledger.Address {
	buf := make([]byte, 0, 1+len(publicKey))
	buf = append(buf, flag)
	buf = append(buf, publicKey...)

	return ledger.Address(blake2b.Sum256(buf))
}
