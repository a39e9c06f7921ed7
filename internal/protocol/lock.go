package protocol

import (
	"crypto/rand"
	"math/big"
)

// lockSpecialBytes are the bytes the key transform must escape, per the
// public NMDC Lock-to-Key specification (not present in the filtered
// original_source/ snapshot's cdcproto.h — cdcproto.h only declares the
// Lock2Key signature, the .cpp body wasn't retrieved — so this is grounded
// directly on the well-known public NMDC protocol algorithm, the same one
// every NMDC-compatible client and hub implements byte-for-byte).
var lockSpecialBytes = [6]byte{0, 5, 36, 96, 124, 126}

// Lock2Key computes the canonical NMDC key for a given lock string, with
// its special bytes already in "/%DCNnnn%/" form as a $Key carries them on
// the wire (the lock-key escaping set is different from chat-text
// escaping — see escapeLockBytes).
func Lock2Key(lock []byte) []byte {
	n := len(lock)
	if n < 2 {
		return nil
	}
	pre := make([]byte, n)
	pre[0] = lock[0] ^ lock[n-1] ^ lock[n-2] ^ 5
	for i := 1; i < n; i++ {
		pre[i] = lock[i] ^ lock[i-1]
	}

	key := make([]byte, n)
	for i := 0; i < n; i++ {
		key[i] = rotateNibbles(pre[i])
	}

	return escapeLockBytes(key)
}

// Key2Lock is the exact inverse of Lock2Key: given a byte string, it finds
// the unique lock L such that Lock2Key(L) == the input (after unescaping).
// Used only to state the round-trip law (spec §8): Lock2Key(Key2Lock(L)) ==
// L for any L, since Lock2Key is a bijection on strings of fixed length.
func Key2Lock(s []byte) []byte {
	key := unescapeLockBytes(s)
	n := len(key)
	if n < 2 {
		return key
	}

	pre := make([]byte, n)
	for i := 0; i < n; i++ {
		pre[i] = rotateNibbles(key[i])
	}

	cumulative := make([]byte, n) // cumulative[i] = XOR of pre[1..i], cumulative[0] = 0
	var acc byte
	for i := 1; i < n; i++ {
		acc ^= pre[i]
		cumulative[i] = acc
	}

	x := pre[0] ^ cumulative[n-1] ^ cumulative[n-2] ^ 5

	lock := make([]byte, n)
	lock[0] = x
	for i := 1; i < n; i++ {
		lock[i] = x ^ cumulative[i]
	}
	return lock
}

func rotateNibbles(b byte) byte {
	return (b << 4) | (b >> 4)
}

func escapeLockBytes(key []byte) []byte {
	out := make([]byte, 0, len(key)+4)
	for _, b := range key {
		if isLockSpecial(b) {
			out = append(out, '/', '%', 'D', 'C', 'N')
			out = append(out, pad3(b)...)
			out = append(out, '%', '/')
			continue
		}
		out = append(out, b)
	}
	return out
}

func unescapeLockBytes(s []byte) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		if b, n, ok := matchDCNEntity(s[i:]); ok {
			out = append(out, b)
			i += n
			continue
		}
		out = append(out, s[i])
		i++
	}
	return out
}

func isLockSpecial(b byte) bool {
	for _, s := range lockSpecialBytes {
		if b == s {
			return true
		}
	}
	return false
}

// lockAlphabet excludes space, '$', and '|' so the generated lock itself
// never needs in-band escaping when sent inside a "$Lock ...|" frame.
const lockAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateLock returns a fresh "EXTENDEDPROTOCOL"-prefixed lock string of
// the given total length (minimum 16, the prefix length, plus at least 2
// random bytes so the ^lock[-1]^lock[-2] step in Lock2Key has distinct
// inputs). The EXTENDEDPROTOCOL prefix signals extended-protocol support to
// clients, per common NMDC convention.
func GenerateLock(totalLen int) (string, error) {
	const prefix = "EXTENDEDPROTOCOL"
	if totalLen < len(prefix)+2 {
		totalLen = len(prefix) + 2
	}
	suffixLen := totalLen - len(prefix)
	suffix := make([]byte, suffixLen)
	for i := range suffix {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(lockAlphabet))))
		if err != nil {
			return "", err
		}
		suffix[i] = lockAlphabet[idx.Int64()]
	}
	return prefix + string(suffix), nil
}
