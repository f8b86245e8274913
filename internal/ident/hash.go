package ident

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"math/big"
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/md4"
)

var hashFunctions = map[string]func() hash.Hash{
	"md4":      md4.New,
	"md5":      md5.New,
	"sha1":     sha1.New,
	"sha256":   sha256.New,
	"sha512":   sha512.New,
	"xxhash64": func() hash.Hash { return xxhash.New() },
	"blake2b": func() hash.Hash {
		h, _ := blake2b.New256(nil) // only fails for keys longer than 64 bytes
		return h
	},
}

// Alphabets for the base-N digests. Values above 36 skip look-alike
// characters the same way webpack's loader-utils does.
var baseAlphabets = map[int]string{
	26: "abcdefghijklmnopqrstuvwxyz",
	32: "123456789abcdefghjkmnpqrstuvwxyz",
	36: "0123456789abcdefghijklmnopqrstuvwxyz",
	49: "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ",
	52: "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
	58: "123456789abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ",
	62: "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
}

// HashFunctions lists the supported hash function names, sorted.
func HashFunctions() []string {
	names := make([]string, 0, len(hashFunctions))
	for name := range hashFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newHash(name string) (hash.Hash, error) {
	fn, ok := hashFunctions[name]
	if !ok {
		return nil, fmt.Errorf("unknown hash function %q", name)
	}
	return fn(), nil
}

func validDigest(digest string) bool {
	switch digest {
	case "hex", "base64":
		return true
	}
	var n int
	if _, err := fmt.Sscanf(digest, "base%d", &n); err != nil {
		return false
	}
	_, ok := baseAlphabets[n]
	return ok && digest == fmt.Sprintf("base%d", n)
}

// digest hashes data and encodes the sum, truncated to length characters
// when length is positive.
func digest(function, encoding string, length int, data ...string) (string, error) {
	h, err := newHash(function)
	if err != nil {
		return "", err
	}
	for _, d := range data {
		_, _ = h.Write([]byte(d))
	}
	sum := h.Sum(nil)

	var out string
	switch encoding {
	case "hex":
		out = hex.EncodeToString(sum)
	case "base64":
		out = base64.RawURLEncoding.EncodeToString(sum)
	default:
		if !validDigest(encoding) {
			return "", fmt.Errorf("unknown digest %q", encoding)
		}
		var n int
		_, _ = fmt.Sscanf(encoding, "base%d", &n)
		out = encodeBase(sum, baseAlphabets[n])
	}
	if length > 0 && len(out) > length {
		out = out[:length]
	}
	return out, nil
}

// encodeBase reads sum as a little-endian number and writes it in the
// given alphabet, most significant digit first.
func encodeBase(sum []byte, alphabet string) string {
	num := new(big.Int)
	for i := len(sum) - 1; i >= 0; i-- {
		num.Lsh(num, 8)
		num.Or(num, big.NewInt(int64(sum[i])))
	}
	base := big.NewInt(int64(len(alphabet)))
	mod := new(big.Int)
	var out []byte
	for num.Sign() > 0 {
		num.DivMod(num, base, mod)
		out = append(out, alphabet[mod.Int64()])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
