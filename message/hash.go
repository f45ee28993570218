package message

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

// HashSize 区块/交易哈希长度
const HashSize = 32

// Hash 区块头哈希或交易id
type Hash [HashSize]byte

// ZeroHash 空哈希，创世区块的父哈希
var ZeroHash Hash

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// ParseHash 解析十六进制编码的哈希
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, errors.Wrap(err, "decode hash")
	}
	if len(b) != HashSize {
		return h, errors.Errorf("invalid hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// MarshalText 以十六进制输出，用于 json
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
