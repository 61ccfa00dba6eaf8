package cafs

import (
	"encoding/hex"
	"fmt"
)

const (
	// KeySize for the blake2b algo
	KeySize = 64

	// KeySizeHex for the hex representation of a key
	KeySizeHex = 2 * KeySize
)

// Key identifies a storage node by the hash of its bytes
type Key [KeySize]byte

// NewKey creates a new key from raw hash bytes
func NewKey(data []byte) (Key, error) {
	var k Key
	if copy(k[:], data) != KeySize {
		return Key{}, &BadKeySize{Key: data}
	}
	return k, nil
}

// KeyFromString creates a key from its hex representation
func KeyFromString(s string) (Key, error) {
	if len(s) != KeySizeHex {
		return Key{}, &BadKeySize{Key: []byte(s)}
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, err
	}
	return NewKey(data)
}

// MustNewKey creates a new key from raw hash bytes but panics on error
func MustNewKey(data []byte) Key {
	k, err := NewKey(data)
	if err != nil {
		panic(err.Error())
	}
	return k
}

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// BadKeySize is returned when a key to create has an invalid size
type BadKeySize struct {
	Key []byte
}

func (b *BadKeySize) Error() string {
	return fmt.Sprintf("%x has invalid size of %d, expected %d", b.Key, len(b.Key), KeySize)
}
