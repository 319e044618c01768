package drive

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
)

// Key identifies a drive.
// It is 32 bytes, written as 64 hex digits.
type Key [32]byte

// NewKey generates a random Key.
func NewKey() (Key, error) {
	var k Key
	_, err := rand.Read(k[:])
	return k, errors.Wrap(err, "generating drive key")
}

// ParseKey parses the hex form of a Key.
// It fails with a *bsdrive.ValidationError unless s is exactly 64 hex digits.
func ParseKey(s string) (Key, error) {
	var r bsdrive.Ref
	if err := r.FromHex(s); err != nil {
		return Key{}, err
	}
	return Key(r), nil
}

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// DiscoveryKey is the public name under which peers of the drive find each other.
// It is derived from k but does not reveal it.
func (k Key) DiscoveryKey() [32]byte {
	h := sha256.New()
	h.Write([]byte("bsdrive discovery"))
	h.Write(k[:])

	var result [32]byte
	h.Sum(result[:0])
	return result
}
