package bsdrive

import (
	"bytes"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
)

type (
	// Blob is the type of a blob.
	Blob []byte

	// Ref is the ref of a blob: its sha256 hash.
	Ref [sha256.Size]byte
)

// Ref computes the Ref of a blob.
func (b Blob) Ref() Ref {
	return sha256.Sum256(b)
}

// Zero is the zero value of a Ref.
var Zero Ref

func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

func (r Ref) Less(other Ref) bool {
	return bytes.Compare(r[:], other[:]) < 0
}

func (r Ref) IsZero() bool {
	return r == Zero
}

// FromHex parses s into r.
// It fails with a *ValidationError unless s is exactly 64 hex digits.
func (r *Ref) FromHex(s string) error {
	if len(s) != 2*sha256.Size {
		return &ValidationError{Input: s, Reason: fmt.Sprintf("length %d, want %d", len(s), 2*sha256.Size)}
	}
	if _, err := hex.Decode(r[:], []byte(s)); err != nil {
		return &ValidationError{Input: s, Reason: err.Error()}
	}
	return nil
}

// Scan implements sql.Scanner.
func (r *Ref) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into Ref", src)
	}
	if len(b) != len(r) {
		return fmt.Errorf("cannot scan %d bytes into Ref", len(b))
	}
	copy(r[:], b)
	return nil
}

// Value implements driver.Valuer.
func (r Ref) Value() (driver.Value, error) {
	return r[:], nil
}

func RefFromBytes(b []byte) Ref {
	var out Ref
	copy(out[:], b)
	return out
}

func RefFromHex(s string) (Ref, error) {
	var out Ref
	err := out.FromHex(s)
	return out, err
}

// ValidationError is the error for malformed user input,
// such as a drive key of the wrong length.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value %q: %s", e.Input, e.Reason)
}
