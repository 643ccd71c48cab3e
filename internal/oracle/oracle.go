// Package oracle wraps a fixed-length hash digest as a sequentially consumed
// stream of perturbation bytes. Modeling the digest as an explicit cursor makes
// exhaustion a first-class error instead of an out-of-bounds access.
package oracle

import (
	"crypto/sha1"
	"errors"
	"strconv"
)

// DigestLen is the number of perturbation bytes one oracle can supply.
const DigestLen = sha1.Size

// ErrExhausted is returned when all digest bytes have been consumed.
var ErrExhausted = errors.New("oracle digest exhausted")

// Oracle is a single-use byte stream derived from a day's facts. One instance
// exists per (image, date) pair; re-running a day must start from a fresh
// instance so the byte sequence is reproduced from the beginning.
type Oracle struct {
	digest [DigestLen]byte
	cursor int
}

// New derives an oracle from the day's view count and keyword. The seed string
// is "<viewCount>-<keyword>" with the count rendered as a base-10 literal;
// the format is part of the output contract and must not change.
func New(viewCount int64, keyword string) *Oracle {
	seed := strconv.FormatInt(viewCount, 10) + "-" + keyword
	return &Oracle{digest: sha1.Sum([]byte(seed))}
}

// NewFromDigest builds an oracle over a precomputed 20-byte digest.
// Used by tests that need a known byte sequence.
func NewFromDigest(digest [DigestLen]byte) *Oracle {
	return &Oracle{digest: digest}
}

// NextByte returns the next digest byte and advances the cursor.
func (o *Oracle) NextByte() (byte, error) {
	if o.cursor >= DigestLen {
		return 0, ErrExhausted
	}
	b := o.digest[o.cursor]
	o.cursor++
	return b, nil
}

// Remaining returns how many bytes are still available.
func (o *Oracle) Remaining() int {
	return DigestLen - o.cursor
}

// Consumed returns how many bytes have been drawn so far.
func (o *Oracle) Consumed() int {
	return o.cursor
}
