package domain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"
)

// MaxSeats is the width of an occupancy bitmap.
const MaxSeats = 256

// Bitmap is a 256-bit occupancy set. Bit k of the little-endian word array
// represents seat k+1; a set bit means booked. Seat arguments are 1-based
// and must already be range checked by the caller.
type Bitmap [4]uint64

func (b Bitmap) Has(seat int) bool {
	k := seat - 1
	return b[k>>6]&(1<<(uint(k)&63)) != 0
}

func (b *Bitmap) Set(seat int) {
	k := seat - 1
	b[k>>6] |= 1 << (uint(k) & 63)
}

func (b *Bitmap) Clear(seat int) {
	k := seat - 1
	b[k>>6] &^= 1 << (uint(k) & 63)
}

func (b Bitmap) Count() int {
	return bits.OnesCount64(b[0]) + bits.OnesCount64(b[1]) + bits.OnesCount64(b[2]) + bits.OnesCount64(b[3])
}

func (b Bitmap) IsZero() bool { return b == Bitmap{} }

// Booked lists booked seats among the first total, ascending.
func (b Bitmap) Booked(total int) []int { return b.scan(total, true) }

// Available lists free seats among the first total, ascending.
func (b Bitmap) Available(total int) []int { return b.scan(total, false) }

func (b Bitmap) scan(total int, booked bool) []int {
	out := make([]int, 0, total)
	for seat := 1; seat <= total; seat++ {
		if b.Has(seat) == booked {
			out = append(out, seat)
		}
	}
	return out
}

// MarshalText renders the bitmap as a 0x-prefixed 256-bit big-endian hex
// integer, the same shape as the ledger's native uint256.
func (b Bitmap) MarshalText() ([]byte, error) {
	var raw [32]byte
	for i := 0; i < 4; i++ {
		binary.BigEndian.PutUint64(raw[(3-i)*8:], b[i])
	}
	out := make([]byte, 2+hex.EncodedLen(len(raw)))
	copy(out, "0x")
	hex.Encode(out[2:], raw[:])
	return out, nil
}

func (b *Bitmap) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s) > 64 {
		return fmt.Errorf("bitmap wider than %d bits", MaxSeats)
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode bitmap: %w", err)
	}
	var raw [32]byte
	copy(raw[32-len(decoded):], decoded)
	for i := 0; i < 4; i++ {
		b[i] = binary.BigEndian.Uint64(raw[(3-i)*8:])
	}
	return nil
}
