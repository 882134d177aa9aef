// Copyright 2024 Terminos Storage Protocol
// This file is part of the tos library.
//
// The tos library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The tos library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the tos library. If not, see <http://www.gnu.org/licenses/>.

package kad

import (
	"crypto/rand"
	"fmt"
	"math/big"

	base32 "github.com/multiformats/go-base32"
)

// IDBytes is the width of a node identifier: 160 bits.
const IDBytes = 20

// ID is a 160-bit unsigned node identifier. It is an immutable value
// type: every operation returns a new ID rather than mutating in
// place.
type ID [IDBytes]byte

// ZeroID is the smallest possible ID.
var ZeroID ID

// RandomID returns a cryptographically random ID.
func RandomID() ID {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		panic("kad: failed to read random bytes: " + err.Error())
	}
	return id
}

// ParseID decodes the base32 text form produced by ID.String.
func ParseID(s string) (ID, error) {
	b, err := base32.RawStdEncoding.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("kad: bad id %q: %w", s, err)
	}
	if len(b) != IDBytes {
		return ID{}, fmt.Errorf("kad: bad id %q: want %d bytes, got %d", s, IDBytes, len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// ParseIDDecimal parses a base-10 integer string into an ID, the form
// the CLI's --id flag accepts. Returns an error if the value is
// negative or does not fit in 160 bits.
func ParseIDDecimal(s string) (ID, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return ID{}, fmt.Errorf("kad: bad decimal id %q", s)
	}
	if n.Sign() < 0 {
		return ID{}, fmt.Errorf("kad: id %q is negative", s)
	}
	be := n.Bytes() // big-endian, no leading zero byte
	if len(be) > IDBytes {
		return ID{}, fmt.Errorf("kad: id %q exceeds %d bytes", s, IDBytes)
	}
	var id ID
	for i, b := range be {
		id[len(be)-1-i] = b // reverse into our little-endian layout
	}
	return id, nil
}

// String renders the id in its little-endian-byte base32 text form,
// matching the wire encoding used by ID.Bytes.
func (id ID) String() string {
	return base32.RawStdEncoding.EncodeToString(id[:])
}

// Bytes returns the 20 raw bytes of the id, little-endian.
func (id ID) Bytes() []byte {
	b := make([]byte, IDBytes)
	copy(b, id[:])
	return b
}

// Equal reports whether two ids are identical.
func (id ID) Equal(other ID) bool {
	return id == other
}

// Less reports whether id is strictly less than other, by unsigned
// magnitude (big-endian bit order of the conceptual 160-bit integer;
// the byte array itself is stored little-endian, so comparison walks
// from the most significant byte down).
func (id ID) Less(other ID) bool {
	for i := IDBytes - 1; i >= 0; i-- {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// XOR returns the bitwise XOR of id and other, interpreted as the
// Kademlia distance metric.
func (id ID) XOR(other ID) ID {
	var out ID
	for i := range id {
		out[i] = id[i] ^ other[i]
	}
	return out
}

// CommonPrefixLen returns the number of leading bits that id and
// other share, scanning from the most significant bit of the
// conceptual 160-bit integer.
func (id ID) CommonPrefixLen(other ID) int {
	var prefix int
	for i := IDBytes - 1; i >= 0; i-- {
		d := id[i] ^ other[i]
		if d == 0 {
			prefix += 8
			continue
		}
		prefix += leadingZeros8(d)
		return prefix
	}
	return prefix
}

func leadingZeros8(b byte) int {
	n := 0
	for mask := byte(1 << 7); mask != 0; mask >>= 1 {
		if b&mask != 0 {
			break
		}
		n++
	}
	return n
}

// idMidpoint returns the midpoint of the half-open range [lo, hi),
// i.e. floor((lo+hi)/2) computed over the 160-bit unsigned integers.
func idMidpoint(lo, hi ID) ID {
	var sum [IDBytes + 1]byte // extra byte absorbs the carry out of bit 159
	var carry uint16
	for i := 0; i < IDBytes; i++ {
		s := uint16(lo[i]) + uint16(hi[i]) + carry
		sum[i] = byte(s)
		carry = s >> 8
	}
	sum[IDBytes] = byte(carry)

	// divide sum (161 bits, little-endian) by 2: shift right by one bit
	var mid ID
	var rem byte
	for i := IDBytes; i >= 0; i-- {
		cur := sum[i]
		next := (cur >> 1) | (rem << 7)
		rem = cur & 1
		if i < IDBytes {
			mid[i] = next
		}
	}
	return mid
}

// idMax returns the id consisting of all set bits (2^160 - 1), the
// largest representable id. The root bucket's range ends at idMax and
// covers it inclusively (see bucket.covers).
func idMax() ID {
	var id ID
	for i := range id {
		id[i] = 0xff
	}
	return id
}
