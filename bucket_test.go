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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketCoversHalfOpen(t *testing.T) {
	var lo, hi ID
	hi[19] = 0x80 // hi = 2^159, well short of idMax

	b := newBucket(lo, hi)
	assert.True(t, b.covers(lo))
	assert.True(t, b.covers(ID{19: 0x7f}))
	assert.False(t, b.covers(hi)) // exclusive upper bound
}

func TestBucketRootCoversMax(t *testing.T) {
	b := newBucket(ZeroID, idMax())
	assert.True(t, b.covers(idMax()))
}

func TestBucketAppendAndMoveToTail(t *testing.T) {
	b := newBucket(ZeroID, idMax())
	n1 := Node{ID: ID{0: 1}}
	n2 := Node{ID: ID{0: 2}}
	b.append(n1)
	b.append(n2)

	require.Equal(t, 2, len(b.nodes))
	assert.Equal(t, n1.ID, b.head().ID)

	idx := b.indexOf(n1.ID)
	require.GreaterOrEqual(t, idx, 0)
	b.moveToTail(idx, n1)

	assert.Equal(t, n2.ID, b.head().ID)
	assert.Equal(t, n1.ID, b.nodes[len(b.nodes)-1].ID)
}

func TestBucketFull(t *testing.T) {
	b := newBucket(ZeroID, idMax())
	for i := 0; i < K; i++ {
		var id ID
		id[0] = byte(i + 1)
		b.append(Node{ID: id})
	}
	assert.True(t, b.full(K))
}

func TestBucketSplitTiles(t *testing.T) {
	b := newBucket(ZeroID, idMax())
	low := ID{19: 0x10}
	high := ID{19: 0xf0}
	b.append(Node{ID: low})
	b.append(Node{ID: high})

	mid := idMidpoint(b.lo, b.hi)
	left, right := b.split(mid)

	assert.Equal(t, b.lo, left.lo)
	assert.Equal(t, mid, left.hi)
	assert.Equal(t, mid, right.lo)
	assert.Equal(t, b.hi, right.hi)

	assert.Equal(t, 1, len(left.nodes))
	assert.Equal(t, 1, len(right.nodes))
	assert.True(t, left.covers(low))
	assert.True(t, right.covers(high))
}

func TestBucketReplacementSlot(t *testing.T) {
	b := newBucket(ZeroID, idMax())
	_, ok := b.takeReplacement()
	assert.False(t, ok)

	n1 := Node{ID: ID{0: 1}}
	n2 := Node{ID: ID{0: 2}}
	b.setReplacement(n1)
	b.setReplacement(n2) // newest wins

	got, ok := b.takeReplacement()
	require.True(t, ok)
	assert.Equal(t, n2.ID, got.ID)

	_, ok = b.takeReplacement()
	assert.False(t, ok)
}
