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

// bucket holds the nodes whose id falls in the half-open range
// [lo, hi). Nodes are kept in least-recently-seen-first order: index 0
// is the next liveness-probe candidate, the tail is the most recently
// seen node.
type bucket struct {
	lo, hi ID
	nodes  []Node

	// replacement is the most recent node to lose the eviction race
	// against this bucket's head because the head answered its probe.
	// It is bounded to a single slot, newest-wins. It is never promoted
	// into the bucket: when a later probe finds the head unreachable,
	// routingTable.update clears it and appends that probe's own new
	// node instead.
	replacement *Node
}

func newBucket(lo, hi ID) *bucket {
	return &bucket{lo: lo, hi: hi}
}

// covers reports whether id falls within the bucket's half-open range
// [lo, hi). The id space's literal maximum value has no representable
// successor, so the bucket whose hi is that maximum treats it as the
// closed upper bound; every other bucket's hi is a split midpoint
// strictly below the maximum and stays exclusive.
func (b *bucket) covers(id ID) bool {
	if id.Less(b.lo) {
		return false
	}
	if id.Less(b.hi) {
		return true
	}
	return b.hi.Equal(idMax())
}

func (b *bucket) full(k int) bool {
	return len(b.nodes) >= k
}

// indexOf returns the index of the node with the given id, or -1.
func (b *bucket) indexOf(id ID) int {
	for i, n := range b.nodes {
		if n.ID.Equal(id) {
			return i
		}
	}
	return -1
}

// moveToTail relocates the node at index i to the tail, marking it
// most-recently-seen, and refreshes its stored address.
func (b *bucket) moveToTail(i int, n Node) {
	b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
	b.nodes = append(b.nodes, n)
}

// append adds n at the tail unconditionally.
func (b *bucket) append(n Node) {
	b.nodes = append(b.nodes, n)
}

// head returns the least-recently-seen node, the next liveness-probe
// candidate.
func (b *bucket) head() Node {
	return b.nodes[0]
}

// removeHead drops the least-recently-seen node.
func (b *bucket) removeHead() {
	b.nodes = b.nodes[1:]
}

// setReplacement records n as the newest candidate displaced by a
// full, non-home bucket.
func (b *bucket) setReplacement(n Node) {
	cp := n
	b.replacement = &cp
}

// takeReplacement returns and clears the pending replacement, if any.
func (b *bucket) takeReplacement() (Node, bool) {
	if b.replacement == nil {
		return Node{}, false
	}
	n := *b.replacement
	b.replacement = nil
	return n, true
}

// split partitions the bucket's nodes into two new buckets at mid,
// per the half-open-range convention [lo, mid) and [mid, hi). mid is
// the caller-supplied midpoint so callers can reuse idMidpoint without
// recomputing it here.
func (b *bucket) split(mid ID) (left, right *bucket) {
	left = newBucket(b.lo, mid)
	right = newBucket(mid, b.hi)
	for _, n := range b.nodes {
		if n.ID.Less(mid) {
			left.append(n)
		} else {
			right.append(n)
		}
	}
	return left, right
}
