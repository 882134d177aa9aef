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
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// pinger is the liveness probe the routing table uses to decide
// whether to evict a bucket's head. The RPC transport satisfies this
// via its ping handler; kept as an interface so the table can be
// tested without a live socket.
type pinger interface {
	ping(ctx context.Context, addr Addr) error
}

// routingTable holds every bucket known to this node, split
// dynamically starting from a single bucket covering the whole id
// space. Buckets come into existence only as splits demand them,
// rather than as a fixed array sized to the id length.
type routingTable struct {
	mu    sync.Mutex
	local Node
	ping  pinger
	log   *zap.Logger

	buckets []*bucket // kept sorted by lo ascending; ranges tile the space
}

func newRoutingTable(local Node, p pinger, log *zap.Logger) *routingTable {
	return &routingTable{
		local:   local,
		ping:    p,
		log:     log,
		buckets: []*bucket{newBucket(ZeroID, idMax())},
	}
}

// bucketIndex returns the index of the bucket covering id.
func (t *routingTable) bucketIndex(id ID) int {
	for i, b := range t.buckets {
		if b.covers(id) {
			return i
		}
	}
	panic("kad: no bucket covers id; range tiling invariant violated")
}

// homeIndex returns the index of the bucket covering the local id.
func (t *routingTable) homeIndex() int {
	return t.bucketIndex(t.local.ID)
}

// update ingests an observation of new, per the single-step algorithm
// in step 4.4: move-to-tail on existing membership, append into a
// non-full bucket, split a full home bucket and retry, or probe the
// head of a full non-home bucket and evict or drop. The recursive
// retry after a split is rewritten as a loop since it is always
// tail-recursive and bounded by the id width.
func (t *routingTable) update(ctx context.Context, new Node) {
	if new.ID.Equal(t.local.ID) {
		return
	}

	for {
		t.mu.Lock()
		i := t.bucketIndex(new.ID)
		b := t.buckets[i]

		if idx := b.indexOf(new.ID); idx >= 0 {
			b.moveToTail(idx, new)
			t.mu.Unlock()
			return
		}

		if !b.full(K) {
			b.append(new)
			t.mu.Unlock()
			return
		}

		if b.covers(t.local.ID) {
			mid := idMidpoint(b.lo, b.hi)
			left, right := b.split(mid)
			newBuckets := make([]*bucket, 0, len(t.buckets)+1)
			newBuckets = append(newBuckets, t.buckets[:i]...)
			newBuckets = append(newBuckets, left, right)
			newBuckets = append(newBuckets, t.buckets[i+1:]...)
			t.buckets = newBuckets
			t.mu.Unlock()
			t.log.Debug("split bucket", zap.Int("index", i), zap.Int("buckets", len(newBuckets)))
			continue // retry update(new) against the freshly split buckets
		}

		head := b.head()
		t.mu.Unlock()

		if err := t.ping.ping(ctx, head.Addr); err == nil {
			t.mu.Lock()
			i = t.bucketIndex(new.ID)
			b = t.buckets[i]
			if idx := b.indexOf(head.ID); idx >= 0 {
				b.moveToTail(idx, head)
			}
			b.setReplacement(new)
			t.mu.Unlock()
			return
		}

		t.mu.Lock()
		i = t.bucketIndex(new.ID)
		b = t.buckets[i]
		if idx := b.indexOf(head.ID); idx >= 0 {
			b.removeHead()
		}
		// new fills the single slot the eviction vacated; drop whatever
		// was cached as a replacement candidate for that same slot
		// instead of also appending it, or the bucket grows past k.
		b.takeReplacement()
		b.append(new)
		t.mu.Unlock()
		t.log.Debug("evicted unreachable bucket head", zap.Stringer("head", head), zap.Stringer("new", new))
		return
	}
}

// iter returns a flat snapshot of every node across every bucket, in
// bucket order.
func (t *routingTable) iter() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Node
	for _, b := range t.buckets {
		out = append(out, b.nodes...)
	}
	return out
}

// nearest returns the k nodes (excluding local and excl) closest to id
// by XOR distance, stably ordered (ties broken by iteration order).
func (t *routingTable) nearest(id ID, k int, excl ID) []Node {
	all := t.iter()
	candidates := make([]Node, 0, len(all))
	for _, n := range all {
		if n.ID.Equal(t.local.ID) || n.ID.Equal(excl) {
			continue
		}
		candidates = append(candidates, n)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di := candidates[i].ID.XOR(id)
		dj := candidates[j].ID.XOR(id)
		return di.Less(dj)
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}
