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
	"golang.org/x/sync/errgroup"
)

// lookupMode selects which RPC a lookup issues to each candidate.
type lookupMode int

const (
	modeFindNode lookupMode = iota
	modeFindValue
)

// lookupOutcome is the sum type the original's exception-based
// short-circuiting ("value found" / "node found" via raise) becomes
// in a statically typed target: exactly one of its fields is
// meaningful, selected by kind.
type lookupOutcome struct {
	kind  outcomeKind
	value []byte
	node  Node
	nodes []Node
}

type outcomeKind int

const (
	outcomeNodes outcomeKind = iota
	outcomeValue
	outcomeSingle
)

// caller abstracts the RPC transport's call surface so the lookup
// engine can be exercised with a fake in tests.
type caller interface {
	call(ctx context.Context, addr Addr, funcName string, args ...interface{}) (interface{}, error)
}

// lookupQueue is the bounded candidate structure §4.5 describes:
// at most k nodes not yet queried, ordered by ascending XOR distance
// to the target, duplicates suppressed by id.
type lookupQueue struct {
	mu      sync.Mutex
	target  ID
	k       int
	queried map[ID]bool
	present map[ID]bool
	seen    map[ID]Node // every node ever admitted, including ones later queried
	nodes   []Node
}

func newLookupQueue(target ID, k int, seed []Node) *lookupQueue {
	q := &lookupQueue{
		target:  target,
		k:       k,
		queried: make(map[ID]bool),
		present: make(map[ID]bool),
		seen:    make(map[ID]Node),
	}
	for _, n := range seed {
		q.insert(n)
	}
	return q
}

// insert admits n if it is not already queried or present, then
// truncates to the k closest.
func (q *lookupQueue) insert(n Node) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.insertLocked(n)
}

func (q *lookupQueue) insertLocked(n Node) {
	if q.queried[n.ID] || q.present[n.ID] {
		return
	}
	q.present[n.ID] = true
	q.seen[n.ID] = n
	q.nodes = append(q.nodes, n)
	sort.SliceStable(q.nodes, func(i, j int) bool {
		return q.nodes[i].ID.XOR(q.target).Less(q.nodes[j].ID.XOR(q.target))
	})
	if len(q.nodes) > q.k {
		dropped := q.nodes[q.k:]
		q.nodes = q.nodes[:q.k]
		for _, d := range dropped {
			delete(q.present, d.ID)
		}
	}
}

// pop removes and returns the closest remaining candidate.
func (q *lookupQueue) pop() (Node, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.nodes) == 0 {
		return Node{}, false
	}
	n := q.nodes[0]
	q.nodes = q.nodes[1:]
	delete(q.present, n.ID)
	q.queried[n.ID] = true
	return n, true
}

// queriedClosest returns the k members of queried closest to target.
func (q *lookupQueue) queriedClosest() []Node {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Node, 0, len(q.queried))
	for id := range q.queried {
		out = append(out, q.seen[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID.XOR(q.target).Less(out[j].ID.XOR(q.target))
	})
	if len(out) > q.k {
		out = out[:q.k]
	}
	return out
}

// lookup runs the iterative α-parallel lookup described in §4.5. seed
// is every routing-table node other than local and excl, already
// trimmed to the k nearest to target by the caller.
func lookup(ctx context.Context, c caller, log *zap.Logger, target ID, mode lookupMode, excl ID, seed []Node) lookupOutcome {
	if len(seed) == 0 {
		return lookupOutcome{kind: outcomeNodes, nodes: nil}
	}

	q := newLookupQueue(target, K, seed)

	// cancel aborts the other workers' in-flight calls once a hit ends
	// the lookup.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	funcName := "find_node"
	if mode == modeFindValue {
		funcName = "find_value"
	}

	var found struct {
		sync.Mutex
		outcome *lookupOutcome
	}

	work := func() error {
		for {
			if found.outcome != nil {
				return nil
			}
			n, ok := q.pop()
			if !ok {
				return nil
			}

			reply, err := c.call(ctx, n.Addr, funcName, target.Bytes())
			if err != nil {
				log.Debug("lookup candidate failed", zap.Stringer("node", n), zap.Error(err))
				continue
			}

			switch v := reply.(type) {
			case []byte:
				if mode == modeFindValue {
					found.Lock()
					if found.outcome == nil {
						found.outcome = &lookupOutcome{kind: outcomeValue, value: v}
					}
					found.Unlock()
					cancel()
					return nil
				}
			case []Node:
				for _, m := range v {
					if m.ID.Equal(target) {
						found.Lock()
						if found.outcome == nil {
							found.outcome = &lookupOutcome{kind: outcomeSingle, node: m}
						}
						found.Unlock()
						cancel()
						return nil
					}
					if !m.ID.Equal(excl) {
						q.insert(m)
					}
				}
			}
		}
	}

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < ALPHA; i++ {
		g.Go(work)
	}
	_ = g.Wait()

	if found.outcome != nil {
		return *found.outcome
	}
	return lookupOutcome{kind: outcomeNodes, nodes: q.queriedClosest()}
}
