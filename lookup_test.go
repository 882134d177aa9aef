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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCaller simulates a small peer graph: each node answers find_node /
// find_value with a canned reply keyed by its own address, without any
// network I/O.
type fakeCaller struct {
	mu      sync.Mutex
	replies map[Addr]interface{}
	errs    map[Addr]error
	calls   []Addr
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{replies: map[Addr]interface{}{}, errs: map[Addr]error{}}
}

func (f *fakeCaller) call(ctx context.Context, addr Addr, funcName string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, addr)
	if err, ok := f.errs[addr]; ok {
		return nil, err
	}
	return f.replies[addr], nil
}

func mkNode(tail byte, host string) Node {
	var id ID
	id[0] = tail
	return Node{ID: id, Addr: Addr{Host: host, Port: 1}}
}

func TestLookupEmptySeedReturnsNoNodes(t *testing.T) {
	out := lookup(context.Background(), newFakeCaller(), zap.NewNop(), RandomID(), modeFindNode, ZeroID, nil)
	assert.Equal(t, outcomeNodes, out.kind)
	assert.Nil(t, out.nodes)
}

func TestLookupFindsExactTargetAmongReturnedNodes(t *testing.T) {
	target := mkNode(99, "target").ID
	a := mkNode(1, "a")

	fc := newFakeCaller()
	fc.replies[a.Addr] = []Node{mkNode(99, "target")}

	out := lookup(context.Background(), fc, zap.NewNop(), target, modeFindNode, ZeroID, []Node{a})
	require.Equal(t, outcomeSingle, out.kind)
	assert.Equal(t, target, out.node.ID)
}

func TestLookupFindsValue(t *testing.T) {
	target := RandomID()
	a := mkNode(1, "a")

	fc := newFakeCaller()
	fc.replies[a.Addr] = []byte("payload")

	out := lookup(context.Background(), fc, zap.NewNop(), target, modeFindValue, ZeroID, []Node{a})
	require.Equal(t, outcomeValue, out.kind)
	assert.Equal(t, "payload", string(out.value))
}

func TestLookupConvergesOverPeerChain(t *testing.T) {
	target := mkNode(50, "target").ID
	a := mkNode(1, "a")
	b := mkNode(2, "b")
	c := mkNode(3, "c")

	fc := newFakeCaller()
	fc.replies[a.Addr] = []Node{b}
	fc.replies[b.Addr] = []Node{c}
	fc.replies[c.Addr] = []Node{} // c has nothing further to offer

	out := lookup(context.Background(), fc, zap.NewNop(), target, modeFindNode, ZeroID, []Node{a})
	require.Equal(t, outcomeNodes, out.kind)

	ids := map[ID]bool{}
	for _, n := range out.nodes {
		ids[n.ID] = true
	}
	assert.True(t, ids[a.ID])
	assert.True(t, ids[b.ID])
	assert.True(t, ids[c.ID])
}

func TestLookupSkipsExcludedNode(t *testing.T) {
	target := RandomID()
	a := mkNode(1, "a")
	excluded := mkNode(2, "excluded")

	fc := newFakeCaller()
	fc.replies[a.Addr] = []Node{excluded}

	out := lookup(context.Background(), fc, zap.NewNop(), target, modeFindNode, excluded.ID, []Node{a})
	require.Equal(t, outcomeNodes, out.kind)
	for _, n := range out.nodes {
		assert.NotEqual(t, excluded.ID, n.ID)
	}
}

func TestLookupToleratesCallErrors(t *testing.T) {
	target := RandomID()
	a := mkNode(1, "a")

	fc := newFakeCaller()
	fc.errs[a.Addr] = ErrTimeout

	out := lookup(context.Background(), fc, zap.NewNop(), target, modeFindNode, ZeroID, []Node{a})
	require.Equal(t, outcomeNodes, out.kind)
	assert.Len(t, out.nodes, 1) // a itself still counts as queried
}
