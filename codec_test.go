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

func TestCodecRoundTripCall(t *testing.T) {
	caller := Node{ID: RandomID(), Addr: Addr{Host: "1.2.3.4", Port: 9000}}
	target := RandomID()

	msg := newCallMessage(42, caller, "find_node", []interface{}{target.Bytes()})
	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), decoded.ID)
	assert.True(t, decoded.IsCall)
	assert.Equal(t, "find_node", decoded.Func)

	call, ok := decoded.Data.(*rawCall)
	require.True(t, ok)
	assert.Equal(t, caller.ID, call.Caller.ID)
	assert.Equal(t, caller.Addr, call.Caller.Addr)

	require.Len(t, call.Args, 1)
	gotTarget, err := decodeID(call.Args[0])
	require.NoError(t, err)
	assert.Equal(t, target, gotTarget)
}

func TestCodecRoundTripOKResult(t *testing.T) {
	nodes := []Node{
		{ID: RandomID(), Addr: Addr{Host: "a", Port: 1}},
		{ID: RandomID(), Addr: Addr{Host: "b", Port: 2}},
	}
	msg := newOKMessage(7, "find_node", encodeNodeList(nodes))
	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.False(t, decoded.IsCall)

	res, ok := decoded.Data.(*rawResult)
	require.True(t, ok)
	assert.True(t, res.OK)

	gotNodes, err := decodeNodeList(res.Value)
	require.NoError(t, err)
	require.Len(t, gotNodes, 2)
	assert.Equal(t, nodes[0].ID, gotNodes[0].ID)
	assert.Equal(t, nodes[1].Addr, gotNodes[1].Addr)
}

func TestCodecRoundTripErrResult(t *testing.T) {
	msg := newErrMessage(9, "store", errKindHandler, "disk full")
	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	res, ok := decoded.Data.(*rawResult)
	require.True(t, ok)
	assert.False(t, res.OK)

	fields, ok := asSlice(res.Value)
	require.True(t, ok)
	require.Len(t, fields, 2)
	kind, _ := asString(fields[0])
	detail, _ := asString(fields[1])
	assert.Equal(t, errKindHandler, kind)
	assert.Equal(t, "disk full", detail)
}

func TestCodecValueBytesRoundTrip(t *testing.T) {
	msg := newOKMessage(1, "find_value", []byte("hello world"))
	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	res := decoded.Data.(*rawResult)
	b, ok := res.Value.([]byte)
	require.True(t, ok)
	assert.Equal(t, "hello world", string(b))
}

func TestCodecRejectsTruncatedFrame(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestCodecIDRoundTrip(t *testing.T) {
	id := RandomID()
	got, err := decodeID(id.Bytes())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = decodeID([]byte{1, 2, 3})
	assert.Error(t, err)
}
