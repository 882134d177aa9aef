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
	"bytes"
	"fmt"

	"github.com/hashicorp/go-msgpack/codec"
)

// msgpackHandle is the single shared codec configuration for the
// whole module: a self-describing, MessagePack-compatible binary
// format. Messages are encoded as plain nested arrays/maps rather
// than via struct reflection, so the decoder can resolve the
// (is_call, func) tag before it knows which concrete argument or
// return type to interpret the payload as.
var msgpackHandle = &codec.MsgpackHandle{}

func init() {
	// WriteExt makes []byte encode as msgpack bin rather than raw str,
	// and RawToString makes str decode back to string, so the two stay
	// distinguishable when decoding into interface{}.
	msgpackHandle.WriteExt = true
	msgpackHandle.RawToString = true
}

// Message is the wire envelope: (id, is_call, func, payload). Data
// holds the decoded payload: a *rawCall when IsCall is true, a
// *rawResult otherwise.
type Message struct {
	ID     uint64
	IsCall bool
	Func   string
	Data   interface{}
}

// rawCall is the 3-tuple (caller, func, args) carried by a call
// message. Args is left as the generic decoded array; the RPC
// transport interprets each element's type against the target
// handler's declared argument schema.
type rawCall struct {
	Caller Node
	Func   string
	Args   []interface{}
}

// rawResult is the 2-tuple (ok, value) carried by a response message.
// On ok=true, Value is the handler's declared return type, generically
// decoded. On ok=false, Value is a []interface{} of {kind, detail}
// strings, distinguishing a missing handler from a handler failure.
type rawResult struct {
	OK    bool
	Value interface{}
}

// newCallMessage builds an outbound call message. args must already
// be encodable primitives (see the encodeXxx helpers below).
func newCallMessage(id uint64, caller Node, funcName string, args []interface{}) Message {
	return Message{
		ID:     id,
		IsCall: true,
		Func:   funcName,
		Data: &rawCall{
			Caller: caller,
			Func:   funcName,
			Args:   args,
		},
	}
}

// newOKMessage builds an outbound success response.
func newOKMessage(id uint64, funcName string, value interface{}) Message {
	return Message{ID: id, IsCall: false, Func: funcName, Data: &rawResult{OK: true, Value: value}}
}

// newErrMessage builds an outbound failure response, tagging the
// error kind so the caller can reconstruct ErrNoSuchRPC vs. a generic
// HandlerError on decode.
func newErrMessage(id uint64, funcName string, kind, detail string) Message {
	return Message{
		ID:     id,
		IsCall: false,
		Func:   funcName,
		Data:   &rawResult{OK: false, Value: []interface{}{kind, detail}},
	}
}

const (
	errKindNoSuchRPC = "no_such_rpc"
	errKindHandler   = "handler_error"
)

// Encode serializes a message to its wire form.
func Encode(msg Message) ([]byte, error) {
	var payload interface{}

	switch d := msg.Data.(type) {
	case *rawCall:
		payload = []interface{}{encodeNode(d.Caller), d.Func, d.Args}
	case *rawResult:
		payload = []interface{}{d.OK, d.Value}
	default:
		return nil, fmt.Errorf("kad: encode: unhandled message data %T", msg.Data)
	}

	top := []interface{}{msg.ID, msg.IsCall, msg.Func, payload}

	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(top); err != nil {
		return nil, fmt.Errorf("kad: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a message off the wire. On any structural problem it
// returns ErrBadFrame wrapping the underlying cause; callers at the
// transport boundary should log and drop rather than propagate it.
func Decode(data []byte) (Message, error) {
	var top interface{}
	dec := codec.NewDecoder(bytes.NewReader(data), msgpackHandle)
	if err := dec.Decode(&top); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}

	fields, ok := asSlice(top)
	if !ok || len(fields) != 4 {
		return Message{}, fmt.Errorf("%w: malformed envelope", ErrBadFrame)
	}

	id, ok := asUint64(fields[0])
	if !ok {
		return Message{}, fmt.Errorf("%w: bad id field", ErrBadFrame)
	}
	isCall, ok := asBool(fields[1])
	if !ok {
		return Message{}, fmt.Errorf("%w: bad is_call field", ErrBadFrame)
	}
	funcName, ok := asString(fields[2])
	if !ok {
		return Message{}, fmt.Errorf("%w: bad func field", ErrBadFrame)
	}

	payload, ok := asSlice(fields[3])
	if !ok {
		return Message{}, fmt.Errorf("%w: malformed payload", ErrBadFrame)
	}

	if isCall {
		if len(payload) != 3 {
			return Message{}, fmt.Errorf("%w: malformed call payload", ErrBadFrame)
		}
		caller, err := decodeNode(payload[0])
		if err != nil {
			return Message{}, fmt.Errorf("%w: caller: %v", ErrBadFrame, err)
		}
		args, ok := asSlice(payload[2])
		if !ok {
			return Message{}, fmt.Errorf("%w: malformed args", ErrBadFrame)
		}
		return Message{
			ID:     id,
			IsCall: true,
			Func:   funcName,
			Data:   &rawCall{Caller: caller, Func: funcName, Args: args},
		}, nil
	}

	if len(payload) != 2 {
		return Message{}, fmt.Errorf("%w: malformed result payload", ErrBadFrame)
	}
	resOK, ok := asBool(payload[0])
	if !ok {
		return Message{}, fmt.Errorf("%w: bad ok field", ErrBadFrame)
	}
	return Message{
		ID:     id,
		IsCall: false,
		Func:   funcName,
		Data:   &rawResult{OK: resOK, Value: payload[1]},
	}, nil
}

// --- encode helpers -------------------------------------------------

func encodeAddr(a Addr) []interface{} {
	return []interface{}{a.Host, uint16(a.Port)}
}

func encodeNode(n Node) []interface{} {
	return []interface{}{n.ID.Bytes(), encodeAddr(n.Addr)}
}

func encodeNodeList(nodes []Node) []interface{} {
	out := make([]interface{}, len(nodes))
	for i, n := range nodes {
		out[i] = encodeNode(n)
	}
	return out
}

// --- decode helpers ---------------------------------------------------

func decodeID(v interface{}) (ID, error) {
	b, ok := v.([]byte)
	if !ok || len(b) != IDBytes {
		return ID{}, fmt.Errorf("expected %d-byte id, got %T", IDBytes, v)
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

func decodeBytes(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("expected bytes, got %T", v)
	}
	return b, nil
}

func decodeAddr(v interface{}) (Addr, error) {
	fields, ok := asSlice(v)
	if !ok || len(fields) != 2 {
		return Addr{}, fmt.Errorf("expected 2-tuple address, got %T", v)
	}
	host, ok := asString(fields[0])
	if !ok {
		return Addr{}, fmt.Errorf("expected string host, got %T", fields[0])
	}
	port, ok := asUint64(fields[1])
	if !ok {
		return Addr{}, fmt.Errorf("expected numeric port, got %T", fields[1])
	}
	return Addr{Host: host, Port: uint16(port)}, nil
}

func decodeNode(v interface{}) (Node, error) {
	fields, ok := asSlice(v)
	if !ok || len(fields) != 2 {
		return Node{}, fmt.Errorf("expected 2-tuple node, got %T", v)
	}
	id, err := decodeID(fields[0])
	if err != nil {
		return Node{}, err
	}
	addr, err := decodeAddr(fields[1])
	if err != nil {
		return Node{}, err
	}
	return Node{ID: id, Addr: addr}, nil
}

func decodeNodeList(v interface{}) ([]Node, error) {
	items, ok := asSlice(v)
	if !ok {
		return nil, fmt.Errorf("expected node array, got %T", v)
	}
	nodes := make([]Node, 0, len(items))
	for _, item := range items {
		n, err := decodeNode(item)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// --- generic value coercion ------------------------------------------
//
// The msgpack handle decodes into interface{} using whichever native
// Go type best matches the wire tag (arrays -> []interface{}, maps ->
// map[interface{}]interface{}, bin -> []byte, str -> string, unsigned
// integers -> a variety of int kinds depending on magnitude). These
// helpers normalize that into the fixed shapes this package expects.

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int32:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}
