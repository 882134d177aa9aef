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
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// handlerFunc is a registered RPC handler. args are the generically
// decoded call arguments; the handler is responsible for converting
// each element to its declared type via the decodeXxx helpers in
// codec.go. The returned value must already be in wire-encodable form
// (string, []byte, bool, or a []interface{} built via the encodeXxx
// helpers) since the transport does not reflect over arbitrary types.
type handlerFunc func(ctx context.Context, caller Node, args []interface{}) (interface{}, error)

// pendingCall is one outstanding request awaiting a response.
type pendingCall struct {
	result chan pendingResult
	timer  *time.Timer
}

type pendingResult struct {
	value interface{}
	err   error
}

// transport is the RPC layer: request/response correlation over an
// unreliable datagram socket, per-call timeouts, and a handler
// registry keyed by function name. All mutation of its own state
// (registry excepted, which is only ever written during setup) is
// confined behind mu, matching the single-actor confinement the
// routing table and storage also use.
type transport struct {
	conn  *net.UDPConn
	local Node
	log   *zap.Logger

	timeout time.Duration

	nextID uint64

	mu      sync.Mutex
	pending map[uint64]*pendingCall
	closed  bool

	handlers map[string]handlerFunc

	// onRPC is invoked for every inbound call's caller, before dispatch.
	// The DHT server installs routingTable.update here.
	onRPC func(Node)

	wg sync.WaitGroup
}

func newTransport(conn *net.UDPConn, local Node, timeout time.Duration, log *zap.Logger) *transport {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	t := &transport{
		conn:     conn,
		local:    local,
		log:      log,
		timeout:  timeout,
		pending:  make(map[uint64]*pendingCall),
		handlers: make(map[string]handlerFunc),
		onRPC:    func(Node) {},
	}
	t.wg.Add(1)
	go t.readLoop()
	return t
}

// register binds name to a handler. The read loop is already running
// once newTransport returns, so register before any peer sends calls;
// not safe to call concurrently with dispatch.
func (t *transport) register(name string, h handlerFunc) {
	t.handlers[name] = h
}

// call encodes and sends a request, then blocks until a reply
// arrives, the context is cancelled, or the per-call timer fires.
func (t *transport) call(ctx context.Context, addr Addr, funcName string, args ...interface{}) (interface{}, error) {
	id := atomic.AddUint64(&t.nextID, 1)

	msg := newCallMessage(id, t.local, funcName, args)
	data, err := Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("kad: encode call: %w", err)
	}

	pc := &pendingCall{result: make(chan pendingResult, 1)}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrCancelled
	}
	t.pending[id] = pc
	pc.timer = time.AfterFunc(t.timeout, func() { t.expire(id) })
	t.mu.Unlock()

	udpAddr, err := addr.UDPAddr()
	if err != nil {
		t.removePending(id)
		pc.timer.Stop()
		return nil, fmt.Errorf("kad: resolve addr: %w", err)
	}

	if _, err := t.conn.WriteTo(data, udpAddr); err != nil {
		t.removePending(id)
		pc.timer.Stop()
		return nil, fmt.Errorf("kad: send call: %w", err)
	}

	select {
	case res := <-pc.result:
		return interpretReply(funcName, res.value, res.err)
	case <-ctx.Done():
		t.removePending(id)
		pc.timer.Stop()
		return nil, ctx.Err()
	}
}

// ping satisfies the pinger interface the routing table's eviction
// probe depends on.
func (t *transport) ping(ctx context.Context, addr Addr) error {
	_, err := t.call(ctx, addr, "ping")
	return err
}

// interpretReply converts the generically decoded Result.Value into
// the concrete type the caller of call() for funcName expects to
// type-switch on.
func interpretReply(funcName string, value interface{}, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	switch funcName {
	case "ping":
		s, _ := asString(value)
		return s, nil
	case "store":
		return nil, nil
	case "find_node":
		nodes, derr := decodeNodeList(value)
		if derr != nil {
			return nil, fmt.Errorf("kad: decode find_node reply: %w", derr)
		}
		return nodes, nil
	case "find_value":
		if b, ok := value.([]byte); ok {
			return b, nil
		}
		nodes, derr := decodeNodeList(value)
		if derr != nil {
			return nil, fmt.Errorf("kad: decode find_value reply: %w", derr)
		}
		return nodes, nil
	default:
		return value, nil
	}
}

// expire fires when a call's timer elapses with no response.
func (t *transport) expire(id uint64) {
	t.mu.Lock()
	pc, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	select {
	case pc.result <- pendingResult{err: ErrTimeout}:
	default:
	}
}

func (t *transport) removePending(id uint64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// close cancels every pending call with ErrCancelled and releases the
// socket. Handlers already running to completion may still attempt a
// reply; those sends simply fail against the closed socket and are
// logged and dropped.
func (t *transport) close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	pending := t.pending
	t.pending = make(map[uint64]*pendingCall)
	t.mu.Unlock()

	for _, pc := range pending {
		pc.timer.Stop()
		select {
		case pc.result <- pendingResult{err: ErrCancelled}:
		default:
		}
	}

	err := t.conn.Close()
	t.wg.Wait()
	return err
}

const maxDatagram = 64 * 1024

// readLoop is the transport's single inbound dispatch loop.
func (t *transport) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		fromAddr := AddrFromUDP(from)
		go t.handleDatagram(frame, fromAddr)
	}
}

func (t *transport) handleDatagram(frame []byte, from Addr) {
	msg, err := Decode(frame)
	if err != nil {
		t.log.Debug("dropped bad frame", zap.Stringer("from", from), zap.Error(err))
		return
	}

	if msg.IsCall {
		t.handleCall(msg, from)
		return
	}
	t.handleResponse(msg)
}

func (t *transport) handleCall(msg Message, from Addr) {
	call := msg.Data.(*rawCall)
	call.Caller.Addr = from // the caller's own claimed address is untrusted; trust the socket

	t.onRPC(call.Caller)

	h, ok := t.handlers[call.Func]
	if !ok {
		t.reply(msg.ID, call.Func, from, newErrMessage(msg.ID, call.Func, errKindNoSuchRPC, call.Func))
		return
	}

	value, err := h(context.Background(), call.Caller, call.Args)
	if err != nil {
		t.reply(msg.ID, call.Func, from, newErrMessage(msg.ID, call.Func, errKindHandler, err.Error()))
		return
	}
	t.reply(msg.ID, call.Func, from, newOKMessage(msg.ID, call.Func, value))
}

func (t *transport) reply(id uint64, funcName string, to Addr, msg Message) {
	data, err := Encode(msg)
	if err != nil {
		t.log.Warn("failed to encode reply", zap.String("func", funcName), zap.Error(err))
		return
	}
	udpAddr, err := to.UDPAddr()
	if err != nil {
		t.log.Warn("failed to resolve reply addr", zap.Stringer("to", to), zap.Error(err))
		return
	}
	if _, err := t.conn.WriteTo(data, udpAddr); err != nil {
		t.log.Debug("failed to send reply", zap.Stringer("to", to), zap.Error(err))
	}
}

func (t *transport) handleResponse(msg Message) {
	t.mu.Lock()
	pc, ok := t.pending[msg.ID]
	if ok {
		delete(t.pending, msg.ID)
	}
	t.mu.Unlock()

	if !ok {
		t.log.Debug("dropped late or unknown response", zap.Uint64("id", msg.ID))
		return
	}
	pc.timer.Stop()

	res := msg.Data.(*rawResult)
	if !res.OK {
		fields, ok := asSlice(res.Value)
		kind, detail := errKindHandler, "unknown error"
		if ok && len(fields) == 2 {
			if k, ok := asString(fields[0]); ok {
				kind = k
			}
			if d, ok := asString(fields[1]); ok {
				detail = d
			}
		}
		var err error
		if kind == errKindNoSuchRPC {
			err = ErrNoSuchRPC
		} else {
			err = newHandlerError(fmt.Errorf("%s", detail))
		}
		select {
		case pc.result <- pendingResult{err: err}:
		default:
		}
		return
	}

	select {
	case pc.result <- pendingResult{value: res.Value}:
	default:
	}
}
