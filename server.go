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
	"time"

	"go.uber.org/zap"
)

// Server is a single Kademlia DHT node: routing table, local storage,
// and the RPC transport wired together. Nothing here is global — a
// test can run any number of Servers in one process.
type Server struct {
	local Node
	log   *zap.Logger

	storage *storage
	table   *routingTable
	trans   *transport

	closeOnce sync.Once
}

// NewServer creates a server bound to local but does not yet listen;
// call Start to bring up the socket.
func NewServer(local Node, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		local: local,
		log:   log,
	}
}

// Start binds the UDP socket, registers the four RPC handlers, and,
// if bootstrap is non-empty, joins the network by issuing
// find_node(local.id) to each bootstrap peer in parallel.
func (s *Server) Start(ctx context.Context, callTimeout time.Duration, bootstrap []Node) error {
	udpAddr, err := s.local.Addr.UDPAddr()
	if err != nil {
		return fmt.Errorf("kad: resolve listen addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("kad: listen: %w", err)
	}

	s.storage = newStorage()
	s.trans = newTransport(conn, s.local, callTimeout, s.log)
	s.table = newRoutingTable(s.local, s.trans, s.log)
	s.trans.onRPC = func(n Node) { s.table.update(context.Background(), n) }

	s.trans.register("ping", s.handlePing)
	s.trans.register("store", s.handleStore)
	s.trans.register("find_node", s.handleFindNode)
	s.trans.register("find_value", s.handleFindValue)

	if len(bootstrap) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, peer := range bootstrap {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := s.trans.call(ctx, peer.Addr, "find_node", s.local.ID.Bytes())
			if err != nil {
				s.log.Warn("bootstrap peer unreachable", zap.Stringer("peer", peer), zap.Error(err))
				return
			}
			s.table.update(ctx, peer)
			if nodes, ok := reply.([]Node); ok {
				for _, n := range nodes {
					s.table.update(ctx, n)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// Set stores (key, value) locally, then replicates it to the k nodes
// closest to key. Replica failures are swallowed: Set succeeds as
// long as the local insertion succeeds.
func (s *Server) Set(ctx context.Context, key ID, value []byte) {
	s.storage.set(key, value)

	seed := s.table.nearest(key, K, s.local.ID)
	outcome := lookup(ctx, s.trans, s.log, key, modeFindNode, s.local.ID, seed)

	var targets []Node
	switch outcome.kind {
	case outcomeSingle:
		targets = []Node{outcome.node}
	case outcomeNodes:
		targets = outcome.nodes
	}

	var wg sync.WaitGroup
	for _, n := range targets {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.trans.call(ctx, n.Addr, "store", key.Bytes(), value); err != nil {
				s.log.Debug("replica store failed", zap.Stringer("node", n), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

// Get returns the value under key: from local storage if present,
// otherwise via a find_value lookup. Returns ErrNotFound if the
// lookup completes without locating the value.
func (s *Server) Get(ctx context.Context, key ID) ([]byte, error) {
	if v, ok := s.storage.get(key); ok {
		return v, nil
	}

	seed := s.table.nearest(key, K, s.local.ID)
	outcome := lookup(ctx, s.trans, s.log, key, modeFindValue, s.local.ID, seed)
	if outcome.kind == outcomeValue {
		return outcome.value, nil
	}
	return nil, ErrNotFound
}

// Close tears down the RPC transport.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.trans != nil {
			err = s.trans.close()
		}
	})
	return err
}

func (s *Server) handlePing(ctx context.Context, caller Node, args []interface{}) (interface{}, error) {
	return "pong", nil
}

func (s *Server) handleStore(ctx context.Context, caller Node, args []interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("kad: store: want 2 args, got %d", len(args))
	}
	key, err := decodeID(args[0])
	if err != nil {
		return nil, fmt.Errorf("kad: store: key: %w", err)
	}
	value, err := decodeBytes(args[1])
	if err != nil {
		return nil, fmt.Errorf("kad: store: value: %w", err)
	}
	s.storage.set(key, value)
	return nil, nil
}

func (s *Server) handleFindNode(ctx context.Context, caller Node, args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("kad: find_node: want 1 arg, got %d", len(args))
	}
	target, err := decodeID(args[0])
	if err != nil {
		return nil, fmt.Errorf("kad: find_node: id: %w", err)
	}

	seed := s.table.nearest(target, K, caller.ID)
	outcome := lookup(ctx, s.trans, s.log, target, modeFindNode, caller.ID, seed)

	switch outcome.kind {
	case outcomeSingle:
		return encodeNodeList([]Node{outcome.node}), nil
	default:
		return encodeNodeList(outcome.nodes), nil
	}
}

func (s *Server) handleFindValue(ctx context.Context, caller Node, args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("kad: find_value: want 1 arg, got %d", len(args))
	}
	target, err := decodeID(args[0])
	if err != nil {
		return nil, fmt.Errorf("kad: find_value: id: %w", err)
	}

	if v, ok := s.storage.get(target); ok {
		return v, nil
	}

	seed := s.table.nearest(target, K, caller.ID)
	outcome := lookup(ctx, s.trans, s.log, target, modeFindValue, caller.ID, seed)

	switch outcome.kind {
	case outcomeValue:
		return outcome.value, nil
	case outcomeSingle:
		return encodeNodeList([]Node{outcome.node}), nil
	default:
		return encodeNodeList(outcome.nodes), nil
	}
}
