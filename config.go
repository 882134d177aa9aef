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

import "time"

// Config holds the parameters needed to start a Server. Unlike the
// teacher's Config, there is no storage backend selection or socket
// batching knob: this module's storage is always the in-memory map
// and its transport always a single unicast UDP socket.
type Config struct {
	// LocalID is this node's id. If zero, WithDefaults generates a
	// random one.
	LocalID ID
	// ListenAddress is the udp host:port to listen on.
	ListenAddress Addr
	// Bootstrap lists the peers to join the network through.
	Bootstrap []Node
	// CallTimeout is how long an RPC call waits for a reply before
	// failing with ErrTimeout. Zero selects DefaultCallTimeout.
	CallTimeout time.Duration
	// LogLevel is the minimum zap level the server logs at.
	LogLevel string
}

// WithDefaults returns a copy of c with unset fields replaced by their
// defaults: a random LocalID and DefaultCallTimeout.
func (c Config) WithDefaults() Config {
	if c.LocalID == ZeroID {
		c.LocalID = RandomID()
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}
