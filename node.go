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
	"fmt"
	"net"
	"strconv"
)

// Addr is a transport address: a hostname or IP literal plus a UDP
// port.
type Addr struct {
	Host string
	Port uint16
}

// String renders the address as "host:port".
func (a Addr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// UDPAddr resolves the address to a *net.UDPAddr.
func (a Addr) UDPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", a.String())
}

// AddrFromUDP converts a resolved *net.UDPAddr back into an Addr.
func AddrFromUDP(u *net.UDPAddr) Addr {
	port := 0
	if u != nil {
		port = u.Port
	}
	host := ""
	if u != nil {
		host = u.IP.String()
	}
	return Addr{Host: host, Port: uint16(port)}
}

// Node binds an identifier to the transport address it was last seen
// at. Two nodes are equal iff their ids are equal; the address is
// metadata carried alongside the id, not part of its identity.
type Node struct {
	ID   ID
	Addr Addr
}

// Equal compares nodes by id only: routing-table membership and
// dedup are keyed on identity, never on last-known address.
func (n Node) Equal(other Node) bool {
	return n.ID.Equal(other.ID)
}

// String renders the node for logs.
func (n Node) String() string {
	return fmt.Sprintf("%s@%s", n.ID, n.Addr)
}
