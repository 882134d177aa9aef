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
)

func TestAddrString(t *testing.T) {
	a := Addr{Host: "127.0.0.1", Port: 9000}
	assert.Equal(t, "127.0.0.1:9000", a.String())
}

func TestNodeEqualByIDOnly(t *testing.T) {
	id := RandomID()
	a := Node{ID: id, Addr: Addr{Host: "10.0.0.1", Port: 1}}
	b := Node{ID: id, Addr: Addr{Host: "10.0.0.2", Port: 2}}
	assert.True(t, a.Equal(b))

	c := Node{ID: RandomID(), Addr: a.Addr}
	assert.False(t, a.Equal(c))
}
