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

func TestStorageSetGet(t *testing.T) {
	s := newStorage()
	key := RandomID()

	_, ok := s.get(key)
	assert.False(t, ok)

	s.set(key, []byte("v1"))
	v, ok := s.get(key)
	require.True(t, ok)
	assert.Equal(t, "v1", string(v))
}

func TestStorageOverwrite(t *testing.T) {
	s := newStorage()
	key := RandomID()

	s.set(key, []byte("v1"))
	s.set(key, []byte("v2"))

	v, ok := s.get(key)
	require.True(t, ok)
	assert.Equal(t, "v2", string(v))
}

func TestStorageGetReturnsCopy(t *testing.T) {
	s := newStorage()
	key := RandomID()
	s.set(key, []byte("original"))

	v, _ := s.get(key)
	v[0] = 'X'

	v2, _ := s.get(key)
	assert.Equal(t, "original", string(v2))
}
