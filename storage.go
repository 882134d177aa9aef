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

import "sync"

// storage is the process-local key/value store the DHT server's set,
// get, and store handler mutate. It keeps exactly one value per key,
// unconditionally overwritten, with no TTL or multi-value history:
// republish and expiry are out of scope for this module.
type storage struct {
	mu   sync.Mutex
	data map[ID][]byte
}

func newStorage() *storage {
	return &storage{data: make(map[ID][]byte)}
}

// set inserts or overwrites the value under key.
func (s *storage) set(key ID, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
}

// get returns the value under key and whether it was present.
func (s *storage) get(key ID) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true
}
