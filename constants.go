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

const (
	// K is the replication factor: the maximum number of nodes kept
	// in any bucket.
	K = 20
	// ALPHA is the lookup engine's query concurrency.
	ALPHA = 3
	// DefaultCallTimeout is how long a call waits for a reply before
	// failing with ErrTimeout, absent an explicit Config override.
	DefaultCallTimeout = 30 * time.Second
)
